package library

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"CrateFM/core/livequery"
	"CrateFM/model"
	"CrateFM/storage"
	"CrateFM/store"
)

// fixture 是 library 包测试共用的装配：内存存储 + 本地 blob 目录 +
// 可计数的假拉取器，全部单进程、无外部依赖。
type fixture struct {
	manager *Manager
	store   *store.MemoryStore
	hub     *livequery.Hub
	blobs   *storage.LocalStore
	fetcher *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	hub := livequery.NewHub(st, nil)
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	fetcher := &fakeFetcher{data: []byte("payload-bytes"), contentType: "audio/mpeg"}
	return &fixture{
		manager: NewManager(st, hub, blobs, fetcher),
		store:   st,
		hub:     hub,
		blobs:   blobs,
		fetcher: fetcher,
	}
}

// fakeFetcher 记录调用次数，可配置返回内容或失败
type fakeFetcher struct {
	mu          sync.Mutex
	calls       int
	data        []byte
	contentType string
	err         error

	// block 非 nil 时，Fetch 会阻塞到它被关闭，用于并发去重测试
	block chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string) ([]byte, string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-block:
		}
	}
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.contentType, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// seedPlaylist 经由 manager 建一个带 n 首歌的播放列表
func seedPlaylist(t *testing.T, fx *fixture, playlistID string, songs ...string) *model.Playlist {
	t.Helper()
	ctx := context.Background()
	_, err := fx.manager.CreatePlaylist(ctx, CreatePlaylistParams{ID: playlistID, Title: "seed " + playlistID})
	require.NoError(t, err)
	for i, songID := range songs {
		_, err := fx.manager.AddSongToPlaylist(ctx, playlistID, AddSongParams{
			ID:               songID,
			Title:            "song " + songID,
			Artist:           "artist",
			MimeType:         "audio/mpeg",
			OriginalFilename: songID + ".mp3",
			Duration:         float64(100 + i),
		}, []byte("audio-of-"+songID))
		require.NoError(t, err)
	}
	p, err := fx.manager.GetPlaylist(ctx, playlistID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}
