package library

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrateFM/model"
	"CrateFM/store"
)

// importStaleSong 造一首待加载的歌：只有元数据和定位符，没有本地负载
func importStaleSong(t *testing.T, fx *fixture, playlistID, songID string) {
	t.Helper()
	_, err := fx.manager.ImportBundle(context.Background(), &model.Bundle{
		Playlist: model.BundlePlaylist{ID: playlistID, Title: "stale", Rev: 1},
		Songs: []model.BundleSong{{
			ID:           songID,
			Title:        "needs load",
			MimeType:     "audio/mpeg",
			SHA:          HashPayload([]byte("remote bytes")),
			AudioLocator: "https://peer.example/audio/" + songID,
		}},
	})
	require.NoError(t, err)
}

func TestLoadPayload_MaterializesAndClearsFlag(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	importStaleSong(t, fx, "p1", "s1")

	ref := PayloadRef{Collection: store.Songs, Key: "s1", Kind: KindAudio}
	require.NoError(t, fx.manager.LoadPayload(ctx, ref))

	s, err := fx.manager.GetSong(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, s.HasAudio())
	assert.False(t, s.NeedsPayloadLoad)
	assert.Equal(t, int64(len(fx.fetcher.data)), s.FileSize)

	data, err := fx.manager.OpenPayload(ctx, s.AudioKey)
	require.NoError(t, err)
	assert.Equal(t, fx.fetcher.data, data)
}

func TestLoadPayload_IdempotentAfterLoad(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	importStaleSong(t, fx, "p1", "s1")

	ref := PayloadRef{Collection: store.Songs, Key: "s1", Kind: KindAudio}
	require.NoError(t, fx.manager.LoadPayload(ctx, ref))
	require.NoError(t, fx.manager.LoadPayload(ctx, ref))
	require.NoError(t, fx.manager.LoadPayload(ctx, ref))

	assert.Equal(t, 1, fx.fetcher.callCount(), "already-loaded payload must not refetch")
}

func TestLoadPayload_FailureLeavesSongStale(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	importStaleSong(t, fx, "p1", "s1")
	fx.fetcher.err = errors.New("peer unreachable")

	err := fx.manager.LoadPayload(ctx, PayloadRef{Collection: store.Songs, Key: "s1", Kind: KindAudio})
	require.ErrorIs(t, err, ErrPayloadFetch)

	s, getErr := fx.manager.GetSong(ctx, "s1")
	require.NoError(t, getErr)
	assert.True(t, s.NeedsPayloadLoad, "failed load keeps the song retryable")
	assert.False(t, s.HasAudio())

	// 失败后放开，重试应当成功
	fx.fetcher.err = nil
	require.NoError(t, fx.manager.LoadPayload(ctx, PayloadRef{Collection: store.Songs, Key: "s1", Kind: KindAudio}))
	s, getErr = fx.manager.GetSong(ctx, "s1")
	require.NoError(t, getErr)
	assert.True(t, s.HasAudio())
}

func TestLoadPayload_ConcurrentCallsFetchOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	importStaleSong(t, fx, "p1", "s1")
	fx.fetcher.block = make(chan struct{})

	ref := PayloadRef{Collection: store.Songs, Key: "s1", Kind: KindAudio}
	const callers = 8
	errs := make([]error, callers)
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			started.Done()
			errs[i] = fx.manager.LoadPayload(ctx, ref)
			done.Done()
		}(i)
	}
	started.Wait()
	close(fx.fetcher.block)
	done.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, 1, fx.fetcher.callCount(), "in-flight guard must dedupe concurrent loads")
}

func TestLoadPayload_MissingLocatorFails(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	// 歌存在但既没负载也没定位符
	_, err := fx.manager.ImportBundle(ctx, &model.Bundle{
		Playlist: model.BundlePlaylist{ID: "p1", Rev: 1},
		Songs:    []model.BundleSong{{ID: "s1", Title: "orphan"}},
	})
	require.NoError(t, err)

	err = fx.manager.LoadPayload(ctx, PayloadRef{Collection: store.Songs, Key: "s1", Kind: KindAudio})
	require.ErrorIs(t, err, ErrPayloadFetch)
}

func TestLoadPayload_UnknownEntity(t *testing.T) {
	fx := newFixture(t)
	err := fx.manager.LoadPayload(context.Background(), PayloadRef{Collection: store.Songs, Key: "ghost", Kind: KindAudio})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoadPayload_PlaylistCover(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.fetcher.data = []byte("png bytes")
	fx.fetcher.contentType = "image/png"

	_, err := fx.manager.ImportBundle(ctx, &model.Bundle{
		Playlist: model.BundlePlaylist{
			ID: "p1", Title: "art", Rev: 1,
			ImageLocator: "https://peer.example/cover.png",
		},
	})
	require.NoError(t, err)

	require.NoError(t, fx.manager.LoadPayload(ctx, PayloadRef{Collection: store.Playlists, Key: "p1", Kind: KindCover}))

	p, err := fx.manager.GetPlaylist(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, p.NeedsPayloadLoad)
	assert.Equal(t, "covers/p1", p.CoverKey)
	assert.Equal(t, "image/png", p.CoverMime)
}
