package library

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CrateFM/core/livequery"
	"CrateFM/logger"
	"CrateFM/model"
	"CrateFM/storage"
	"CrateFM/store"
)

// Manager 是资料库对外的操作面：播放列表与歌曲的增删改、排序、
// 订阅、打包导入导出和懒加载。所有写入都经过 Mutator。
type Manager struct {
	store   store.Store
	hub     *livequery.Hub
	mutator *Mutator
	blobs   storage.BlobStore
	loader  *Loader
}

// NewManager 组装资料库操作面
func NewManager(st store.Store, hub *livequery.Hub, blobs storage.BlobStore, fetcher Fetcher) *Manager {
	mut := NewMutator(st, hub)
	return &Manager{
		store:   st,
		hub:     hub,
		mutator: mut,
		blobs:   blobs,
		loader:  NewLoader(st, mut, blobs, fetcher),
	}
}

// Loader 返回懒加载器
func (m *Manager) Loader() *Loader { return m.loader }

// CreatePlaylistParams 创建播放列表的参数，ID 为空时自动生成
type CreatePlaylistParams struct {
	ID          string
	Title       string
	Description string
}

// CreatePlaylist 创建一个空播放列表，rev 从 0 开始
func (m *Manager) CreatePlaylist(ctx context.Context, params CreatePlaylistParams) (*model.Playlist, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return m.mutator.MutatePlaylist(ctx, id, func(current *model.Playlist) (*model.Playlist, error) {
		if current != nil {
			return nil, fmt.Errorf("playlist %s already exists", id)
		}
		return &model.Playlist{
			ID:          id,
			Title:       params.Title,
			Description: params.Description,
			SongIDs:     []string{},
			Rev:         0,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
}

// UpdatePlaylist 按 params 的替换或保留策略更新播放列表
func (m *Manager) UpdatePlaylist(ctx context.Context, id string, params model.UpdatePlaylistParams) (*model.Playlist, error) {
	now := time.Now()
	return m.mutator.MutatePlaylist(ctx, id, func(current *model.Playlist) (*model.Playlist, error) {
		if current == nil {
			return nil, fmt.Errorf("update playlist %s: %w", id, store.ErrNotFound)
		}
		next := current.Clone()
		params.Apply(next, now)
		return next, nil
	})
}

// DeletePlaylist 删除播放列表并级联删除其全部歌曲。
// 歌曲删除在自己的事务里先提交并发完通知，之后才发列表本身的删除通知，
// 观察者不会看到引用已删歌曲的播放列表。
func (m *Manager) DeletePlaylist(ctx context.Context, id string) error {
	songs, err := m.store.SongsByPlaylist(ctx, id)
	if err != nil {
		return err
	}
	ids := make([]string, len(songs))
	for i, s := range songs {
		ids[i] = s.ID
	}
	if err := m.mutator.DeleteSongs(ctx, ids); err != nil {
		return err
	}

	playlist, err := m.store.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}
	if err := m.mutator.DeletePlaylist(ctx, id); err != nil {
		return err
	}

	// 记录删掉后清理二进制负载，失败只记日志
	for _, s := range songs {
		m.removeBlobs(ctx, s.AudioKey, s.CoverKey)
	}
	if playlist != nil {
		m.removeBlobs(ctx, playlist.CoverKey)
	}
	return nil
}

// AddSongParams 添加歌曲的元数据
type AddSongParams struct {
	ID               string // 为空时自动生成
	Title            string
	Artist           string
	Album            string
	Duration         float64
	MimeType         string
	OriginalFilename string
}

// AddSongToPlaylist 把一首歌加进播放列表：由音频字节计算内容哈希，
// 负载写入 blob 存储，歌曲记录落库后追加进 songIds。
func (m *Manager) AddSongToPlaylist(ctx context.Context, playlistID string, params AddSongParams, audio []byte) (*model.Song, error) {
	playlist, err := m.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, fmt.Errorf("add song to playlist %s: %w", playlistID, store.ErrNotFound)
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	audioKey := audioBlobKey(id)
	if err := m.blobs.Put(ctx, audioKey, audio, params.MimeType); err != nil {
		return nil, err
	}

	now := time.Now()
	song, err := m.mutator.MutateSong(ctx, id, func(current *model.Song) (*model.Song, error) {
		if current != nil {
			return nil, fmt.Errorf("song %s already exists", id)
		}
		return &model.Song{
			ID:               id,
			PlaylistID:       playlistID,
			Title:            params.Title,
			Artist:           params.Artist,
			Album:            params.Album,
			Duration:         params.Duration,
			Position:         len(playlist.SongIDs),
			MimeType:         params.MimeType,
			OriginalFilename: params.OriginalFilename,
			FileSize:         int64(len(audio)),
			SHA:              HashPayload(audio),
			AudioKey:         audioKey,
			CreatedAt:        now,
			UpdatedAt:        now,
		}, nil
	})
	if err != nil {
		m.removeBlobs(ctx, audioKey)
		return nil, err
	}

	// 权威位置在列表事务里决定，最初按入口处读到的 songIds 长度猜的
	// 位置可能已经过时
	position := song.Position
	_, err = m.mutator.MutatePlaylist(ctx, playlistID, func(current *model.Playlist) (*model.Playlist, error) {
		if current == nil {
			return nil, fmt.Errorf("playlist %s vanished while adding song: %w", playlistID, store.ErrNotFound)
		}
		next := current.Clone()
		if !next.ContainsSong(id) {
			next.SongIDs = append(next.SongIDs, id)
		}
		for i, sid := range next.SongIDs {
			if sid == id {
				position = i
				break
			}
		}
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if position != song.Position {
		song, err = m.mutator.MutateSong(ctx, id, func(current *model.Song) (*model.Song, error) {
			if current == nil {
				return nil, fmt.Errorf("song %s vanished while adding: %w", id, store.ErrNotFound)
			}
			next := current.Clone()
			next.Position = position
			next.UpdatedAt = now
			return next, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return song, nil
}

// UpdateSong 按 params 的替换或保留策略更新歌曲元数据
func (m *Manager) UpdateSong(ctx context.Context, id string, params model.UpdateSongParams) (*model.Song, error) {
	now := time.Now()
	return m.mutator.MutateSong(ctx, id, func(current *model.Song) (*model.Song, error) {
		if current == nil {
			return nil, fmt.Errorf("update song %s: %w", id, store.ErrNotFound)
		}
		next := current.Clone()
		params.Apply(next, now)
		return next, nil
	})
}

// RemoveSongFromPlaylist 先把歌曲从 songIds 摘掉，再删除歌曲记录。
// 这个顺序保证列表观察者不会看到悬空引用。
func (m *Manager) RemoveSongFromPlaylist(ctx context.Context, playlistID, songID string) error {
	now := time.Now()
	_, err := m.mutator.MutatePlaylist(ctx, playlistID, func(current *model.Playlist) (*model.Playlist, error) {
		if current == nil {
			return nil, fmt.Errorf("remove song from playlist %s: %w", playlistID, store.ErrNotFound)
		}
		next := current.Clone()
		next.RemoveSongID(songID)
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		return err
	}

	song, err := m.store.GetSong(ctx, songID)
	if err != nil {
		return err
	}
	if err := m.mutator.DeleteSong(ctx, songID); err != nil {
		return err
	}
	if song != nil {
		m.removeBlobs(ctx, song.AudioKey, song.CoverKey)
	}
	return nil
}

// ReorderSongs 把 songIds 里 from 位置的歌移动到 to 位置
func (m *Manager) ReorderSongs(ctx context.Context, playlistID string, from, to int) (*model.Playlist, error) {
	now := time.Now()
	return m.mutator.MutatePlaylist(ctx, playlistID, func(current *model.Playlist) (*model.Playlist, error) {
		if current == nil {
			return nil, fmt.Errorf("reorder playlist %s: %w", playlistID, store.ErrNotFound)
		}
		n := len(current.SongIDs)
		if from < 0 || from >= n || to < 0 || to >= n {
			return nil, fmt.Errorf("reorder playlist %s: index out of range (from=%d, to=%d, len=%d)", playlistID, from, to, n)
		}
		next := current.Clone()
		id := next.SongIDs[from]
		next.SongIDs = append(next.SongIDs[:from], next.SongIDs[from+1:]...)
		rest := append([]string(nil), next.SongIDs[to:]...)
		next.SongIDs = append(append(next.SongIDs[:to], id), rest...)
		next.UpdatedAt = now
		return next, nil
	})
}

// GetPlaylist 读取单个播放列表，不存在时返回 (nil, nil)
func (m *Manager) GetPlaylist(ctx context.Context, id string) (*model.Playlist, error) {
	return m.store.GetPlaylist(ctx, id)
}

// GetSong 读取单首歌曲，不存在时返回 (nil, nil)
func (m *Manager) GetSong(ctx context.Context, id string) (*model.Song, error) {
	return m.store.GetSong(ctx, id)
}

// GetAllPlaylists 读取全部播放列表
func (m *Manager) GetAllPlaylists(ctx context.Context) ([]*model.Playlist, error) {
	return m.store.GetAllPlaylists(ctx)
}

// GetPlaylistSongs 按 songIds 顺序返回播放列表的歌曲
func (m *Manager) GetPlaylistSongs(ctx context.Context, playlistID string) ([]*model.Song, error) {
	playlist, err := m.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, store.ErrNotFound)
	}
	songs, err := m.store.SongsByPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return orderSongs(playlist, songs), nil
}

// SubscribeToPlaylists 订阅播放列表集合的实时视图
func (m *Manager) SubscribeToPlaylists(ctx context.Context, fields []string) (*livequery.Subscription, error) {
	return m.hub.Subscribe(ctx, livequery.Query{
		Collection: store.Playlists,
		Fields:     fields,
	})
}

// SubscribeToPlaylistSongs 订阅某个播放列表名下歌曲的实时视图
func (m *Manager) SubscribeToPlaylistSongs(ctx context.Context, playlistID string, fields []string) (*livequery.Subscription, error) {
	return m.hub.Subscribe(ctx, livequery.Query{
		Collection: store.Songs,
		Filter: func(e livequery.Entity) bool {
			s, ok := e.(*model.Song)
			return ok && s.PlaylistID == playlistID
		},
		Fields: fields,
	})
}

// LoadPayload 按需加载实体的二进制负载，见 Loader
func (m *Manager) LoadPayload(ctx context.Context, ref PayloadRef) error {
	return m.loader.LoadPayload(ctx, ref)
}

// OpenPayload 读取实体已落地的负载字节（服务端播放/渲染用）
func (m *Manager) OpenPayload(ctx context.Context, key string) ([]byte, error) {
	return m.blobs.Get(ctx, key)
}

// removeBlobs 尽力清理不再被引用的负载
func (m *Manager) removeBlobs(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := m.blobs.Delete(ctx, key); err != nil {
			logger.Warn("清理负载失败", logger.String("key", key), logger.ErrorField(err))
		}
	}
}

// orderSongs 按播放列表的 songIds 重排歌曲；不在 songIds 里的歌排在末尾
func orderSongs(p *model.Playlist, songs []*model.Song) []*model.Song {
	byID := make(map[string]*model.Song, len(songs))
	for _, s := range songs {
		byID[s.ID] = s
	}
	out := make([]*model.Song, 0, len(songs))
	for _, id := range p.SongIDs {
		if s, ok := byID[id]; ok {
			out = append(out, s)
			delete(byID, id)
		}
	}
	for _, s := range songs {
		if _, left := byID[s.ID]; left {
			out = append(out, s)
		}
	}
	return out
}

func audioBlobKey(songID string) string { return "audio/" + songID }
func coverBlobKey(id string) string     { return "covers/" + id }
