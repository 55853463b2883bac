package library

import (
	"context"
	"fmt"
	"time"

	"CrateFM/logger"
	"CrateFM/model"
	"CrateFM/store"
)

// ImportResult 是一次打包导入的结果：最终的播放列表和按包内顺序排列的歌曲
type ImportResult struct {
	Playlist *model.Playlist `json:"playlist"`
	Songs    []*model.Song   `json:"songs"`
}

// ImportBundle 实现基于修订号和内容哈希的合并协议。
//
// rev 是粗粒度的"有没有变"信号：进包的 rev 不高于本地 rev 时整包跳过，
// 连歌曲列表都不看。sha 是每首歌的精确信号：两边都有非空哈希且相等时
// 保留本地音频负载，只覆盖可变元数据；否则按新歌或过期处理，只写元数据，
// 负载标记为待懒加载，绝不在导入过程中同步拉取。
//
// 空字符串 sha 视为"从未哈希"，永远不相等。包里缺席的本地歌曲不会被删除。
func (m *Manager) ImportBundle(ctx context.Context, b *model.Bundle) (*ImportResult, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	existing, err := m.store.GetPlaylist(ctx, b.Playlist.ID)
	if err != nil {
		return nil, err
	}

	// rev 没涨：认定包内容与本地一致，零写入、零通知
	if existing != nil && b.Playlist.Rev <= existing.Rev {
		logger.Debug("打包导入跳过，rev 未增长",
			logger.String("playlistId", b.Playlist.ID),
			logger.Int64("incomingRev", b.Playlist.Rev),
			logger.Int64("existingRev", existing.Rev))
		songs, err := m.store.SongsByPlaylist(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &ImportResult{Playlist: existing, Songs: orderSongs(existing, songs)}, nil
	}

	now := time.Now()
	songs := make([]*model.Song, 0, len(b.Songs))
	songIDs := make([]string, 0, len(b.Songs))

	// 每首歌一次 mutate，一次导入产生一串按歌的通知
	for i, bs := range b.Songs {
		desc := bs
		position := i
		song, err := m.mutator.MutateSong(ctx, desc.ID, func(current *model.Song) (*model.Song, error) {
			return mergeSong(current, &desc, b.Playlist.ID, position, now), nil
		})
		if err != nil {
			return nil, fmt.Errorf("import bundle %s: song %s: %w", b.Playlist.ID, desc.ID, err)
		}
		songs = append(songs, song)
		songIDs = append(songIDs, song.ID)
	}

	playlist, err := m.mutator.MutatePlaylist(ctx, b.Playlist.ID, func(current *model.Playlist) (*model.Playlist, error) {
		var next *model.Playlist
		if current == nil {
			next = &model.Playlist{ID: b.Playlist.ID, CreatedAt: now}
		} else {
			next = current.Clone()
		}
		next.Title = b.Playlist.Title
		next.Description = b.Playlist.Description
		next.SongIDs = songIDs
		next.Rev = b.Playlist.Rev
		next.UpdatedAt = now
		// 封面与歌曲负载同样处理：定位符变了才标记待加载，
		// 没变则本地已物化的封面继续有效
		if b.Playlist.ImageLocator != "" && b.Playlist.ImageLocator != next.PayloadLocator {
			next.NeedsPayloadLoad = true
			next.PayloadLocator = b.Playlist.ImageLocator
		}
		return next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("import bundle %s: %w", b.Playlist.ID, err)
	}

	logger.Info("打包导入完成",
		logger.String("playlistId", playlist.ID),
		logger.Int64("rev", playlist.Rev),
		logger.Int("songs", len(songs)))
	return &ImportResult{Playlist: playlist, Songs: songs}, nil
}

// mergeSong 决定一首进包歌曲的去留：哈希两边非空且相等则保留本地负载、
// 覆盖可变元数据；否则记录重建为仅元数据、待懒加载。
func mergeSong(current *model.Song, desc *model.BundleSong, playlistID string, position int, now time.Time) *model.Song {
	keepPayload := current != nil &&
		current.SHA != "" && desc.SHA != "" &&
		current.SHA == desc.SHA

	if keepPayload {
		next := current.Clone()
		next.PlaylistID = playlistID
		next.Title = desc.Title
		next.Artist = desc.Artist
		next.Album = desc.Album
		next.Duration = desc.Duration
		next.Position = position
		next.OriginalFilename = desc.OriginalFilename
		next.FileSize = desc.FileSize
		next.MimeType = desc.MimeType
		next.SHA = desc.SHA
		next.UpdatedAt = now
		return next
	}

	next := &model.Song{
		ID:               desc.ID,
		PlaylistID:       playlistID,
		Title:            desc.Title,
		Artist:           desc.Artist,
		Album:            desc.Album,
		Duration:         desc.Duration,
		Position:         position,
		MimeType:         desc.MimeType,
		OriginalFilename: desc.OriginalFilename,
		FileSize:         desc.FileSize,
		SHA:              desc.SHA,
		NeedsPayloadLoad: true,
		PayloadLocator:   desc.AudioLocator,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if current != nil {
		next.CreatedAt = current.CreatedAt
	}
	return next
}

// ExportBundle 把播放列表打包导出：rev 恰好加 1，歌曲按 songIds 顺序
// 写成描述符。二进制负载以 blob 定位符引用，不内联进包。
func (m *Manager) ExportBundle(ctx context.Context, playlistID string) (*model.Bundle, error) {
	playlist, err := m.mutator.MutatePlaylist(ctx, playlistID, func(current *model.Playlist) (*model.Playlist, error) {
		if current == nil {
			return nil, fmt.Errorf("export playlist %s: %w", playlistID, store.ErrNotFound)
		}
		next := current.Clone()
		next.Rev++
		next.UpdatedAt = time.Now()
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	songs, err := m.store.SongsByPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	bundle := &model.Bundle{
		Playlist: model.BundlePlaylist{
			ID:          playlist.ID,
			Title:       playlist.Title,
			Description: playlist.Description,
			Rev:         playlist.Rev,
		},
	}
	if playlist.CoverKey != "" {
		bundle.Playlist.ImageLocator = "blob://" + playlist.CoverKey
	}
	for _, s := range orderSongs(playlist, songs) {
		desc := model.BundleSong{
			ID:               s.ID,
			Title:            s.Title,
			Artist:           s.Artist,
			Album:            s.Album,
			Duration:         s.Duration,
			OriginalFilename: s.OriginalFilename,
			SafeFilename:     SafeFilename(s.OriginalFilename),
			FileSize:         s.FileSize,
			MimeType:         s.MimeType,
			SHA:              s.SHA,
		}
		if s.AudioKey != "" {
			desc.AudioLocator = "blob://" + s.AudioKey
		} else if s.PayloadLocator != "" {
			desc.AudioLocator = s.PayloadLocator
		}
		bundle.Songs = append(bundle.Songs, desc)
	}
	return bundle, nil
}
