package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"CrateFM/model"
)

// playlistRecord is the MySQL row shape for a playlist. SongIDs are kept as a
// JSON array in one column; order in the array is the playlist order.
type playlistRecord struct {
	ID               string `gorm:"primaryKey;size:64"`
	Title            string `gorm:"size:255"`
	Description      string `gorm:"type:text"`
	SongIDs          string `gorm:"column:song_ids;type:text"`
	Rev              int64
	CoverKey         string `gorm:"size:255"`
	CoverMime        string `gorm:"size:64"`
	NeedsPayloadLoad bool
	PayloadLocator   string `gorm:"size:512"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (playlistRecord) TableName() string { return "playlists" }

// songRecord is the MySQL row shape for a song. playlist_id carries the
// secondary index used by SongsByPlaylist.
type songRecord struct {
	ID               string `gorm:"primaryKey;size:64"`
	PlaylistID       string `gorm:"index;size:64"`
	Title            string `gorm:"size:255"`
	Artist           string `gorm:"size:255"`
	Album            string `gorm:"size:255"`
	Duration         float64
	Position         int
	MimeType         string `gorm:"size:64"`
	OriginalFilename string `gorm:"size:512"`
	FileSize         int64
	SHA              string `gorm:"column:sha;size:128"`
	AudioKey         string `gorm:"size:255"`
	CoverKey         string `gorm:"size:255"`
	CoverMime        string `gorm:"size:64"`
	NeedsPayloadLoad bool
	PayloadLocator   string `gorm:"size:512"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (songRecord) TableName() string { return "songs" }

func toPlaylistRecord(p *model.Playlist) (*playlistRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ids, err := json.Marshal(p.SongIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal songIds for playlist %s: %w", p.ID, err)
	}
	return &playlistRecord{
		ID:               p.ID,
		Title:            p.Title,
		Description:      p.Description,
		SongIDs:          string(ids),
		Rev:              p.Rev,
		CoverKey:         p.CoverKey,
		CoverMime:        p.CoverMime,
		NeedsPayloadLoad: p.NeedsPayloadLoad,
		PayloadLocator:   p.PayloadLocator,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}, nil
}

func fromPlaylistRecord(r *playlistRecord) (*model.Playlist, error) {
	var ids []string
	if r.SongIDs != "" {
		if err := json.Unmarshal([]byte(r.SongIDs), &ids); err != nil {
			return nil, fmt.Errorf("malformed songIds for playlist %s: %w", r.ID, err)
		}
	}
	p := &model.Playlist{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		SongIDs:          ids,
		Rev:              r.Rev,
		CoverKey:         r.CoverKey,
		CoverMime:        r.CoverMime,
		NeedsPayloadLoad: r.NeedsPayloadLoad,
		PayloadLocator:   r.PayloadLocator,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	// Malformed rows are rejected on the way out too, not trusted at read time.
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func toSongRecord(s *model.Song) (*songRecord, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &songRecord{
		ID:               s.ID,
		PlaylistID:       s.PlaylistID,
		Title:            s.Title,
		Artist:           s.Artist,
		Album:            s.Album,
		Duration:         s.Duration,
		Position:         s.Position,
		MimeType:         s.MimeType,
		OriginalFilename: s.OriginalFilename,
		FileSize:         s.FileSize,
		SHA:              s.SHA,
		AudioKey:         s.AudioKey,
		CoverKey:         s.CoverKey,
		CoverMime:        s.CoverMime,
		NeedsPayloadLoad: s.NeedsPayloadLoad,
		PayloadLocator:   s.PayloadLocator,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}, nil
}

func fromSongRecord(r *songRecord) (*model.Song, error) {
	s := &model.Song{
		ID:               r.ID,
		PlaylistID:       r.PlaylistID,
		Title:            r.Title,
		Artist:           r.Artist,
		Album:            r.Album,
		Duration:         r.Duration,
		Position:         r.Position,
		MimeType:         r.MimeType,
		OriginalFilename: r.OriginalFilename,
		FileSize:         r.FileSize,
		SHA:              r.SHA,
		AudioKey:         r.AudioKey,
		CoverKey:         r.CoverKey,
		CoverMime:        r.CoverMime,
		NeedsPayloadLoad: r.NeedsPayloadLoad,
		PayloadLocator:   r.PayloadLocator,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// GormStore implements Store on MySQL through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an established GORM connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the playlists and songs tables.
func (g *GormStore) Migrate() error {
	if err := g.db.AutoMigrate(&playlistRecord{}, &songRecord{}); err != nil {
		return fmt.Errorf("%w: auto migrate failed: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (g *GormStore) GetPlaylist(ctx context.Context, id string) (*model.Playlist, error) {
	var r playlistRecord
	err := g.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get playlist %s: %v", ErrStorageUnavailable, id, err)
	}
	return fromPlaylistRecord(&r)
}

func (g *GormStore) GetAllPlaylists(ctx context.Context) ([]*model.Playlist, error) {
	var rows []playlistRecord
	if err := g.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: get all playlists: %v", ErrStorageUnavailable, err)
	}
	out := make([]*model.Playlist, 0, len(rows))
	for i := range rows {
		p, err := fromPlaylistRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (g *GormStore) PutPlaylist(ctx context.Context, p *model.Playlist) error {
	r, err := toPlaylistRecord(p)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("%w: put playlist %s: %v", ErrStorageUnavailable, p.ID, err)
	}
	return nil
}

func (g *GormStore) DeletePlaylist(ctx context.Context, id string) error {
	if err := g.db.WithContext(ctx).Delete(&playlistRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("%w: delete playlist %s: %v", ErrStorageUnavailable, id, err)
	}
	return nil
}

func (g *GormStore) GetSong(ctx context.Context, id string) (*model.Song, error) {
	var r songRecord
	err := g.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get song %s: %v", ErrStorageUnavailable, id, err)
	}
	return fromSongRecord(&r)
}

func (g *GormStore) GetAllSongs(ctx context.Context) ([]*model.Song, error) {
	var rows []songRecord
	if err := g.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: get all songs: %v", ErrStorageUnavailable, err)
	}
	out := make([]*model.Song, 0, len(rows))
	for i := range rows {
		s, err := fromSongRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (g *GormStore) PutSong(ctx context.Context, s *model.Song) error {
	r, err := toSongRecord(s)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Save(r).Error; err != nil {
		return fmt.Errorf("%w: put song %s: %v", ErrStorageUnavailable, s.ID, err)
	}
	return nil
}

func (g *GormStore) DeleteSong(ctx context.Context, id string) error {
	if err := g.db.WithContext(ctx).Delete(&songRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("%w: delete song %s: %v", ErrStorageUnavailable, id, err)
	}
	return nil
}

func (g *GormStore) SongsByPlaylist(ctx context.Context, playlistID string) ([]*model.Song, error) {
	var rows []songRecord
	err := g.db.WithContext(ctx).Where("playlist_id = ?", playlistID).Order("position, created_at").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: songs by playlist %s: %v", ErrStorageUnavailable, playlistID, err)
	}
	out := make([]*model.Song, 0, len(rows))
	for i := range rows {
		s, err := fromSongRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Transact runs fn inside one database transaction.
func (g *GormStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	// fn errors roll the transaction back and surface unchanged, so callers
	// still recognize their own sentinels (ErrNotFound in particular).
	return g.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		return fn(&GormStore{db: txdb})
	})
}
