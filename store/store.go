package store

import (
	"context"
	"errors"

	"CrateFM/model"
)

// Collection names one of the two stored entity sets.
type Collection string

const (
	Playlists Collection = "playlists"
	Songs     Collection = "songs"
)

var (
	// ErrStorageUnavailable wraps storage open/transaction failures. The store
	// performs no retries; callers surface the error.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned by mutations that require an existing record.
	ErrNotFound = errors.New("record not found")
)

// Store is the durable object store holding playlists and songs.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	GetPlaylist(ctx context.Context, id string) (*model.Playlist, error)
	GetAllPlaylists(ctx context.Context) ([]*model.Playlist, error)
	PutPlaylist(ctx context.Context, p *model.Playlist) error
	DeletePlaylist(ctx context.Context, id string) error

	GetSong(ctx context.Context, id string) (*model.Song, error)
	GetAllSongs(ctx context.Context) ([]*model.Song, error)
	PutSong(ctx context.Context, s *model.Song) error
	DeleteSong(ctx context.Context, id string) error

	// SongsByPlaylist scans the playlist_id secondary index.
	SongsByPlaylist(ctx context.Context, playlistID string) ([]*model.Song, error)

	// Transact runs fn against a store view whose operations commit
	// all-or-nothing. fn returning an error rolls everything back.
	Transact(ctx context.Context, fn func(tx Store) error) error
}
