package store

import (
	"context"
	"sort"
	"sync"

	"CrateFM/model"
)

// MemoryStore is a mutex-guarded in-memory Store used in tests and in
// single-process deployments that do not need MySQL durability.
type MemoryStore struct {
	mu        sync.RWMutex
	playlists map[string]*model.Playlist
	songs     map[string]*model.Song

	// write counters let tests assert zero-write properties
	puts    int
	deletes int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		playlists: make(map[string]*model.Playlist),
		songs:     make(map[string]*model.Song),
	}
}

// WriteCount returns the total number of committed put/delete operations.
func (m *MemoryStore) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts + m.deletes
}

func (m *MemoryStore) GetPlaylist(_ context.Context, id string) (*model.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playlists[id].Clone(), nil
}

func (m *MemoryStore) GetAllPlaylists(_ context.Context) ([]*model.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Playlist, 0, len(m.playlists))
	for _, p := range m.playlists {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) PutPlaylist(_ context.Context, p *model.Playlist) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlists[p.ID] = p.Clone()
	m.puts++
	return nil
}

func (m *MemoryStore) DeletePlaylist(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.playlists, id)
	m.deletes++
	return nil
}

func (m *MemoryStore) GetSong(_ context.Context, id string) (*model.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.songs[id].Clone(), nil
}

func (m *MemoryStore) GetAllSongs(_ context.Context) ([]*model.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Song, 0, len(m.songs))
	for _, s := range m.songs {
		out = append(out, s.Clone())
	}
	sortSongs(out)
	return out, nil
}

func (m *MemoryStore) PutSong(_ context.Context, s *model.Song) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs[s.ID] = s.Clone()
	m.puts++
	return nil
}

func (m *MemoryStore) DeleteSong(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.songs, id)
	m.deletes++
	return nil
}

func (m *MemoryStore) SongsByPlaylist(_ context.Context, playlistID string) ([]*model.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Song, 0)
	for _, s := range m.songs {
		if s.PlaylistID == playlistID {
			out = append(out, s.Clone())
		}
	}
	sortSongs(out)
	return out, nil
}

// Transact buffers fn's writes and applies them all-or-nothing.
func (m *MemoryStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	tx := &memoryTx{base: m, ops: nil}
	if err := fn(tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range tx.ops {
		op()
	}
	return nil
}

// memoryTx overlays pending writes on a MemoryStore. Reads see the pending
// writes; commit replays them under the store lock.
type memoryTx struct {
	base    *MemoryStore
	ops     []func()
	pending struct {
		playlists map[string]*model.Playlist // nil value = pending delete
		songs     map[string]*model.Song
		plDeleted map[string]bool
		sgDeleted map[string]bool
	}
}

func (t *memoryTx) ensure() {
	if t.pending.playlists == nil {
		t.pending.playlists = make(map[string]*model.Playlist)
		t.pending.songs = make(map[string]*model.Song)
		t.pending.plDeleted = make(map[string]bool)
		t.pending.sgDeleted = make(map[string]bool)
	}
}

func (t *memoryTx) GetPlaylist(ctx context.Context, id string) (*model.Playlist, error) {
	t.ensure()
	if t.pending.plDeleted[id] {
		return nil, nil
	}
	if p, ok := t.pending.playlists[id]; ok {
		return p.Clone(), nil
	}
	return t.base.GetPlaylist(ctx, id)
}

func (t *memoryTx) GetAllPlaylists(ctx context.Context) ([]*model.Playlist, error) {
	t.ensure()
	all, err := t.base.GetAllPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Playlist, 0, len(all))
	for _, p := range all {
		if t.pending.plDeleted[p.ID] {
			continue
		}
		if upd, ok := t.pending.playlists[p.ID]; ok {
			out = append(out, upd.Clone())
			continue
		}
		out = append(out, p)
	}
	for id, p := range t.pending.playlists {
		if !containsPlaylist(out, id) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (t *memoryTx) PutPlaylist(_ context.Context, p *model.Playlist) error {
	if err := p.Validate(); err != nil {
		return err
	}
	t.ensure()
	cp := p.Clone()
	t.pending.playlists[p.ID] = cp
	delete(t.pending.plDeleted, p.ID)
	t.ops = append(t.ops, func() {
		t.base.playlists[cp.ID] = cp
		t.base.puts++
	})
	return nil
}

func (t *memoryTx) DeletePlaylist(_ context.Context, id string) error {
	t.ensure()
	delete(t.pending.playlists, id)
	t.pending.plDeleted[id] = true
	t.ops = append(t.ops, func() {
		delete(t.base.playlists, id)
		t.base.deletes++
	})
	return nil
}

func (t *memoryTx) GetSong(ctx context.Context, id string) (*model.Song, error) {
	t.ensure()
	if t.pending.sgDeleted[id] {
		return nil, nil
	}
	if s, ok := t.pending.songs[id]; ok {
		return s.Clone(), nil
	}
	return t.base.GetSong(ctx, id)
}

func (t *memoryTx) GetAllSongs(ctx context.Context) ([]*model.Song, error) {
	t.ensure()
	all, err := t.base.GetAllSongs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Song, 0, len(all))
	for _, s := range all {
		if t.pending.sgDeleted[s.ID] {
			continue
		}
		if upd, ok := t.pending.songs[s.ID]; ok {
			out = append(out, upd.Clone())
			continue
		}
		out = append(out, s)
	}
	for id, s := range t.pending.songs {
		if !containsSong(out, id) {
			out = append(out, s.Clone())
		}
	}
	sortSongs(out)
	return out, nil
}

func (t *memoryTx) PutSong(_ context.Context, s *model.Song) error {
	if err := s.Validate(); err != nil {
		return err
	}
	t.ensure()
	cp := s.Clone()
	t.pending.songs[s.ID] = cp
	delete(t.pending.sgDeleted, s.ID)
	t.ops = append(t.ops, func() {
		t.base.songs[cp.ID] = cp
		t.base.puts++
	})
	return nil
}

func (t *memoryTx) DeleteSong(_ context.Context, id string) error {
	t.ensure()
	delete(t.pending.songs, id)
	t.pending.sgDeleted[id] = true
	t.ops = append(t.ops, func() {
		delete(t.base.songs, id)
		t.base.deletes++
	})
	return nil
}

func (t *memoryTx) SongsByPlaylist(ctx context.Context, playlistID string) ([]*model.Song, error) {
	all, err := t.GetAllSongs(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if s.PlaylistID == playlistID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Nested transactions just run against the same pending overlay.
func (t *memoryTx) Transact(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func sortSongs(songs []*model.Song) {
	sort.Slice(songs, func(i, j int) bool {
		if songs[i].Position != songs[j].Position {
			return songs[i].Position < songs[j].Position
		}
		if !songs[i].CreatedAt.Equal(songs[j].CreatedAt) {
			return songs[i].CreatedAt.Before(songs[j].CreatedAt)
		}
		return songs[i].ID < songs[j].ID
	})
}

func containsPlaylist(list []*model.Playlist, id string) bool {
	for _, p := range list {
		if p.ID == id {
			return true
		}
	}
	return false
}

func containsSong(list []*model.Song, id string) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}
