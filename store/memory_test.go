package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrateFM/model"
)

func testPlaylist(id string) *model.Playlist {
	now := time.Now()
	return &model.Playlist{
		ID:        id,
		Title:     "playlist " + id,
		SongIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testSong(id, playlistID string) *model.Song {
	now := time.Now()
	return &model.Song{
		ID:         id,
		PlaylistID: playlistID,
		Title:      "song " + id,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMemoryStore_GetAllReflectsLiveSet(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.PutPlaylist(ctx, testPlaylist("p1")))
	require.NoError(t, st.PutPlaylist(ctx, testPlaylist("p2")))
	require.NoError(t, st.PutPlaylist(ctx, testPlaylist("p3")))
	require.NoError(t, st.DeletePlaylist(ctx, "p2"))

	all, err := st.GetAllPlaylists(ctx)
	require.NoError(t, err)

	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.ID
	}
	assert.ElementsMatch(t, []string{"p1", "p3"}, ids)

	// absent key reads as (nil, nil)
	got, err := st.GetPlaylist(ctx, "p2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_PutOverwritesByKey(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	p := testPlaylist("p1")
	require.NoError(t, st.PutPlaylist(ctx, p))

	p2 := p.Clone()
	p2.Title = "renamed"
	require.NoError(t, st.PutPlaylist(ctx, p2))

	got, err := st.GetPlaylist(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	all, err := st.GetAllPlaylists(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_SongsByPlaylist(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.PutSong(ctx, testSong("s1", "p1")))
	require.NoError(t, st.PutSong(ctx, testSong("s2", "p1")))
	require.NoError(t, st.PutSong(ctx, testSong("s3", "p2")))

	songs, err := st.SongsByPlaylist(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, songs, 2)
	for _, s := range songs {
		assert.Equal(t, "p1", s.PlaylistID)
	}
}

func TestMemoryStore_ValidatesAtBoundary(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	err := st.PutPlaylist(ctx, &model.Playlist{ID: ""})
	assert.Error(t, err)

	err = st.PutSong(ctx, &model.Song{ID: "s1", PlaylistID: ""})
	assert.Error(t, err)

	assert.Equal(t, 0, st.WriteCount())
}

func TestMemoryStore_TransactRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.PutPlaylist(ctx, testPlaylist("p1")))
	before := st.WriteCount()

	boom := errors.New("boom")
	err := st.Transact(ctx, func(tx Store) error {
		if err := tx.PutPlaylist(ctx, testPlaylist("p2")); err != nil {
			return err
		}
		if err := tx.DeletePlaylist(ctx, "p1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// nothing committed
	assert.Equal(t, before, st.WriteCount())
	p1, err := st.GetPlaylist(ctx, "p1")
	require.NoError(t, err)
	assert.NotNil(t, p1)
	p2, err := st.GetPlaylist(ctx, "p2")
	require.NoError(t, err)
	assert.Nil(t, p2)
}

func TestMemoryStore_TransactReadsSeePendingWrites(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.PutSong(ctx, testSong("s1", "p1")))

	err := st.Transact(ctx, func(tx Store) error {
		require.NoError(t, tx.DeleteSong(ctx, "s1"))
		gone, err := tx.GetSong(ctx, "s1")
		require.NoError(t, err)
		assert.Nil(t, gone)

		require.NoError(t, tx.PutSong(ctx, testSong("s2", "p1")))
		visible, err := tx.GetSong(ctx, "s2")
		require.NoError(t, err)
		assert.NotNil(t, visible)
		return nil
	})
	require.NoError(t, err)

	all, err := st.GetAllSongs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "s2", all[0].ID)
}
