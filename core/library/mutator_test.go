package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrateFM/core/livequery"
	"CrateFM/model"
	"CrateFM/store"
)

func TestMutatePlaylist_NotifiesSynchronously(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	hub := livequery.NewHub(st, nil)
	mut := NewMutator(st, hub)

	sub, err := hub.Subscribe(ctx, livequery.Query{Collection: store.Playlists, Fields: []string{"id", "title"}})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var seen string
	sub.OnChange(func(rows []livequery.Row) {
		if len(rows) == 1 {
			seen, _ = rows[0]["title"].(string)
		}
	})

	now := time.Now()
	_, err = mut.MutatePlaylist(ctx, "p1", func(current *model.Playlist) (*model.Playlist, error) {
		require.Nil(t, current, "fresh key hands fn a nil current")
		return &model.Playlist{ID: "p1", Title: "first", SongIDs: []string{}, CreatedAt: now, UpdatedAt: now}, nil
	})
	require.NoError(t, err)

	// 回调在 MutatePlaylist 返回前已经跑完
	assert.Equal(t, "first", seen)
}

func TestMutatePlaylist_FnErrorAbortsWithoutNotify(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	hub := livequery.NewHub(st, nil)
	mut := NewMutator(st, hub)

	sub, err := hub.Subscribe(ctx, livequery.Query{Collection: store.Playlists})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	var fired int
	sub.OnChange(func([]livequery.Row) { fired++ })

	boom := errors.New("boom")
	writes := st.WriteCount()
	_, err = mut.MutatePlaylist(ctx, "p1", func(*model.Playlist) (*model.Playlist, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, writes, st.WriteCount(), "aborted mutate writes nothing")
	assert.Equal(t, 0, fired, "aborted mutate notifies nobody")
	p, err := st.GetPlaylist(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMutateSong_FnSeesCommittedState(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	hub := livequery.NewHub(st, nil)
	mut := NewMutator(st, hub)

	now := time.Now()
	_, err := mut.MutateSong(ctx, "s1", func(*model.Song) (*model.Song, error) {
		return &model.Song{ID: "s1", PlaylistID: "p1", Title: "v1", CreatedAt: now, UpdatedAt: now}, nil
	})
	require.NoError(t, err)

	s, err := mut.MutateSong(ctx, "s1", func(current *model.Song) (*model.Song, error) {
		require.NotNil(t, current)
		assert.Equal(t, "v1", current.Title)
		next := current.Clone()
		next.Title = "v2"
		return next, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "v2", s.Title)
}

func TestDeleteSongs_SingleTransactionPerSongNotices(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	hub := livequery.NewHub(st, nil)
	mut := NewMutator(st, hub)

	now := time.Now()
	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := mut.MutateSong(ctx, id, func(*model.Song) (*model.Song, error) {
			return &model.Song{ID: id, PlaylistID: "p1", CreatedAt: now, UpdatedAt: now}, nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, mut.DeleteSongs(ctx, []string{"s1", "s3"}))

	left, err := st.GetAllSongs(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "s2", left[0].ID)

	// 空列表是空操作
	require.NoError(t, mut.DeleteSongs(ctx, nil))
}
