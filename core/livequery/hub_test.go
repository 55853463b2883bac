package livequery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CrateFM/model"
	"CrateFM/store"
)

func putPlaylist(t *testing.T, st *store.MemoryStore, id, title string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, st.PutPlaylist(context.Background(), &model.Playlist{
		ID: id, Title: title, SongIDs: []string{}, CreatedAt: now, UpdatedAt: now,
	}))
}

func putSong(t *testing.T, st *store.MemoryStore, id, playlistID, title string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, st.PutSong(context.Background(), &model.Song{
		ID: id, PlaylistID: playlistID, Title: title, CreatedAt: now, UpdatedAt: now,
	}))
}

func TestSubscribe_InitialScan(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	putPlaylist(t, st, "p1", "one")
	putPlaylist(t, st, "p2", "two")

	hub := NewHub(st, nil)
	sub, err := hub.Subscribe(ctx, Query{Collection: store.Playlists, Fields: []string{"id", "title"}})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	rows := sub.Current()
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"id": "p1", "title": "one"}, rows[0])
	assert.Equal(t, Row{"id": "p2", "title": "two"}, rows[1])
}

func TestNotify_PublishesOnlyOnActualChange(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	putPlaylist(t, st, "p1", "one")

	hub := NewHub(st, nil)
	sub, err := hub.Subscribe(ctx, Query{Collection: store.Playlists, Fields: []string{"id", "title"}})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var fired int
	sub.OnChange(func([]Row) { fired++ })

	// notification without any data change: deep-equal result, no publish
	hub.Notify(ctx, Event{Collection: store.Playlists, Key: "p1"})
	assert.Equal(t, 0, fired)

	putPlaylist(t, st, "p1", "renamed")
	hub.Notify(ctx, Event{Collection: store.Playlists, Key: "p1"})
	assert.Equal(t, 1, fired)
	assert.Equal(t, "renamed", sub.Current()[0]["title"])

	// a write that only touches fields outside the projection changes nothing visible
	putPlaylist(t, st, "p1", "renamed") // bumps UpdatedAt only
	hub.Notify(ctx, Event{Collection: store.Playlists, Key: "p1"})
	assert.Equal(t, 1, fired)
}

func TestNotify_TwoSubscriptionsEachFireOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	hub := NewHub(st, nil)

	subA, err := hub.Subscribe(ctx, Query{Collection: store.Playlists, Fields: []string{"id"}})
	require.NoError(t, err)
	defer subA.Unsubscribe()
	subB, err := hub.Subscribe(ctx, Query{Collection: store.Playlists, Fields: []string{"id"}})
	require.NoError(t, err)
	defer subB.Unsubscribe()

	var firedA, firedB int
	subA.OnChange(func(rows []Row) {
		firedA++
		assert.Len(t, rows, 1)
	})
	subB.OnChange(func(rows []Row) {
		firedB++
		assert.Len(t, rows, 1)
	})

	putPlaylist(t, st, "p1", "one")
	hub.Notify(ctx, Event{Collection: store.Playlists, Key: "p1"})

	assert.Equal(t, 1, firedA)
	assert.Equal(t, 1, firedB)
}

func TestSubscription_FilterAndLimit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	putSong(t, st, "s1", "p1", "a")
	putSong(t, st, "s2", "p2", "b")
	putSong(t, st, "s3", "p1", "c")

	hub := NewHub(st, nil)
	sub, err := hub.Subscribe(ctx, Query{
		Collection: store.Songs,
		Filter: func(e Entity) bool {
			s, ok := e.(*model.Song)
			return ok && s.PlaylistID == "p1"
		},
		Fields: []string{"id"},
		Limit:  1,
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	rows := sub.Current()
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0]["id"])
}

func TestSubscription_NeverDriftsFromGroundTruth(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	hub := NewHub(st, nil)

	sub, err := hub.Subscribe(ctx, Query{Collection: store.Songs, Fields: []string{"id", "title"}})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ops := []func(){
		func() { putSong(t, st, "s1", "p1", "a") },
		func() { putSong(t, st, "s2", "p1", "b") },
		func() { putSong(t, st, "s1", "p1", "a2") },
		func() { require.NoError(t, st.DeleteSong(ctx, "s2")) },
	}
	for _, op := range ops {
		op()
		hub.Notify(ctx, Event{Collection: store.Songs})

		// recompute the same view independently
		songs, err := st.GetAllSongs(ctx)
		require.NoError(t, err)
		want := make([]Row, 0, len(songs))
		for _, s := range songs {
			want = append(want, Row{"id": s.ID, "title": s.Title})
		}
		assert.Equal(t, want, sub.Current())
	}
}

func TestUnsubscribe_StopsCallbacks(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	hub := NewHub(st, nil)

	sub, err := hub.Subscribe(ctx, Query{Collection: store.Playlists})
	require.NoError(t, err)

	var fired int
	sub.OnChange(func([]Row) { fired++ })
	sub.Unsubscribe()

	putPlaylist(t, st, "p1", "one")
	hub.Notify(ctx, Event{Collection: store.Playlists, Key: "p1"})
	assert.Equal(t, 0, fired)
}

func TestMemoryBus_DeliversAcrossHubs(t *testing.T) {
	ctx := context.Background()
	// 两个 Hub 共享同一个持久存储，模拟两个进程
	st := store.NewMemoryStore()
	bus := NewMemoryBus()

	hubA := NewHub(st, bus.Attach())
	require.NoError(t, hubA.Start(ctx))
	defer hubA.Close()

	hubB := NewHub(st, bus.Attach())
	require.NoError(t, hubB.Start(ctx))
	defer hubB.Close()

	subB, err := hubB.Subscribe(ctx, Query{Collection: store.Playlists, Fields: []string{"id"}})
	require.NoError(t, err)
	defer subB.Unsubscribe()

	changed := make(chan []Row, 1)
	subB.OnChange(func(rows []Row) { changed <- rows })

	// 写入发生在 A 进程；B 进程只能靠跨进程通知得知
	putPlaylist(t, st, "p1", "one")
	hubA.Notify(ctx, Event{Collection: store.Playlists, Key: "p1"})

	select {
	case rows := <-changed:
		require.Len(t, rows, 1)
		assert.Equal(t, "p1", rows[0]["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("cross-process notice never arrived")
	}
}
