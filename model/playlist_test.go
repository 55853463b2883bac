package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaylistClone_IsIndependent(t *testing.T) {
	p := &Playlist{ID: "p1", Title: "one", SongIDs: []string{"s1", "s2"}}
	cp := p.Clone()
	cp.Title = "changed"
	cp.SongIDs[0] = "other"

	assert.Equal(t, "one", p.Title)
	assert.Equal(t, []string{"s1", "s2"}, p.SongIDs)

	var nilP *Playlist
	assert.Nil(t, nilP.Clone())
}

func TestPlaylistValidate(t *testing.T) {
	ok := &Playlist{ID: "p1", SongIDs: []string{"s1"}}
	require.NoError(t, ok.Validate())

	assert.Error(t, (&Playlist{}).Validate())
	assert.Error(t, (&Playlist{ID: "p1", Rev: -1}).Validate())
	assert.Error(t, (&Playlist{ID: "p1", SongIDs: []string{""}}).Validate())
}

func TestRemoveSongID_PreservesOrder(t *testing.T) {
	p := &Playlist{ID: "p1", SongIDs: []string{"a", "b", "c", "b"}}
	p.RemoveSongID("b")
	assert.Equal(t, []string{"a", "c"}, p.SongIDs)

	p.RemoveSongID("missing")
	assert.Equal(t, []string{"a", "c"}, p.SongIDs)
}

func TestUpdatePlaylistParams_ReplaceOrIgnore(t *testing.T) {
	now := time.Now()
	p := &Playlist{ID: "p1", Title: "old", Description: "desc", SongIDs: []string{"s1"}}

	// nil 指针的字段保持不变
	UpdatePlaylistParams{}.Apply(p, now)
	assert.Equal(t, "old", p.Title)
	assert.Equal(t, now, p.UpdatedAt)

	title := ""
	ids := []string{"s2", "s3"}
	UpdatePlaylistParams{Title: &title, SongIDs: &ids}.Apply(p, now)
	assert.Equal(t, "", p.Title, "explicit empty string is a real value")
	assert.Equal(t, []string{"s2", "s3"}, p.SongIDs)
	assert.Equal(t, "desc", p.Description)

	// Apply 拷贝切片，外部改动不会穿透
	ids[0] = "mutated"
	assert.Equal(t, "s2", p.SongIDs[0])
}

func TestUpdateSongParams_ReplaceOrIgnore(t *testing.T) {
	now := time.Now()
	s := &Song{ID: "s1", PlaylistID: "p1", Title: "old", Artist: "a", Duration: 10}

	artist := "new artist"
	dur := 0.0
	UpdateSongParams{Artist: &artist, Duration: &dur}.Apply(s, now)
	assert.Equal(t, "old", s.Title)
	assert.Equal(t, "new artist", s.Artist)
	assert.Equal(t, 0.0, s.Duration, "explicit zero is a real value")
}
