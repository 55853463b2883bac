package model

import (
	"fmt"
	"time"
)

// Song represents one audio track owned by exactly one playlist.
// Audio and cover bytes live in the blob store; the record only carries their keys.
type Song struct {
	ID               string    `json:"id"`
	PlaylistID       string    `json:"playlistId"`
	Title            string    `json:"title"`
	Artist           string    `json:"artist"`
	Album            string    `json:"album"`
	Duration         float64   `json:"duration"` // seconds, 0 when unknown
	Position         int       `json:"position"` // informational; Playlist.SongIDs is authoritative
	MimeType         string    `json:"mimeType"`
	OriginalFilename string    `json:"originalFilename"`
	FileSize         int64     `json:"fileSize"`
	SHA              string    `json:"sha,omitempty"` // hex digest of raw audio bytes; "" means never hashed
	AudioKey         string    `json:"audioKey,omitempty"`
	CoverKey         string    `json:"coverKey,omitempty"`
	CoverMime        string    `json:"coverMime,omitempty"`
	NeedsPayloadLoad bool      `json:"needsPayloadLoad"`
	PayloadLocator   string    `json:"payloadLocator,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// EntityID implements Entity.
func (s *Song) EntityID() string { return s.ID }

// Clone returns a copy safe to hand to mutation callbacks.
func (s *Song) Clone() *Song {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Validate checks the record shape at the store boundary.
func (s *Song) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("song: empty id")
	}
	if s.PlaylistID == "" {
		return fmt.Errorf("song %s: empty playlistId", s.ID)
	}
	if s.Duration < 0 {
		return fmt.Errorf("song %s: negative duration", s.ID)
	}
	if s.FileSize < 0 {
		return fmt.Errorf("song %s: negative fileSize", s.ID)
	}
	return nil
}

// HasAudio reports whether the audio payload has been materialized locally.
func (s *Song) HasAudio() bool { return s.AudioKey != "" }

// UpdateSongParams carries a partial song update.
// nil means "leave unchanged"; a non-nil pointer replaces the field wholesale.
type UpdateSongParams struct {
	Title            *string
	Artist           *string
	Album            *string
	Duration         *float64
	Position         *int
	MimeType         *string
	OriginalFilename *string
}

// Apply writes the non-nil fields onto s and stamps UpdatedAt.
func (u UpdateSongParams) Apply(s *Song, now time.Time) {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Artist != nil {
		s.Artist = *u.Artist
	}
	if u.Album != nil {
		s.Album = *u.Album
	}
	if u.Duration != nil {
		s.Duration = *u.Duration
	}
	if u.Position != nil {
		s.Position = *u.Position
	}
	if u.MimeType != nil {
		s.MimeType = *u.MimeType
	}
	if u.OriginalFilename != nil {
		s.OriginalFilename = *u.OriginalFilename
	}
	s.UpdatedAt = now
}
