package model

import (
	"fmt"
	"time"
)

// Playlist represents one ordered collection of songs in the library.
// The authoritative song order is SongIDs; Song.Position is informational only.
type Playlist struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SongIDs     []string  `json:"songIds"`
	Rev         int64     `json:"rev"` // bumped by exactly 1 on each export, never decreases
	CoverKey    string    `json:"coverKey,omitempty"`
	CoverMime   string    `json:"coverMime,omitempty"`
	// NeedsPayloadLoad marks the cover image as not yet materialized locally.
	// PayloadLocator tells the lazy loader where to fetch it from.
	NeedsPayloadLoad bool      `json:"needsPayloadLoad"`
	PayloadLocator   string    `json:"payloadLocator,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// EntityID implements Entity.
func (p *Playlist) EntityID() string { return p.ID }

// Clone returns a deep copy. Mutation callbacks receive clones so that a failed
// transaction never leaves a half-edited entity visible to the caller.
func (p *Playlist) Clone() *Playlist {
	if p == nil {
		return nil
	}
	cp := *p
	cp.SongIDs = append([]string(nil), p.SongIDs...)
	return &cp
}

// Validate checks the record shape at the store boundary.
func (p *Playlist) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("playlist: empty id")
	}
	if p.Rev < 0 {
		return fmt.Errorf("playlist %s: negative rev %d", p.ID, p.Rev)
	}
	for _, sid := range p.SongIDs {
		if sid == "" {
			return fmt.Errorf("playlist %s: empty song id in songIds", p.ID)
		}
	}
	return nil
}

// ContainsSong reports whether id appears in SongIDs.
func (p *Playlist) ContainsSong(id string) bool {
	for _, sid := range p.SongIDs {
		if sid == id {
			return true
		}
	}
	return false
}

// RemoveSongID drops id from SongIDs, preserving order.
func (p *Playlist) RemoveSongID(id string) {
	out := p.SongIDs[:0]
	for _, sid := range p.SongIDs {
		if sid != id {
			out = append(out, sid)
		}
	}
	p.SongIDs = out
}

// UpdatePlaylistParams carries a partial playlist update.
// nil means "leave unchanged"; a non-nil pointer replaces the field wholesale.
// This is the single place the replace-or-ignore policy is defined.
type UpdatePlaylistParams struct {
	Title       *string
	Description *string
	SongIDs     *[]string
}

// Apply writes the non-nil fields onto p and stamps UpdatedAt.
func (u UpdatePlaylistParams) Apply(p *Playlist, now time.Time) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.SongIDs != nil {
		p.SongIDs = append([]string(nil), (*u.SongIDs)...)
	}
	p.UpdatedAt = now
}
