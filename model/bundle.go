package model

import "fmt"

// Bundle is the wire shape of one exported playlist: metadata plus song
// descriptors. Binary payloads always travel out-of-band, referenced by
// locator, never inline.
type Bundle struct {
	Playlist BundlePlaylist `json:"playlist"`
	Songs    []BundleSong   `json:"songs"`
}

// BundlePlaylist is the playlist metadata carried by a bundle.
type BundlePlaylist struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Rev            int64  `json:"rev"`
	ImageExtension string `json:"imageExtension,omitempty"`
	ImageLocator   string `json:"imageLocator,omitempty"`
}

// BundleSong is one song descriptor inside a bundle. SHA is the content hash
// of the audio bytes; an empty SHA means "never hashed" and never matches.
type BundleSong struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Artist           string  `json:"artist"`
	Album            string  `json:"album"`
	Duration         float64 `json:"duration"`
	OriginalFilename string  `json:"originalFilename"`
	SafeFilename     string  `json:"safeFilename"`
	FileSize         int64   `json:"fileSize"`
	MimeType         string  `json:"mimeType"`
	SHA              string  `json:"sha,omitempty"`
	ImageExtension   string  `json:"imageExtension,omitempty"`
	AudioLocator     string  `json:"audioLocator,omitempty"`
}

// Validate checks the bundle shape before it reaches the merge protocol.
func (b *Bundle) Validate() error {
	if b.Playlist.ID == "" {
		return fmt.Errorf("bundle: empty playlist id")
	}
	if b.Playlist.Rev < 0 {
		return fmt.Errorf("bundle %s: negative rev %d", b.Playlist.ID, b.Playlist.Rev)
	}
	seen := make(map[string]struct{}, len(b.Songs))
	for i, s := range b.Songs {
		if s.ID == "" {
			return fmt.Errorf("bundle %s: song %d has empty id", b.Playlist.ID, i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("bundle %s: duplicate song id %s", b.Playlist.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
