// Package track provides the Track entity and the persisted track store.
package track

import "fmt"

// Track represents a SoundCloud track shown as wallpaper.
// Contains only information retrieved from the SoundCloud API.
type Track struct {
	ID           int64  `json:"id"`            // SoundCloud track ID
	Title        string `json:"title"`         // Shown under the soundwave
	PermalinkURL string `json:"permalink_url"` // Public track page
	WaveformURL  string `json:"waveform_url"`  // Soundwave PNG on SoundCloud
}

// IsValid reports whether the track can be stored and rendered.
func (t Track) IsValid() bool {
	return t.ID > 0 && t.WaveformURL != ""
}

// String returns a short human-readable representation.
func (t Track) String() string {
	return fmt.Sprintf("%d:%q", t.ID, t.Title)
}

// Dedupe returns tracks in their original order, dropping invalid entries and
// repeated IDs after their first occurrence.
func Dedupe(tracks []Track) []Track {
	seen := make(map[int64]bool, len(tracks))
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if !t.IsValid() || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
