package soundcloud

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cloudwave/internal/domain/track"
)

// apiTrack is a track object as returned by /users/{name}/tracks.json.
type apiTrack struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	PermalinkURL string `json:"permalink_url"`
	WaveformURL  string `json:"waveform_url"`
}

// pagedTracks is the envelope returned when linked partitioning is enabled.
type pagedTracks struct {
	Collection []apiTrack `json:"collection"`
	NextHref   string     `json:"next_href"`
}

// ParseTracks converts an artist track list response into tracks.
// Both the plain array and the paged {"collection": [...]} form are accepted.
// Tracks without an id or waveform and repeated ids are dropped.
func ParseTracks(data []byte) ([]track.Track, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty track list response")
	}

	var items []apiTrack
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, errors.Wrap(err, "failed to parse track list")
		}
	case '{':
		var page pagedTracks
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, errors.Wrap(err, "failed to parse track list")
		}
		if page.NextHref != "" {
			zlog.Debug().Msg("track list is paged, only the first page is used")
		}
		items = page.Collection
	default:
		return nil, errors.New("track list response is not a JSON array or object")
	}

	tracks := make([]track.Track, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, track.Track{
			ID:           it.ID,
			Title:        it.Title,
			PermalinkURL: it.PermalinkURL,
			WaveformURL:  it.WaveformURL,
		})
	}

	kept := track.Dedupe(tracks)
	if dropped := len(tracks) - len(kept); dropped > 0 {
		zlog.Warn().Msgf("dropped invalid or duplicate tracks: count=%d", dropped)
	}
	return kept, nil
}
