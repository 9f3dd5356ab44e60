package track

// Unset marks a store index that does not point at any track.
const Unset = -1

// Store is the persisted state of the wallpaper: the artist, the artist's tracks
// in fetch order and the two cursors into that list.
type Store struct {
	ArtistName        string  `json:"artist_name"`
	Tracks            []Track `json:"tracks"`
	CurrentTrackIndex int     `json:"current_track_index"`
	NextRandomIndex   int     `json:"next_random_index"`
}

// NewStore returns the default store for an artist: no tracks, both cursors unset.
func NewStore(artistName string) *Store {
	return &Store{
		ArtistName:        artistName,
		Tracks:            []Track{},
		CurrentTrackIndex: Unset,
		NextRandomIndex:   Unset,
	}
}

// IsEmpty returns true if the store holds no tracks.
func (s *Store) IsEmpty() bool {
	return len(s.Tracks) == 0
}

// validIndex reports whether i points at a track.
func (s *Store) validIndex(i int) bool {
	return i >= 0 && i < len(s.Tracks)
}

// Normalize resets cursors that do not point at a track to Unset.
// Returns true if anything was changed.
func (s *Store) Normalize() bool {
	changed := false
	if s.Tracks == nil {
		s.Tracks = []Track{}
	}
	if !s.validIndex(s.CurrentTrackIndex) && s.CurrentTrackIndex != Unset {
		s.CurrentTrackIndex = Unset
		changed = true
	}
	if !s.validIndex(s.NextRandomIndex) && s.NextRandomIndex != Unset {
		s.NextRandomIndex = Unset
		changed = true
	}
	return changed
}

// CurrentTrack returns the track currently shown.
func (s *Store) CurrentTrack() (Track, bool) {
	if !s.validIndex(s.CurrentTrackIndex) {
		return Track{}, false
	}
	return s.Tracks[s.CurrentTrackIndex], true
}

// NextTrack returns the track that will be shown on the next change.
func (s *Store) NextTrack() (Track, bool) {
	if !s.validIndex(s.NextRandomIndex) {
		return Track{}, false
	}
	return s.Tracks[s.NextRandomIndex], true
}

// SetTracks replaces the track list and unsets both cursors.
func (s *Store) SetTracks(tracks []Track) {
	s.Tracks = Dedupe(tracks)
	s.CurrentTrackIndex = Unset
	s.NextRandomIndex = Unset
}

// Advance makes the next track current and asks pick for a new next index.
// pick receives the number of tracks and must return an index in [0, n).
// Advance is a no-op on an empty store or when no next track is set.
func (s *Store) Advance(pick func(n int) int) bool {
	if s.IsEmpty() || !s.validIndex(s.NextRandomIndex) {
		return false
	}
	s.CurrentTrackIndex = s.NextRandomIndex
	s.NextRandomIndex = pick(len(s.Tracks))
	return true
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	cp := *s
	cp.Tracks = make([]Track, len(s.Tracks))
	copy(cp.Tracks, s.Tracks)
	return &cp
}
