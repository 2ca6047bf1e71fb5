package db

// q:  why are the foreign keys pointers to ints?
//
// a:  so they will be true sqlite null values instead of go zero
//     values when we save a row without that value

// Track represents the tracks table. Rows are written only by the scanner.
// ExclusionTime is never persisted here - the library layer stamps it while
// merging the exclusions table into a snapshot.
type Track struct {
	IDBase
	CrudBase
	Title       string
	Artist      string
	ArtistID    *int `gorm:"index" sql:"type:int REFERENCES artists(id) ON DELETE CASCADE"`
	Album       string
	AlbumID     *int `gorm:"index" sql:"type:int REFERENCES albums(id) ON DELETE CASCADE"`
	Duration    int  // milliseconds
	DiscNumber  int
	TrackNumber int
	Year        int
	Path        string `gorm:"not null;unique_index"`
	CoverPath   string
	Size        int
	AddedDate   int64 // epoch seconds the file entered the index

	ExclusionTime *int64 `gorm:"-"` // epoch seconds, nil when the track is active
}

func (t *Track) MediaURI() string {
	return "file://" + t.Path
}

func (t *Track) Excluded() bool {
	return t.ExclusionTime != nil
}

// Album represents the albums table. TrackCount here is what the scanner saw
// on disk, exclusions included - the library layer recomputes it.
type Album struct {
	IDBase
	CrudBase
	Title      string `gorm:"not null;index"`
	Artist     string
	ArtistID   *int `gorm:"index" sql:"type:int REFERENCES artists(id) ON DELETE CASCADE"`
	TrackCount int
	Year       int
	CoverPath  string
}

// Artist represents the artists table. Counts follow the same rule as
// Album.TrackCount. CoverPath is borrowed from the artist's most recent
// album.
type Artist struct {
	IDBase
	CrudBase
	Name       string `gorm:"not null;unique_index"`
	AlbumCount int
	TrackCount int
	CoverPath  string
}

// TrackExclusion represents the track_exclusions table: tracks the user has
// hidden from the library. Keyed by track id, so excluding twice is a no-op.
type TrackExclusion struct {
	TrackID     int   `gorm:"primary_key;auto_increment:false"`
	ExcludeDate int64 // epoch seconds
}

/// UsageEvent represents the usage_events table: one row per "track played to
// completion" report. Append only, never pruned here.
type UsageEvent struct {
	ID        string `gorm:"primary_key"`
	TrackID   int    `gorm:"not null;index"`
	EventTime int64  `gorm:"not null;index"` // epoch seconds
}

// TrackUsage is the aggregated view over usage events since some cutoff. Not
// a table.
type TrackUsage struct {
	TrackID       int
	Score         int   // event count in the window
	LastEventTime int64 // epoch seconds
}

// Playlist represents the playlists table.
type Playlist struct {
	IDBase
	CrudBase
	Name     string `gorm:"not null"`
	IconPath string
}

// PlaylistItem represents the playlist_items table, an ordered track id
// membership list. Items may reference tracks that no longer resolve - those
// are dropped silently at read time, not here.
type PlaylistItem struct {
	IDBase
	PlaylistID *int `gorm:"not null;index" sql:"type:int REFERENCES playlists(id) ON DELETE CASCADE"`
	TrackID    int  `gorm:"not null"`
	Position   int  `gorm:"not null"`
}
