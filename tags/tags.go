// Package tags reads audio metadata during scans. The scanner only depends
// on the Reader interface, so tests can swap in a stub instead of shelling
// into taglib.
package tags

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sentriz/audiotags"

	"go.senan.xyz/chorus/mime"
)

var ErrUnsupported = errors.New("filetype unsupported")

const (
	FallbackAlbum  = "Unknown Album"
	FallbackArtist = "Unknown Artist"
)

type Info struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	TrackNumber int
	DiscNumber  int
	Year        int
	LengthMs    int
	Bitrate     int
}

// SomeArtist is the artist for grouping purposes, falling back when the file
// is untagged.
func (i *Info) SomeArtist() string {
	if i.AlbumArtist != "" {
		return i.AlbumArtist
	}
	if i.Artist != "" {
		return i.Artist
	}
	return FallbackArtist
}

func (i *Info) SomeAlbum() string {
	if i.Album != "" {
		return i.Album
	}
	return FallbackAlbum
}

type Reader interface {
	CanRead(absPath string) bool
	Read(absPath string) (*Info, error)
}

type TagLib struct{}

func (TagLib) CanRead(absPath string) bool {
	return mime.FromPath(absPath) != ""
}

func (TagLib) Read(absPath string) (*Info, error) {
	if mime.FromPath(absPath) == "" {
		return nil, ErrUnsupported
	}
	f, err := audiotags.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	props := f.ReadAudioProperties()
	raw := f.ReadTags()

	// https://picard-docs.musicbrainz.org/downloads/MusicBrainz_Picard_Tag_Map.html
	return &Info{
		Title:       first(find(raw, "title")),
		Artist:      first(find(raw, "artist")),
		Album:       first(find(raw, "album")),
		AlbumArtist: first(find(raw, "albumartist", "album artist")),
		TrackNumber: intSep("/", first(find(raw, "tracknumber"))),                  // eg. 5/12
		DiscNumber:  intSep("/", first(find(raw, "discnumber"))),                   // eg. 1/2
		Year:        intSep("-", first(find(raw, "originaldate", "date", "year"))), // eg. 2023-12-01
		LengthMs:    props.Length * 1000,
		Bitrate:     props.Bitrate,
	}, nil
}

func first[T comparable](is []T) T {
	var z T
	for _, i := range is {
		if i != z {
			return i
		}
	}
	return z
}

func find(m map[string][]string, keys ...string) []string {
	for _, k := range keys {
		if r := filterStr(m[k]); len(r) > 0 {
			return r
		}
	}
	return nil
}

func filterStr(ss []string) []string {
	var r []string
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			r = append(r, s)
		}
	}
	return r
}

func intSep(sep, in string) int {
	start, _, _ := strings.Cut(in, sep)
	out, _ := strconv.Atoi(start)
	return out
}
