package music

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Artist struct {
	ID     string
	Name   string
	Genres []string
}

type Album struct {
	Name   string
	Images []string
}

// Track is an immutable snapshot of a playable catalogue item.
// CorrelationID is generated locally at construction time and ties one
// enqueue event back to the user who requested it; queueing the same
// catalogue track twice yields two distinct correlation IDs.
type Track struct {
	ID            string
	Title         string
	Artists       []Artist
	Album         Album
	DurationMs    int
	SourceURI     string
	CorrelationID string
}

func NewTrack(id, title string, artists []Artist, album Album, durationMs int, sourceURI string) Track {
	return Track{
		ID:            id,
		Title:         title,
		Artists:       artists,
		Album:         album,
		DurationMs:    durationMs,
		SourceURI:     sourceURI,
		CorrelationID: uuid.NewString(),
	}
}

func (t Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

func (t Track) String() string {
	return fmt.Sprintf("%s - %s by %s", t.Title, t.Album.Name, strings.Join(t.ArtistNames(), ", "))
}
