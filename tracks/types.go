package tracks

import (
	"strings"

	"tubegrab/youtube"
)

// Track is a playlist entry waiting to be mapped to a YouTube video.
type Track struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// Query is the search phrase used to find candidate videos.
func (t Track) Query() string {
	return strings.TrimSpace(t.Artist + " " + t.Title)
}

func (t Track) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// Page is one fixed-size slice of a playlist.
type Page struct {
	Tracks     []Track
	HasNext    bool
	NextOffset int
	Total      int
}

// Match is a track resolved to a downloadable video.
type Match struct {
	Track      Track
	VideoID    string
	Title      string
	URL        string
	Descriptor *youtube.StreamDescriptor
}
