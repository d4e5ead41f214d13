package youtube

import (
	"regexp"
	"strings"
)

// videoURLPattern accepts an optional scheme, an optional www./m. subdomain,
// youtube.com or youtu.be, and a path that carries the video identifier via
// watch?v=, embed/, v/ or the short-host direct path.
var videoURLPattern = regexp.MustCompile(`^((?:https?:)?//)?((?:www|m)\.)?((?:youtube\.com|youtu\.be))(/(?:[\w\-]+\?v=|embed/|v/)?)([\w\-]+)(\S+)?$`)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// MaxURLLength is the longest candidate IsValidURL will accept.
const MaxURLLength = 2048

// IsValidURL reports whether candidate is a well-formed YouTube video URL.
// Surrounding whitespace is ignored so lines read from a file can be passed as-is.
func IsValidURL(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) > MaxURLLength {
		return false
	}
	return videoURLPattern.MatchString(candidate)
}

// ParseYoutubeUrl returns the video ID carried by a YouTube URL, or "" when
// the URL is not a YouTube video URL.
func ParseYoutubeUrl(_url string) string {
	matches := videoURLPattern.FindStringSubmatch(strings.TrimSpace(_url))
	if len(matches) < 6 {
		return ""
	}
	return matches[5]
}

func WatchURL(videoID string) string {
	return watchURLPrefix + videoID
}
