package batch

import (
	"context"
	"fmt"
	"time"

	"tubegrab/tracks"
	"tubegrab/youtube"
)

// MaxItems is the largest batch a task accepts.
const MaxItems = 1000

type ItemKind int

const (
	ItemURL ItemKind = iota
	ItemTrack
)

// WorkItem is one unit of input: a raw URL or a track pending resolution.
type WorkItem struct {
	Kind  ItemKind     `json:"kind"`
	URL   string       `json:"url,omitempty"`
	Track tracks.Track `json:"track"`
}

func URLItem(url string) WorkItem {
	return WorkItem{Kind: ItemURL, URL: url}
}

func TrackItem(track tracks.Track) WorkItem {
	return WorkItem{Kind: ItemTrack, Track: track}
}

func URLItems(urls []string) []WorkItem {
	items := make([]WorkItem, len(urls))
	for i, u := range urls {
		items[i] = URLItem(u)
	}
	return items
}

func TrackItems(list []tracks.Track) []WorkItem {
	items := make([]WorkItem, len(list))
	for i, tr := range list {
		items[i] = TrackItem(tr)
	}
	return items
}

func (w WorkItem) String() string {
	if w.Kind == ItemTrack {
		return w.Track.String()
	}
	return w.URL
}

// Spec describes one batch run. It is read-only once handed to a Task.
type Spec struct {
	Items        []WorkItem
	TargetDir    string
	IncludeVideo bool
}

type OutcomeKind int

const (
	Downloaded OutcomeKind = iota
	InvalidURL
	VideoUnavailable
	TrackNotFound
	Failed
)

var outcomeNames = map[OutcomeKind]string{
	Downloaded:       "downloaded",
	InvalidURL:       "invalid_url",
	VideoUnavailable: "video_unavailable",
	TrackNotFound:    "track_not_found",
	Failed:           "failed",
}

func (k OutcomeKind) String() string {
	if name, ok := outcomeNames[k]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// MarshalText lets tallies encode as JSON objects keyed by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the classification of a single processed item.
type Outcome struct {
	Index int
	Kind  OutcomeKind
	Item  WorkItem
	Path  string
	Err   error
}

type State int

const (
	Idle State = iota
	Running
	CancelRequested
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case CancelRequested:
		return "cancel_requested"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a worker is still processing items.
func (s State) Active() bool {
	return s == Running || s == CancelRequested
}

func (s State) Terminal() bool {
	return s == Completed || s == Cancelled
}

// Snapshot is a point-in-time progress report. Observers receive copies.
type Snapshot struct {
	TaskID    string
	State     State
	Processed int
	Total     int
	Tally     map[OutcomeKind]int
	Last      *Outcome
}

// Status is the progress line shown while a run is in flight, or the
// final summary line once it ended.
func (s Snapshot) Status() string {
	if s.State.Terminal() {
		return s.summary().Status()
	}
	return fmt.Sprintf("%d/%d downloaded...", s.Tally[Downloaded], s.Total)
}

func (s Snapshot) summary() Summary {
	return Summary{
		TaskID:    s.TaskID,
		State:     s.State,
		Processed: s.Processed,
		Total:     s.Total,
		Tally:     s.Tally,
	}
}

type VideoProvider interface {
	Resolve(ctx context.Context, url string) (*youtube.StreamDescriptor, error)
	Download(ctx context.Context, desc *youtube.StreamDescriptor, dir string) (string, error)
}

type Transcoder interface {
	MaybeTranscodeToAudio(ctx context.Context, path string) (string, error)
}

type TrackResolver interface {
	Resolve(ctx context.Context, track tracks.Track) (*tracks.Match, error)
}

type Tagger interface {
	Tag(path, artist, title string) error
}

// Dependencies are the collaborators a Task calls for each item. Resolver
// is only required for track items and Transcoder only for audio-only runs.
// Tagger is optional.
type Dependencies struct {
	Provider    VideoProvider
	Transcoder  Transcoder
	Resolver    TrackResolver
	Tagger      Tagger
	ItemTimeout time.Duration
}
