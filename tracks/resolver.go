package tracks

import (
	"context"
	"errors"
	"strings"

	"tubegrab/youtube"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

const MaxCandidates = 5

var ErrTrackNotFound = errors.New("no matching video found for track")

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]youtube.VideoResponse, error)
}

type StreamResolver interface {
	Resolve(ctx context.Context, url string) (*youtube.StreamDescriptor, error)
}

// Resolver maps playlist tracks to YouTube videos.
type Resolver struct {
	searcher Searcher
	streams  StreamResolver
	logger   *log.Entry
}

func NewResolver(searcher Searcher, streams StreamResolver) *Resolver {
	return &Resolver{
		searcher: searcher,
		streams:  streams,
		logger:   log.WithFields(log.Fields{"module": "tracks", "component": "resolver"}),
	}
}

// Accepts reports whether a candidate video title plausibly matches the
// track. Titles containing "ft" or "feat" are accepted regardless of the
// track title so featured-artist uploads get through.
func Accepts(candidateTitle, trackTitle string) bool {
	candidate := strings.ToLower(candidateTitle)
	return strings.Contains(candidate, strings.ToLower(trackTitle)) ||
		strings.Contains(candidate, "ft") ||
		strings.Contains(candidate, "feat")
}

// Resolve searches for track and returns the first accepted candidate that
// also resolves to a stream. Candidates are walked in the order the search
// returned them. ErrTrackNotFound is returned when nothing qualifies,
// including when the search itself fails.
func (r *Resolver) Resolve(ctx context.Context, track Track) (*Match, error) {
	logger := r.logger.WithField("track", track.String())

	span := sentry.StartSpan(ctx, "tracks.resolve")
	span.Description = "Resolve track to video"
	span.SetTag("track", track.String())
	defer span.Finish()

	candidates, err := r.searcher.Search(ctx, track.Query(), MaxCandidates)
	if err != nil {
		logger.Warnf("search failed: %v", err)
		span.Status = sentry.SpanStatusNotFound
		return nil, ErrTrackNotFound
	}
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	for i, candidate := range candidates {
		if !Accepts(candidate.Title, track.Title) {
			logger.Tracef("candidate %d %q rejected", i, candidate.Title)
			continue
		}

		url := youtube.WatchURL(candidate.VideoID)
		desc, err := r.streams.Resolve(ctx, url)
		if err != nil {
			logger.Debugf("candidate %d %q unavailable: %v", i, candidate.Title, err)
			continue
		}

		span.Status = sentry.SpanStatusOK
		span.SetData("candidate_index", i)
		return &Match{
			Track:      track,
			VideoID:    candidate.VideoID,
			Title:      candidate.Title,
			URL:        url,
			Descriptor: desc,
		}, nil
	}

	span.Status = sentry.SpanStatusNotFound
	return nil, ErrTrackNotFound
}
