package youtube

import (
	"context"
	"fmt"
	"html"

	"tubegrab/config"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

type VideoResponse struct {
	Title   string `json:"title"`
	VideoID string `json:"video_id"`
}

// Searcher queries the YouTube Data API. Results keep the API's relevance
// order and carry HTML-decoded titles.
type Searcher struct {
	service *ytapi.Service
	logger  *log.Entry
}

func NewSearcher(ctx context.Context, apiKey string) (*Searcher, error) {
	if apiKey == "" {
		return nil, config.ErrMissingAPIKey
	}

	service, err := ytapi.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("error creating YouTube client: %w", err)
	}

	return &Searcher{
		service: service,
		logger:  log.WithFields(log.Fields{"module": "youtube", "component": "searcher"}),
	}, nil
}

func (s *Searcher) Search(ctx context.Context, query string, maxResults int) ([]VideoResponse, error) {
	span := sentry.StartSpan(ctx, "youtube.search")
	span.Description = "Search YouTube API"
	span.SetTag("query", query)
	defer span.Finish()

	call := s.service.Search.List([]string{"snippet"}).
		Q(query).
		MaxResults(int64(maxResults)).
		Type("video").
		Context(ctx)

	response, err := call.Do()
	if err != nil {
		s.logger.Errorf("error querying YouTube: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("error querying YouTube: %w", err)
	}

	videos := make([]VideoResponse, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id == nil || item.Id.Kind != "youtube#video" || item.Snippet == nil {
			continue
		}
		videos = append(videos, VideoResponse{
			Title:   html.UnescapeString(item.Snippet.Title),
			VideoID: item.Id.VideoId,
		})
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(videos))
	s.logger.Tracef("found %d videos for %q", len(videos), query)
	return videos, nil
}
