package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	ytdl "github.com/kkdai/youtube/v2"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnavailable    = errors.New("video unavailable")
	ErrNotResolved    = errors.New("stream descriptor was not resolved by this provider")
	errNoMP4WithAudio = errors.New("no progressive mp4 stream with audio")
)

// StreamDescriptor identifies the stream Download will fetch. Only
// descriptors returned by Provider.Resolve can be downloaded.
type StreamDescriptor struct {
	VideoID  string
	Title    string
	Author   string
	MimeType string

	video  *ytdl.Video
	format *ytdl.Format
}

// Provider resolves and downloads YouTube videos without shelling out.
type Provider struct {
	client *ytdl.Client
	logger *log.Entry
}

func NewProvider(httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Provider{
		client: &ytdl.Client{HTTPClient: httpClient},
		logger: log.WithFields(log.Fields{"module": "youtube", "component": "provider"}),
	}
}

func (p *Provider) Resolve(ctx context.Context, rawURL string) (*StreamDescriptor, error) {
	rawURL = strings.TrimSpace(rawURL)

	span := sentry.StartSpan(ctx, "youtube.resolve")
	span.Description = "Resolve video metadata"
	span.SetTag("url", rawURL)
	defer span.Finish()

	video, err := p.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		p.logger.WithField("url", rawURL).Debugf("video lookup failed: %v", err)
		span.Status = sentry.SpanStatusNotFound
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	format := firstProgressiveMP4(video.Formats)
	if format == nil {
		span.Status = sentry.SpanStatusNotFound
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, video.ID, errNoMP4WithAudio)
	}

	span.Status = sentry.SpanStatusOK
	return &StreamDescriptor{
		VideoID:  video.ID,
		Title:    video.Title,
		Author:   video.Author,
		MimeType: format.MimeType,
		video:    video,
		format:   format,
	}, nil
}

func (p *Provider) Download(ctx context.Context, desc *StreamDescriptor, dir string) (string, error) {
	if desc == nil || desc.video == nil || desc.format == nil {
		return "", ErrNotResolved
	}

	logger := p.logger.WithField("video_id", desc.VideoID)

	span := sentry.StartSpan(ctx, "youtube.download")
	span.Description = "Download video stream"
	span.SetTag("video_id", desc.VideoID)
	defer span.Finish()

	stream, size, err := p.client.GetStreamContext(ctx, desc.video, desc.format)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("starting stream for %s: %w", desc.VideoID, err)
	}
	defer stream.Close()

	name := desc.Title
	if SanitizeFileName(name) == "" {
		name = desc.VideoID
	}

	path, written, err := SaveStream(dir, name, stream)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("downloading %s: %w", desc.VideoID, err)
	}

	logger.Debugf("downloaded %d/%d bytes to %s", written, size, path)
	span.Status = sentry.SpanStatusOK
	span.SetData("bytes", written)
	return path, nil
}

// firstProgressiveMP4 returns the first mp4 format that carries both video
// and audio, in the order the player response lists them.
func firstProgressiveMP4(formats ytdl.FormatList) *ytdl.Format {
	for i := range formats {
		f := &formats[i]
		if strings.HasPrefix(f.MimeType, "video/mp4") && f.AudioChannels > 0 {
			return f
		}
	}
	return nil
}
