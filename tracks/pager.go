package tracks

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const PageSize = 100

var ErrTooManyTracks = errors.New("playlist has too many tracks")

// PageSource fetches a window of a playlist.
type PageSource interface {
	Items(ctx context.Context, playlistID string, offset, limit int) (*Page, error)
}

// Pager walks a playlist one page at a time without holding earlier pages.
type Pager struct {
	source PageSource
	logger *log.Entry
}

func NewPager(source PageSource) *Pager {
	return &Pager{
		source: source,
		logger: log.WithFields(log.Fields{"module": "tracks", "component": "pager"}),
	}
}

func (p *Pager) NextPage(ctx context.Context, playlistID string, offset int) (*Page, error) {
	page, err := p.source.Items(ctx, playlistID, offset, PageSize)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist %s at offset %d: %w", playlistID, offset, err)
	}
	if page.NextOffset == 0 {
		page.NextOffset = offset + PageSize
	}
	return page, nil
}

// Each calls fn for every page of the playlist. Iteration stops when the
// source reports no further page, when the declared total is reached, when a
// page comes back empty, or when fn returns an error.
func (p *Pager) Each(ctx context.Context, playlistID string, fn func(*Page) error) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := p.NextPage(ctx, playlistID, offset)
		if err != nil {
			return err
		}
		if len(page.Tracks) == 0 {
			p.logger.Debugf("empty page at offset %d, stopping", offset)
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}

		if !page.HasNext || offset+PageSize >= page.Total {
			return nil
		}
		offset += PageSize
	}
}

// Collect gathers every track of the playlist. ErrTooManyTracks is returned
// as soon as a page declares a total above max.
func (p *Pager) Collect(ctx context.Context, playlistID string, max int) ([]Track, error) {
	var all []Track
	err := p.Each(ctx, playlistID, func(page *Page) error {
		if page.Total > max {
			return fmt.Errorf("%w: %d > %d", ErrTooManyTracks, page.Total, max)
		}
		all = append(all, page.Tracks...)
		if len(all) > max {
			return fmt.Errorf("%w: more than %d", ErrTooManyTracks, max)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
