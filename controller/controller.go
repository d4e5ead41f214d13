package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tubegrab/batch"
	"tubegrab/sentryhelper"
	"tubegrab/youtube"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

// Page is one user-facing entry point. Each page runs at most one task.
type Page string

const (
	PageSingle   Page = "single"
	PagePlaylist Page = "playlist"
	PageFile     Page = "file"
)

var Pages = []Page{PageSingle, PageFile, PagePlaylist}

var (
	ErrTaskActive    = errors.New("a download is already running on this page")
	ErrUnknownPage   = errors.New("unknown page")
	ErrNotYoutubeURL = errors.New("url is not a youtube video url")
)

func ParsePage(name string) (Page, error) {
	for _, p := range Pages {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPage, name)
}

type PageSession struct {
	Page      Page
	Task      *batch.Task
	StartedAt time.Time
}

type Controller struct {
	// This is a map of page to the most recent task started on it
	sessions map[Page]*PageSession
	deps     batch.Dependencies
	observer batch.Observer
	mutex    sync.Mutex
	logger   *log.Entry
}

// NewController builds a controller whose tasks use deps. observers receive
// the events of every task in addition to the per-start observer.
func NewController(deps batch.Dependencies, observers ...batch.Observer) *Controller {
	return &Controller{
		sessions: make(map[Page]*PageSession),
		deps:     deps,
		observer: batch.Observers(observers...),
		logger:   log.WithFields(log.Fields{"module": "controller"}),
	}
}

// Start launches a task for page. The task outlives ctx's cancellation, so a
// finished HTTP request does not stop its download; use Cancel instead.
func (c *Controller) Start(ctx context.Context, page Page, spec batch.Spec, observer batch.Observer) (*batch.Task, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if session, ok := c.sessions[page]; ok && session.Task.State().Active() {
		return nil, ErrTaskActive
	}

	task := batch.NewTask(c.deps)
	ctx, transaction := sentryhelper.StartBatchTransaction(context.WithoutCancel(ctx), string(page), task.ID(), len(spec.Items))

	finish := batch.ObserverFuncs{
		Complete: func(summary batch.Summary) {
			if summary.State == batch.Cancelled {
				transaction.Status = sentry.SpanStatusCanceled
			} else {
				transaction.Status = sentry.SpanStatusOK
			}
			transaction.Finish()
		},
		Error: func(err error) {
			transaction.Status = sentry.SpanStatusInvalidArgument
			transaction.Finish()
		},
	}

	if err := task.Start(ctx, spec, batch.Observers(observer, c.observer, finish)); err != nil {
		return nil, err
	}

	c.sessions[page] = &PageSession{Page: page, Task: task, StartedAt: time.Now()}
	c.logger.WithFields(log.Fields{"page": page, "task_id": task.ID()}).Infof("started %d items", len(spec.Items))
	return task, nil
}

// StartSingle starts a one-item batch after rejecting anything that is not a
// YouTube video URL.
func (c *Controller) StartSingle(ctx context.Context, url string, targetDir string, includeVideo bool, observer batch.Observer) (*batch.Task, error) {
	if !youtube.IsValidURL(url) {
		return nil, ErrNotYoutubeURL
	}
	spec := batch.Spec{
		Items:        []batch.WorkItem{batch.URLItem(url)},
		TargetDir:    targetDir,
		IncludeVideo: includeVideo,
	}
	return c.Start(ctx, PageSingle, spec, observer)
}

// Cancel requests cancellation of the active task on page. It reports
// whether there was one.
func (c *Controller) Cancel(page Page) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	session, ok := c.sessions[page]
	if !ok || session.Task.State() != batch.Running {
		return false
	}
	session.Task.RequestCancel()
	return true
}

// Current returns the most recent session of page, or nil.
func (c *Controller) Current(page Page) *PageSession {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.sessions[page]
}

// CanLeave reports whether the user may navigate away from page.
func (c *Controller) CanLeave(page Page) bool {
	session := c.Current(page)
	return session == nil || !session.Task.State().Active()
}

// CancelAll requests cancellation on every page and returns the affected tasks.
func (c *Controller) CancelAll() []*batch.Task {
	var tasks []*batch.Task
	for _, page := range Pages {
		if c.Cancel(page) {
			tasks = append(tasks, c.Current(page).Task)
		}
	}
	return tasks
}
