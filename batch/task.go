package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"tubegrab/sentryhelper"
	"tubegrab/youtube"

	sentry "github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrAlreadyStarted    = errors.New("task has already been started")
	ErrTooManyItems      = errors.New("too many items")
	ErrTargetNotWritable = errors.New("target directory is not writable")
	ErrMissingProvider   = errors.New("no video provider configured")
	ErrMissingResolver   = errors.New("track items need a track resolver")
	ErrMissingTranscoder = errors.New("audio-only runs need a transcoder")
)

// Task runs one batch: items are processed one at a time, in order, on a
// single worker goroutine. A Task is not reusable.
type Task struct {
	id     string
	deps   Dependencies
	logger *log.Entry

	started atomic.Bool
	cancel  atomic.Bool

	mu       sync.RWMutex
	state    State
	spec     Spec
	outcomes []Outcome
	tally    map[OutcomeKind]int

	notifier *notifier
	done     chan struct{}
}

func NewTask(deps Dependencies) *Task {
	id := uuid.NewString()
	return &Task{
		id:    id,
		deps:  deps,
		tally: make(map[OutcomeKind]int),
		done:  make(chan struct{}),
		logger: log.WithFields(log.Fields{
			"module":  "batch",
			"task_id": id,
		}),
	}
}

func (t *Task) ID() string {
	return t.id
}

func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Done is closed once the task has stopped and every event was delivered.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start validates spec and launches the worker. Validation failures are
// returned, reported to observer.OnError, and leave the task Idle with no
// item touched.
func (t *Task) Start(ctx context.Context, spec Spec, observer Observer) error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	n := newNotifier(observer)
	t.notifier = n

	if err := t.validate(spec); err != nil {
		t.logger.Warnf("not starting: %v", err)
		n.publish(func(o Observer) { o.OnError(err) })
		go t.shutdown()
		return err
	}

	t.mu.Lock()
	t.spec = Spec{
		Items:        append([]WorkItem(nil), spec.Items...),
		TargetDir:    spec.TargetDir,
		IncludeVideo: spec.IncludeVideo,
	}
	t.state = Running
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.logger.Infof("starting batch of %d items into %s", len(spec.Items), spec.TargetDir)
	n.publish(func(o Observer) { o.OnProgress(snapshot) })

	go t.run(ctx)
	return nil
}

// RequestCancel asks the worker to stop before the next item. The item in
// flight is allowed to finish.
func (t *Task) RequestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return
	}
	t.cancel.Store(true)
	t.state = CancelRequested
	t.logger.Info("cancel requested")
}

func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Task) Outcomes() []Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Outcome(nil), t.outcomes...)
}

func (t *Task) Summary() Summary {
	return t.Snapshot().summary()
}

func (t *Task) validate(spec Spec) error {
	if len(spec.Items) > MaxItems {
		return fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(spec.Items), MaxItems)
	}
	if t.deps.Provider == nil {
		return ErrMissingProvider
	}
	if !spec.IncludeVideo && t.deps.Transcoder == nil {
		return ErrMissingTranscoder
	}
	for _, item := range spec.Items {
		if item.Kind == ItemTrack && t.deps.Resolver == nil {
			return ErrMissingResolver
		}
	}
	return checkWritable(spec.TargetDir)
}

func checkWritable(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: no directory given", ErrTargetNotWritable)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrTargetNotWritable, err)
	}
	probe, err := os.CreateTemp(dir, ".tubegrab-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTargetNotWritable, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

func (t *Task) run(ctx context.Context) {
	defer t.shutdown()

	for i, item := range t.spec.Items {
		if t.cancel.Load() || ctx.Err() != nil {
			t.finish(Cancelled)
			return
		}

		outcome := t.process(ctx, i, item)
		t.record(ctx, outcome)
	}
	t.finish(Completed)
}

func (t *Task) shutdown() {
	t.notifier.close()
	<-t.notifier.done
	close(t.done)
}

// process classifies a single item. Collaborators get a context that
// survives caller cancellation so the item always runs to completion.
func (t *Task) process(ctx context.Context, index int, item WorkItem) Outcome {
	outcome := Outcome{Index: index, Item: item}
	logger := t.logger.WithField("item", index)

	itemCtx := context.WithoutCancel(ctx)
	if t.deps.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(itemCtx, t.deps.ItemTimeout)
		defer cancel()
	}

	var desc *youtube.StreamDescriptor
	switch item.Kind {
	case ItemTrack:
		match, err := t.deps.Resolver.Resolve(itemCtx, item.Track)
		if err != nil {
			outcome.Kind, outcome.Err = TrackNotFound, err
			return outcome
		}
		desc = match.Descriptor
		if desc == nil {
			if desc, err = t.deps.Provider.Resolve(itemCtx, match.URL); err != nil {
				outcome.Kind, outcome.Err = TrackNotFound, err
				return outcome
			}
		}
	default:
		if !youtube.IsValidURL(item.URL) {
			outcome.Kind = InvalidURL
			return outcome
		}
		var err error
		if desc, err = t.deps.Provider.Resolve(itemCtx, strings.TrimSpace(item.URL)); err != nil {
			outcome.Kind, outcome.Err = VideoUnavailable, err
			return outcome
		}
	}

	path, err := t.deps.Provider.Download(itemCtx, desc, t.spec.TargetDir)
	if err != nil {
		outcome.Kind, outcome.Err = Failed, err
		return outcome
	}
	outcome.Path = path

	if !t.spec.IncludeVideo {
		audioPath, err := t.deps.Transcoder.MaybeTranscodeToAudio(itemCtx, path)
		if err != nil {
			outcome.Kind, outcome.Err = Failed, err
			return outcome
		}
		outcome.Path = audioPath
	}

	if item.Kind == ItemTrack && t.deps.Tagger != nil {
		if err := t.deps.Tagger.Tag(outcome.Path, item.Track.Artist, item.Track.Title); err != nil {
			logger.Warnf("tagging %s failed: %v", outcome.Path, err)
		}
	}

	outcome.Kind = Downloaded
	return outcome
}

func (t *Task) record(ctx context.Context, outcome Outcome) {
	logger := t.logger.WithFields(log.Fields{"item": outcome.Index, "outcome": outcome.Kind.String()})
	if outcome.Err != nil {
		logger.Debugf("%s: %v", outcome.Item, outcome.Err)
	} else {
		logger.Debugf("%s", outcome.Item)
	}

	sentryhelper.AddBreadcrumb(ctx, &sentry.Breadcrumb{
		Category: "batch.item",
		Message:  outcome.Kind.String(),
		Data:     map[string]interface{}{"index": outcome.Index},
	})
	if outcome.Kind == Failed {
		sentryhelper.CaptureException(ctx, outcome.Err)
	}

	t.mu.Lock()
	t.outcomes = append(t.outcomes, outcome)
	t.tally[outcome.Kind]++
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.notifier.publish(func(o Observer) { o.OnProgress(snapshot) })
}

func (t *Task) finish(state State) {
	t.mu.Lock()
	t.state = state
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	summary := snapshot.summary()
	t.logger.Infof("%s (%s)", summary.Status(), summary.Details())

	t.notifier.publish(func(o Observer) {
		o.OnProgress(snapshot)
		o.OnComplete(summary)
	})
}

func (t *Task) snapshotLocked() Snapshot {
	tally := make(map[OutcomeKind]int, len(t.tally))
	for kind, count := range t.tally {
		tally[kind] = count
	}
	snapshot := Snapshot{
		TaskID:    t.id,
		State:     t.state,
		Processed: len(t.outcomes),
		Total:     len(t.spec.Items),
		Tally:     tally,
	}
	if n := len(t.outcomes); n > 0 {
		last := t.outcomes[n-1]
		snapshot.Last = &last
	}
	return snapshot
}
