package controller

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tubegrab/batch"
	"tubegrab/youtube"
)

// gatedProvider blocks every download until release is closed.
type gatedProvider struct {
	release chan struct{}
	started chan string
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{release: make(chan struct{}), started: make(chan string, 10)}
}

func (g *gatedProvider) Resolve(ctx context.Context, url string) (*youtube.StreamDescriptor, error) {
	return &youtube.StreamDescriptor{VideoID: youtube.ParseYoutubeUrl(url)}, nil
}

func (g *gatedProvider) Download(ctx context.Context, desc *youtube.StreamDescriptor, dir string) (string, error) {
	g.started <- desc.VideoID
	<-g.release
	return filepath.Join(dir, desc.VideoID+".mp4"), nil
}

func spec(t *testing.T, ids ...string) batch.Spec {
	urls := make([]string, len(ids))
	for i, id := range ids {
		urls[i] = youtube.WatchURL(id)
	}
	return batch.Spec{Items: batch.URLItems(urls), TargetDir: t.TempDir(), IncludeVideo: true}
}

func wait(t *testing.T, task *batch.Task) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestParsePage(t *testing.T) {
	for _, p := range Pages {
		got, err := ParsePage(string(p))
		if err != nil || got != p {
			t.Errorf("ParsePage(%q) = %q, %v", p, got, err)
		}
	}
	if _, err := ParsePage("settings"); !errors.Is(err, ErrUnknownPage) {
		t.Errorf("err = %v, want ErrUnknownPage", err)
	}
}

// TestOneTaskPerPage verifies a second start on a busy page is refused while
// other pages stay free.
func TestOneTaskPerPage(t *testing.T) {
	provider := newGatedProvider()
	c := NewController(batch.Dependencies{Provider: provider})

	task, err := c.Start(context.Background(), PageFile, spec(t, "a", "b"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-provider.started

	if _, err := c.Start(context.Background(), PageFile, spec(t, "c"), nil); !errors.Is(err, ErrTaskActive) {
		t.Errorf("second Start() = %v, want ErrTaskActive", err)
	}
	if c.CanLeave(PageFile) {
		t.Error("CanLeave(file) should be false while running")
	}
	if !c.CanLeave(PagePlaylist) {
		t.Error("an idle page must be leavable")
	}
	if c.Current(PageFile).Task != task {
		t.Error("Current() should return the running task")
	}

	close(provider.release)
	wait(t, task)

	if !c.CanLeave(PageFile) {
		t.Error("CanLeave(file) should be true once finished")
	}
	next, err := c.Start(context.Background(), PageFile, spec(t, "d"), nil)
	if err != nil {
		t.Fatalf("Start after completion: %v", err)
	}
	wait(t, next)
}

func TestCancel(t *testing.T) {
	provider := newGatedProvider()
	c := NewController(batch.Dependencies{Provider: provider})

	if c.Cancel(PagePlaylist) {
		t.Error("Cancel() on an empty page should report false")
	}

	task, err := c.Start(context.Background(), PagePlaylist, spec(t, "a", "b", "c"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-provider.started

	if !c.Cancel(PagePlaylist) {
		t.Fatal("Cancel() should report true")
	}
	if c.Cancel(PagePlaylist) {
		t.Error("a second Cancel() has nothing left to cancel")
	}
	if c.CanLeave(PagePlaylist) {
		t.Error("page stays guarded until the in-flight item finishes")
	}

	close(provider.release)
	wait(t, task)

	if task.State() != batch.Cancelled || len(task.Outcomes()) != 1 {
		t.Errorf("state %v with %d outcomes", task.State(), len(task.Outcomes()))
	}
}

func TestStartSingle(t *testing.T) {
	provider := newGatedProvider()
	close(provider.release)
	c := NewController(batch.Dependencies{Provider: provider})

	if _, err := c.StartSingle(context.Background(), "https://vimeo.com/123", t.TempDir(), true, nil); !errors.Is(err, ErrNotYoutubeURL) {
		t.Errorf("err = %v, want ErrNotYoutubeURL", err)
	}
	if c.Current(PageSingle) != nil {
		t.Error("a rejected URL must not create a session")
	}

	task, err := c.StartSingle(context.Background(), "https://youtu.be/abc123?t=30", t.TempDir(), true, nil)
	if err != nil {
		t.Fatalf("StartSingle: %v", err)
	}
	wait(t, task)
	if got := task.Summary().Status(); got != "All downloads complete!" {
		t.Errorf("Status() = %q", got)
	}
}

func TestStartValidationErrorKeepsPageFree(t *testing.T) {
	c := NewController(batch.Dependencies{Provider: newGatedProvider()})
	s := spec(t, "a")
	s.TargetDir = ""

	if _, err := c.Start(context.Background(), PageFile, s, nil); !errors.Is(err, batch.ErrTargetNotWritable) {
		t.Fatalf("err = %v, want ErrTargetNotWritable", err)
	}
	if c.Current(PageFile) != nil || !c.CanLeave(PageFile) {
		t.Error("a task that never ran must not hold the page")
	}
}

// TestSharedObserver verifies controller-wide observers see every run and the
// task survives cancellation of the starting context.
func TestSharedObserver(t *testing.T) {
	var mu sync.Mutex
	completed := 0
	shared := batch.ObserverFuncs{Complete: func(batch.Summary) {
		mu.Lock()
		completed++
		mu.Unlock()
	}}

	provider := newGatedProvider()
	close(provider.release)
	c := NewController(batch.Dependencies{Provider: provider}, shared)

	ctx, cancel := context.WithCancel(context.Background())
	task, err := c.Start(ctx, PageFile, spec(t, "a", "b"), nil)
	cancel()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	wait(t, task)

	if task.State() != batch.Completed {
		t.Errorf("State() = %v, want completed", task.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if completed != 1 {
		t.Errorf("shared observer saw %d completions", completed)
	}
}

func TestCancelAll(t *testing.T) {
	provider := newGatedProvider()
	c := NewController(batch.Dependencies{Provider: provider})

	task, err := c.Start(context.Background(), PageFile, spec(t, "a", "b"), nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-provider.started

	if got := c.CancelAll(); len(got) != 1 || got[0] != task {
		t.Errorf("CancelAll() = %v", got)
	}
	close(provider.release)
	wait(t, task)
}
