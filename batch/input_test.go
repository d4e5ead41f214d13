package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single no newline", "https://youtu.be/a", []string{"https://youtu.be/a"}},
		{"trailing newline", "a\nb\n", []string{"a", "b"}},
		{"blank line kept", "a\n\nb", []string{"a", "", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ReadURLs(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ReadURLs: %v", err)
			}
			if len(items) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(items), len(tt.want))
			}
			for i, item := range items {
				if item.Kind != ItemURL || item.URL != tt.want[i] {
					t.Errorf("item %d = %+v, want %q", i, item, tt.want[i])
				}
			}
		})
	}
}

func TestReadURLsLimit(t *testing.T) {
	atLimit := strings.Repeat("https://youtu.be/a\n", MaxItems)
	items, err := ReadURLs(strings.NewReader(atLimit))
	if err != nil || len(items) != MaxItems {
		t.Fatalf("at limit: %d items, err %v", len(items), err)
	}

	_, err = ReadURLs(strings.NewReader(atLimit + "https://youtu.be/b\n"))
	if !errors.Is(err, ErrTooManyItems) {
		t.Errorf("over limit: err = %v, want ErrTooManyItems", err)
	}
}

// TestReadURLsLongLine checks that one oversized line costs one item, not
// the whole file.
func TestReadURLsLongLine(t *testing.T) {
	long := "https://youtu.be/dQw4w9WgXcQ?" + strings.Repeat("x", 70<<10)
	input := watch("aaaaaaaaaaa") + "\n" + long + "\n" + watch("bbbbbbbbbbb") + "\n"

	items, err := ReadURLs(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadURLs: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].URL != watch("aaaaaaaaaaa") || items[2].URL != watch("bbbbbbbbbbb") {
		t.Errorf("neighbouring lines changed: %q, %q", items[0].URL, items[2].URL)
	}
	if n := len(items[1].URL); n != maxLineLength {
		t.Errorf("long line kept %d bytes, want %d", n, maxLineLength)
	}

	task := NewTask(Dependencies{Provider: &fakeProvider{}, Transcoder: &fakeTranscoder{}})
	if err := task.Start(context.Background(), Spec{Items: items, TargetDir: t.TempDir()}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, task)
	summary := task.Summary()
	if summary.Count(Downloaded) != 2 || summary.Count(InvalidURL) != 1 {
		t.Errorf("tally = %v, want 2 downloaded and 1 invalid", summary.Tally)
	}
}

func TestReadURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte("https://youtu.be/a\nhttps://youtu.be/b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	items, err := ReadURLFile(path)
	if err != nil || len(items) != 2 {
		t.Fatalf("ReadURLFile = %d items, %v", len(items), err)
	}

	if _, err := ReadURLFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSummaryStatus(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    string
	}{
		{"all", Summary{State: Completed, Total: 2, Tally: map[OutcomeKind]int{Downloaded: 2}}, "All downloads complete!"},
		{"partial", Summary{State: Completed, Total: 3, Tally: map[OutcomeKind]int{Downloaded: 1, InvalidURL: 2}}, "Complete, 1/3 downloaded."},
		{"cancelled", Summary{State: Cancelled, Total: 4, Tally: map[OutcomeKind]int{Downloaded: 1}}, "Cancelled, 1/4 downloaded."},
		{"empty batch", Summary{State: Completed}, "All downloads complete!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutcomeKindText(t *testing.T) {
	text, _ := TrackNotFound.MarshalText()
	if string(text) != "track_not_found" {
		t.Errorf("MarshalText() = %q", text)
	}
	if Running.String() != "running" || !CancelRequested.Active() || !Cancelled.Terminal() {
		t.Error("state helpers disagree")
	}
}
