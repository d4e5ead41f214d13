package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
)

// ftyp box with an mp42 major brand, enough for content sniffing to call it video/mp4.
var mp4Header = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")

var id3Header = []byte("ID3\x03\x00\x00\x00\x00\x00\x00")

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// fakeFFmpeg writes payload to the output argument, standing in for a real encode.
func fakeFFmpeg(payload string, calls *int) CommandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls++
		out := args[len(args)-1]
		return nil, os.WriteFile(out, []byte(payload), 0o644)
	}
}

func TestAudioPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/tmp/clip.mp4", "/tmp/clip.mp3"},
		{"song (1).mp4", "song (1).mp3"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := AudioPath(tt.in); got != tt.want {
				t.Errorf("AudioPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestTranscodeVideo verifies the audio file replaces the original video.
func TestTranscodeVideo(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	writeFile(t, src, mp4Header)

	calls := 0
	tr := NewTranscoder("")
	tr.run = fakeFFmpeg("mp3 data", &calls)

	got, err := tr.MaybeTranscodeToAudio(context.Background(), src)
	if err != nil {
		t.Fatalf("MaybeTranscodeToAudio: %v", err)
	}
	if got != filepath.Join(dir, "clip.mp3") {
		t.Errorf("path = %q", got)
	}
	if calls != 1 {
		t.Errorf("ffmpeg calls = %d, want 1", calls)
	}
	if exists(src) {
		t.Error("original video should be removed")
	}
	if exists(got + ".part") {
		t.Error("partial output should be renamed away")
	}
	data, _ := os.ReadFile(got)
	if string(data) != "mp3 data" {
		t.Errorf("audio content = %q", data)
	}
}

// TestTranscodeIdempotentOnAudio verifies audio-only input is returned unchanged.
func TestTranscodeIdempotentOnAudio(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "song.mp3")
	writeFile(t, src, id3Header)

	calls := 0
	tr := NewTranscoder("")
	tr.run = fakeFFmpeg("", &calls)

	for i := 0; i < 2; i++ {
		got, err := tr.MaybeTranscodeToAudio(context.Background(), src)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if got != src {
			t.Errorf("run %d: path = %q, want %q", i, got, src)
		}
	}
	if calls != 0 {
		t.Errorf("ffmpeg should not run on audio, ran %d times", calls)
	}
	data, _ := os.ReadFile(src)
	if string(data) != string(id3Header) {
		t.Error("audio file was modified")
	}
}

// TestTranscodeFailureKeepsOriginal verifies a failed encode leaves only the source.
func TestTranscodeFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	writeFile(t, src, mp4Header)

	tr := NewTranscoder("")
	tr.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		out := args[len(args)-1]
		os.WriteFile(out, []byte("half"), 0o644)
		return []byte("encoder exploded"), errors.New("exit status 1")
	}

	if _, err := tr.MaybeTranscodeToAudio(context.Background(), src); err == nil {
		t.Fatal("expected error")
	}
	if !exists(src) {
		t.Error("original must survive a failed transcode")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the original to remain, found %d entries", len(entries))
	}
}

// TestTranscodeRefusesToOverwrite verifies an existing audio file is never replaced.
func TestTranscodeRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	writeFile(t, src, mp4Header)
	writeFile(t, filepath.Join(dir, "clip.mp3"), id3Header)

	calls := 0
	tr := NewTranscoder("")
	tr.run = fakeFFmpeg("new", &calls)

	_, err := tr.MaybeTranscodeToAudio(context.Background(), src)
	if !errors.Is(err, ErrAudioExists) {
		t.Fatalf("err = %v, want ErrAudioExists", err)
	}
	if calls != 0 || !exists(src) {
		t.Error("nothing should change when the audio file exists")
	}
}

func TestTranscodeMissingFile(t *testing.T) {
	tr := NewTranscoder("")
	if _, err := tr.MaybeTranscodeToAudio(context.Background(), filepath.Join(t.TempDir(), "nope.mp4")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestTaggerWritesFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	writeFile(t, path, []byte{0xff, 0xfb, 0x90, 0x00, 0x00, 0x00})

	if err := NewTagger().Tag(path, "Daft Punk", "One More Time"); err != nil {
		t.Fatalf("Tag: %v", err)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tag.Close()
	if tag.Artist() != "Daft Punk" || tag.Title() != "One More Time" {
		t.Errorf("tags = %q / %q", tag.Artist(), tag.Title())
	}
}

func TestTaggerSkipsVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	writeFile(t, path, mp4Header)

	if err := NewTagger().Tag(path, "a", "b"); err != nil {
		t.Fatalf("Tag: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != string(mp4Header) {
		t.Error("video file must not be tagged")
	}
}
