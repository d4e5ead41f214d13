package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

var ErrAudioExists = errors.New("audio file already exists")

// CommandRunner runs an external program and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Transcoder turns downloaded videos into mp3 files with ffmpeg.
type Transcoder struct {
	ffmpegPath string
	run        CommandRunner
	logger     *log.Entry
}

func NewTranscoder(ffmpegPath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		run:        execRunner,
		logger: log.WithFields(log.Fields{
			"module": "audio-transcoder",
		}),
	}
}

// AudioPath derives the audio file name by replacing the final character of
// path with "3", so "clip.mp4" becomes "clip.mp3".
func AudioPath(path string) string {
	if path == "" {
		return ""
	}
	return path[:len(path)-1] + "3"
}

// MaybeTranscodeToAudio converts the video at path to an mp3 next to it and
// removes the original. Files that are not video containers are left alone
// and their path is returned unchanged.
//
// On error the original file is still in place and no audio file remains.
func (t *Transcoder) MaybeTranscodeToAudio(ctx context.Context, path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detecting content type of %s: %w", path, err)
	}
	if !strings.HasPrefix(mtype.String(), "video/") {
		t.logger.Tracef("%s is %s, skipping transcode", path, mtype.String())
		return path, nil
	}

	audioPath := AudioPath(path)
	if audioPath == path {
		audioPath = path + ".mp3"
	}
	if _, err := os.Stat(audioPath); err == nil {
		return "", fmt.Errorf("%w: %s", ErrAudioExists, audioPath)
	}
	partPath := audioPath + ".part"

	span := sentry.StartSpan(ctx, "audio.transcode")
	span.Description = "Transcode video to mp3"
	span.SetTag("mime", mtype.String())
	defer span.Finish()

	output, err := t.run(ctx, t.ffmpegPath,
		"-i", path,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		"-f", "mp3",
		"-loglevel", "error",
		"-y",
		partPath)
	if err != nil {
		os.Remove(partPath)
		t.logger.Errorf("ffmpeg failed for %s: %v: %s", path, err, strings.TrimSpace(string(output)))
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("transcoding %s: %w", path, err)
	}

	if err := os.Rename(partPath, audioPath); err != nil {
		os.Remove(partPath)
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("finalizing %s: %w", audioPath, err)
	}

	if err := os.Remove(path); err != nil {
		os.Remove(audioPath)
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("removing original %s: %w", path, err)
	}

	span.Status = sentry.SpanStatusOK
	t.logger.Debugf("transcoded %s to %s", path, audioPath)
	return audioPath, nil
}
