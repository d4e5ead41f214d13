package youtube

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	videoExt = ".mp4"
	audioExt = ".mp3"
)

var errEmptyName = errors.New("no usable file name")

var (
	invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots     = regexp.MustCompile(`\.+$`)
	repeatedSpace    = regexp.MustCompile(`\s+`)
)

// SanitizeFileName makes a video title usable as a file name.
func SanitizeFileName(name string) string {
	name = invalidFileChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = repeatedSpace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// uniquePath returns dir/base+ext, or dir/base (n)+ext for the first n that
// is free. A name is taken when the file, its ".part" file or a sibling with
// one of the reserved extensions exists. Existing files are never overwritten.
func uniquePath(dir, base, ext string, reserved ...string) string {
	name := base
	for n := 1; nameTaken(dir, name, ext, reserved); n++ {
		name = fmt.Sprintf("%s (%d)", base, n)
	}
	return filepath.Join(dir, name+ext)
}

func nameTaken(dir, name, ext string, reserved []string) bool {
	path := filepath.Join(dir, name+ext)
	if fileExists(path) || fileExists(path+".part") {
		return true
	}
	for _, sibling := range reserved {
		if fileExists(filepath.Join(dir, name+sibling)) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SaveStream writes a video stream into dir under the sanitised name. The
// chosen name is also free as an mp3, so transcoding the result never runs
// into an earlier download with the same title.
func SaveStream(dir, name string, r io.Reader) (string, int64, error) {
	base := SanitizeFileName(name)
	if base == "" {
		return "", 0, fmt.Errorf("%w: %q", errEmptyName, name)
	}
	return writeStream(dir, base, videoExt, r, audioExt)
}

// writeStream copies r into a ".part" file and renames it into place once
// the copy succeeded. On failure the partial file is removed.
func writeStream(dir, base, ext string, r io.Reader, reserved ...string) (string, int64, error) {
	path := uniquePath(dir, base, ext, reserved...)
	partPath := path + ".part"

	file, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("creating %s: %w", partPath, err)
	}

	written, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partPath)
		return "", written, err
	}

	if err := os.Rename(partPath, path); err != nil {
		os.Remove(partPath)
		return "", written, fmt.Errorf("finalizing %s: %w", path, err)
	}
	return path, written, nil
}
