package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"tubegrab/youtube"
)

// ReadURLFile reads one URL per line from path.
func ReadURLFile(path string) ([]WorkItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening url file: %w", err)
	}
	defer file.Close()
	return ReadURLs(file)
}

// maxLineLength bounds how much of a line is kept. Anything longer cannot be
// a video URL, so only enough is kept for it to be reported as one bad item.
const maxLineLength = youtube.MaxURLLength + 1

// ReadURLs turns each line of r into a URL item. Blank and over-long lines
// are kept so they are reported like any other malformed entry. Reading
// stops with ErrTooManyItems as soon as the MaxItems limit is exceeded.
func ReadURLs(r io.Reader) ([]WorkItem, error) {
	var items []WorkItem
	reader := bufio.NewReader(r)
	for {
		line, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading url file: %w", err)
		}
		if len(items) == MaxItems {
			return nil, fmt.Errorf("%w: more than %d lines", ErrTooManyItems, MaxItems)
		}
		items = append(items, URLItem(line))
	}
}

// readLine returns the next line without its line ending, truncated to
// maxLineLength bytes. The rest of a long line is consumed and dropped.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return string(line), err
		}
		if room := maxLineLength - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}
