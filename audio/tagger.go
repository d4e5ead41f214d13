package audio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"
	log "github.com/sirupsen/logrus"
)

// Tagger writes artist and title frames into mp3 files produced from
// resolved playlist tracks.
type Tagger struct {
	logger *log.Entry
}

func NewTagger() *Tagger {
	return &Tagger{
		logger: log.WithFields(log.Fields{"module": "audio-tagger"}),
	}
}

// Tag sets the artist and title on path. Files other than mp3 are skipped.
func (t *Tagger) Tag(path, artist, title string) error {
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		t.logger.Tracef("not tagging %s", path)
		return nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("opening tags of %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if artist != "" {
		tag.SetArtist(artist)
	}
	if title != "" {
		tag.SetTitle(title)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("saving tags of %s: %w", path, err)
	}
	return nil
}
