package handlers

import (
	"errors"
	"net/http"

	"tubegrab/batch"
	"tubegrab/config"
	"tubegrab/controller"
	"tubegrab/database"
	"tubegrab/spotify"
	"tubegrab/tracks"

	"github.com/gin-gonic/gin"
)

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, controller.ErrNotYoutubeURL),
		errors.Is(err, batch.ErrTargetNotWritable),
		errors.Is(err, spotify.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrTaskActive):
		return http.StatusConflict
	case errors.Is(err, batch.ErrTooManyItems), errors.Is(err, tracks.ErrTooManyTracks):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, spotify.ErrPlaylistNotFound), errors.Is(err, database.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, spotify.ErrPlaylistInaccessible):
		return http.StatusForbidden
	case errors.Is(err, config.ErrMissingAPIKey),
		errors.Is(err, ErrPlaylistsDisabled),
		errors.Is(err, ErrJournalDisabled),
		errors.Is(err, batch.ErrMissingResolver),
		errors.Is(err, batch.ErrMissingTranscoder),
		errors.Is(err, batch.ErrMissingProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// message is the text shown to the user for err.
func message(err error) string {
	switch {
	case errors.Is(err, batch.ErrTooManyItems), errors.Is(err, tracks.ErrTooManyTracks):
		return "File is too large."
	case errors.Is(err, controller.ErrNotYoutubeURL):
		return "URL is not a YouTube URL!"
	}
	return err.Error()
}

func (m *Manager) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		m.logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		_ = c.Error(err)
	} else {
		m.logger.Debugf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": message(err)})
}
