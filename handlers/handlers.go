// Package handlers exposes one page per entry point of the downloader: a
// single URL, a URL file and a Spotify playlist. Each page runs at most one
// batch.
package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"tubegrab/batch"
	"tubegrab/controller"
	"tubegrab/database"
	"tubegrab/spotify"
	"tubegrab/tracks"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// PlaylistSource finds playlists and pages through their tracks.
type PlaylistSource interface {
	SearchPlaylist(ctx context.Context, term string) (*spotify.PlaylistSummary, error)
	tracks.PageSource
}

var (
	ErrPlaylistsDisabled = errors.New("playlist downloads need SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
	ErrJournalDisabled   = errors.New("run journal is not available")
)

const (
	defaultRecentRuns = 10
	maxRecentRuns     = 100
)

type BatchRequest struct {
	URL          string   `json:"url"`
	URLs         []string `json:"urls"`
	Playlist     string   `json:"playlist"`
	TargetDir    string   `json:"target_dir"`
	IncludeVideo *bool    `json:"include_video"`
}

type BatchResponse struct {
	TaskID    string                    `json:"task_id"`
	Page      controller.Page           `json:"page"`
	State     batch.State               `json:"state"`
	Processed int                       `json:"processed"`
	Total     int                       `json:"total"`
	Tally     map[batch.OutcomeKind]int `json:"tally"`
	Status    string                    `json:"status"`
	Details   string                    `json:"details"`
	Playlist  *spotify.PlaylistSummary  `json:"playlist,omitempty"`
}

type Defaults struct {
	TargetDir    string
	IncludeVideo bool
}

type Manager struct {
	Controller *controller.Controller
	Journal    *database.Database
	Playlists  PlaylistSource
	// TrackSearchErr is the configuration error that blocks playlist runs,
	// nil when track search is available.
	TrackSearchErr error
	Defaults       Defaults
	logger         *log.Entry
}

func NewManager(c *controller.Controller, journal *database.Database, playlists PlaylistSource, defaults Defaults) *Manager {
	return &Manager{
		Controller: c,
		Journal:    journal,
		Playlists:  playlists,
		Defaults:   defaults,
		logger:     log.WithFields(log.Fields{"module": "handlers"}),
	}
}

func (m *Manager) Register(router gin.IRouter) {
	pages := router.Group("/pages/:page")
	pages.POST("/batch", m.startBatch)
	pages.GET("/batch", m.getBatch)
	pages.DELETE("/batch", m.cancelBatch)
	pages.GET("/navigation", m.navigation)
	pages.GET("/runs", m.recentRuns)

	router.GET("/runs/:id", m.getRun)
	router.GET("/runs/:id/outcomes", m.getOutcomes)
}

func (m *Manager) page(c *gin.Context) (controller.Page, bool) {
	page, err := controller.ParsePage(c.Param("page"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return page, true
}

func (m *Manager) startBatch(c *gin.Context) {
	page, ok := m.page(c)
	if !ok {
		return
	}

	req, urls, err := m.bindRequest(c)
	if err != nil {
		m.fail(c, err)
		return
	}

	spec := batch.Spec{TargetDir: m.Defaults.TargetDir, IncludeVideo: m.Defaults.IncludeVideo}
	if req.TargetDir != "" {
		spec.TargetDir = req.TargetDir
	}
	if req.IncludeVideo != nil {
		spec.IncludeVideo = *req.IncludeVideo
	}

	ctx := c.Request.Context()
	observer := m.observer(page)

	var task *batch.Task
	var playlist *spotify.PlaylistSummary
	switch page {
	case controller.PageSingle:
		url := req.URL
		if url == "" && len(urls) == 1 {
			url = urls[0]
		}
		task, err = m.Controller.StartSingle(ctx, url, spec.TargetDir, spec.IncludeVideo, observer)
	case controller.PageFile:
		if len(urls) > batch.MaxItems {
			err = batch.ErrTooManyItems
			break
		}
		spec.Items = batch.URLItems(urls)
		task, err = m.Controller.Start(ctx, page, spec, observer)
	case controller.PagePlaylist:
		// paging through a playlist is many requests, skip it when the page is busy
		if !m.Controller.CanLeave(page) {
			err = controller.ErrTaskActive
			break
		}
		playlist, spec.Items, err = m.playlistItems(ctx, req.Playlist)
		if err != nil {
			break
		}
		task, err = m.Controller.Start(ctx, page, spec, observer)
	}
	if err != nil {
		m.fail(c, err)
		return
	}

	response := snapshotResponse(page, task.Snapshot())
	response.Playlist = playlist
	c.JSON(http.StatusAccepted, response)
}

// bindRequest reads either a JSON body or a multipart upload with a "file"
// field holding one URL per line.
func (m *Manager) bindRequest(c *gin.Context) (BatchRequest, []string, error) {
	var req BatchRequest
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		req.URL = c.PostForm("url")
		req.Playlist = c.PostForm("playlist")
		req.TargetDir = c.PostForm("target_dir")
		if v, ok := c.GetPostForm("include_video"); ok {
			include, err := strconv.ParseBool(v)
			if err != nil {
				return req, nil, badRequest("include_video must be a boolean")
			}
			req.IncludeVideo = &include
		}

		header, err := c.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			return req, nil, nil
		}
		if err != nil {
			return req, nil, badRequest(err.Error())
		}
		urls, err := readUpload(header)
		return req, urls, err
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		return req, nil, badRequest(err.Error())
	}
	return req, req.URLs, nil
}

func readUpload(header *multipart.FileHeader) ([]string, error) {
	file, err := header.Open()
	if err != nil {
		return nil, badRequest(err.Error())
	}
	defer file.Close()

	items, err := batch.ReadURLs(file)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(items))
	for i, item := range items {
		urls[i] = item.URL
	}
	return urls, nil
}

func (m *Manager) playlistItems(ctx context.Context, term string) (*spotify.PlaylistSummary, []batch.WorkItem, error) {
	if m.TrackSearchErr != nil {
		return nil, nil, m.TrackSearchErr
	}
	if m.Playlists == nil {
		return nil, nil, ErrPlaylistsDisabled
	}
	if strings.TrimSpace(term) == "" {
		return nil, nil, badRequest("playlist is required")
	}

	playlist, err := m.Playlists.SearchPlaylist(ctx, term)
	if err != nil {
		return nil, nil, err
	}
	list, err := tracks.NewPager(m.Playlists).Collect(ctx, playlist.ID, batch.MaxItems)
	if err != nil {
		return nil, nil, err
	}
	m.logger.Infof("playlist %q resolved to %d tracks", playlist.Name, len(list))
	return playlist, batch.TrackItems(list), nil
}

func (m *Manager) observer(page controller.Page) batch.Observer {
	if m.Journal == nil {
		return nil
	}
	return m.Journal.Journal(string(page))
}

func (m *Manager) getBatch(c *gin.Context) {
	page, ok := m.page(c)
	if !ok {
		return
	}
	session := m.Controller.Current(page)
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no download has run on this page"})
		return
	}
	c.JSON(http.StatusOK, snapshotResponse(page, session.Task.Snapshot()))
}

func (m *Manager) cancelBatch(c *gin.Context) {
	page, ok := m.page(c)
	if !ok {
		return
	}
	if !m.Controller.Cancel(page) {
		c.JSON(http.StatusConflict, gin.H{"error": "no running download on this page"})
		return
	}
	c.JSON(http.StatusAccepted, snapshotResponse(page, m.Controller.Current(page).Task.Snapshot()))
}

func (m *Manager) navigation(c *gin.Context) {
	page, ok := m.page(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": page, "can_leave": m.Controller.CanLeave(page)})
}

func (m *Manager) recentRuns(c *gin.Context) {
	page, ok := m.page(c)
	if !ok {
		return
	}
	if m.Journal == nil {
		m.fail(c, ErrJournalDisabled)
		return
	}
	runs, err := m.Journal.GetRecentRuns(string(page), recentRunsLimit(c.Query("limit")))
	if err != nil {
		m.fail(c, err)
		return
	}
	if runs == nil {
		runs = []database.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// recentRunsLimit parses the limit query parameter, falling back to the
// default when it is missing or malformed and clamping it to [1, maxRecentRuns].
func recentRunsLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return defaultRecentRuns
	case limit < 1:
		return 1
	case limit > maxRecentRuns:
		return maxRecentRuns
	}
	return limit
}

func (m *Manager) getRun(c *gin.Context) {
	if m.Journal == nil {
		m.fail(c, ErrJournalDisabled)
		return
	}
	run, err := m.Journal.GetRun(c.Param("id"))
	if err != nil {
		m.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (m *Manager) getOutcomes(c *gin.Context) {
	if m.Journal == nil {
		m.fail(c, ErrJournalDisabled)
		return
	}
	outcomes, err := m.Journal.GetOutcomes(c.Param("id"))
	if err != nil {
		m.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "outcomes": outcomes})
}

func snapshotResponse(page controller.Page, s batch.Snapshot) BatchResponse {
	summary := batch.Summary{TaskID: s.TaskID, State: s.State, Processed: s.Processed, Total: s.Total, Tally: s.Tally}
	return BatchResponse{
		TaskID:    s.TaskID,
		Page:      page,
		State:     s.State,
		Processed: s.Processed,
		Total:     s.Total,
		Tally:     s.Tally,
		Status:    s.Status(),
		Details:   summary.Details(),
	}
}
