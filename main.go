package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tubegrab/audio"
	"tubegrab/batch"
	"tubegrab/cli"
	appConfig "tubegrab/config"
	"tubegrab/controller"
	"tubegrab/database"
	"tubegrab/handlers"
	appSentry "tubegrab/sentry"
	"tubegrab/spotify"
	"tubegrab/tracks"
	"tubegrab/youtube"
)

type options struct {
	url      string
	file     string
	playlist string
	dir      string
	video    bool
	serve    bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}
	appConfig.NewConfig()
	setupLogging(appConfig.Config.Options.LogLevel)

	appSentry.Init(appConfig.Config.Options.SentryDSN)
	defer appSentry.Flush()

	opts := parseFlags()
	if err := run(context.Background(), opts); err != nil {
		appSentry.ReportError(err)
		appSentry.Flush()
		log.Fatal(err)
	}
}

func parseFlags() options {
	cfg := appConfig.Config.Download
	var opts options
	flag.StringVar(&opts.url, "url", "", "download a single YouTube video")
	flag.StringVar(&opts.file, "file", "", "download every URL in a file, one per line")
	flag.StringVar(&opts.playlist, "playlist", "", "download a Spotify playlist (URL or search term)")
	flag.StringVar(&opts.dir, "dir", cfg.TargetDir, "target directory")
	flag.BoolVar(&opts.video, "video", cfg.IncludeVideo, "keep the video instead of converting to mp3")
	flag.BoolVar(&opts.serve, "serve", false, "serve the HTTP API instead of running one batch")
	flag.Parse()
	return opts
}

func setupLogging(level string) {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		FieldsOrder:     []string{"module", "component", "task_id"},
		TimestampFormat: time.DateTime,
	})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
	if parsed < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
}

// app holds everything both modes share.
type app struct {
	controller     *controller.Controller
	journal        *database.Database
	playlists      *spotify.Client
	trackSearchErr error
}

func newApp(ctx context.Context) (*app, error) {
	cfg := appConfig.Config
	provider := youtube.NewProvider(&http.Client{})

	deps := batch.Dependencies{
		Provider:    provider,
		Transcoder:  audio.NewTranscoder(cfg.Download.FFmpegPath),
		Tagger:      audio.NewTagger(),
		ItemTimeout: cfg.Download.ItemTimeout,
	}

	a := &app{trackSearchErr: cfg.Youtube.RequireTrackSearch()}
	if a.trackSearchErr == nil {
		searcher, err := youtube.NewSearcher(ctx, cfg.Youtube.APIKey)
		if err != nil {
			return nil, err
		}
		deps.Resolver = tracks.NewResolver(searcher, provider)
	}

	if cfg.Spotify.IsConfigured() {
		client, err := spotify.NewClient(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
		if err != nil {
			log.Warnf("spotify unavailable, playlist downloads disabled: %v", err)
		} else {
			a.playlists = client
		}
	}

	journal, err := database.New()
	if err != nil {
		return nil, err
	}
	a.journal = journal
	a.controller = controller.NewController(deps)
	return a, nil
}

func run(ctx context.Context, opts options) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.journal.Close()

	if opts.serve {
		return a.serve(ctx)
	}
	return a.runOnce(ctx, opts)
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := handlers.NewManager(a.controller, a.journal, nil, handlers.Defaults{
		TargetDir:    appConfig.Config.Download.TargetDir,
		IncludeVideo: appConfig.Config.Download.IncludeVideo,
	})
	if a.playlists != nil {
		manager.Playlists = a.playlists
	}
	manager.TrackSearchErr = a.trackSearchErr

	router := gin.New()
	router.Use(gin.Recovery(), appSentry.GetSentryGin())
	manager.Register(router)

	server := &http.Server{
		Addr:              ":" + appConfig.Config.Options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		for _, task := range a.controller.CancelAll() {
			waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := task.Wait(waitCtx); err != nil {
				log.Warnf("task %s still running at shutdown", task.ID())
			}
			cancel()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *app) runOnce(ctx context.Context, opts options) error {
	printer := cli.NewPrinter(os.Stdout)

	var task *batch.Task
	var err error
	switch {
	case opts.url != "":
		task, err = a.controller.StartSingle(ctx, opts.url, opts.dir, opts.video, printer)
	case opts.file != "":
		var items []batch.WorkItem
		if items, err = batch.ReadURLFile(opts.file); err == nil {
			task, err = a.controller.Start(ctx, controller.PageFile, batch.Spec{Items: items, TargetDir: opts.dir, IncludeVideo: opts.video}, printer)
		}
	case opts.playlist != "":
		var items []batch.WorkItem
		if items, err = a.playlistItems(ctx, opts.playlist); err == nil {
			task, err = a.controller.Start(ctx, controller.PagePlaylist, batch.Spec{Items: items, TargetDir: opts.dir, IncludeVideo: opts.video}, printer)
		}
	default:
		flag.Usage()
		return errors.New("one of -url, -file, -playlist or -serve is required")
	}
	if err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	for {
		select {
		case <-task.Done():
			return nil
		case <-interrupts:
			if task.State() == batch.CancelRequested {
				return errors.New("interrupted")
			}
			fmt.Fprintln(os.Stderr, "cancelling after the current item, press Ctrl-C again to quit")
			task.RequestCancel()
		}
	}
}

func (a *app) playlistItems(ctx context.Context, term string) ([]batch.WorkItem, error) {
	if a.trackSearchErr != nil {
		return nil, a.trackSearchErr
	}
	if a.playlists == nil {
		return nil, handlers.ErrPlaylistsDisabled
	}
	playlist, err := a.playlists.SearchPlaylist(ctx, term)
	if err != nil {
		return nil, err
	}
	list, err := tracks.NewPager(a.playlists).Collect(ctx, playlist.ID, batch.MaxItems)
	if err != nil {
		return nil, err
	}
	log.Infof("downloading %d tracks from %q", len(list), playlist.Name)
	return batch.TrackItems(list), nil
}
