package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var ErrMissingAPIKey = errors.New("YOUTUBE_API_KEY must be set to resolve playlist tracks")

type ConfigStruct struct {
	Download DownloadConfig
	Youtube  YoutubeConfig
	Spotify  SpotifyConfig
	Options  Options
}

type DownloadConfig struct {
	TargetDir    string
	IncludeVideo bool
	FFmpegPath   string
	ItemTimeout  time.Duration
}

type YoutubeConfig struct {
	APIKey string
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
}

type Options struct {
	Port      string
	LogLevel  string
	SentryDSN string
}

// RequireTrackSearch reports the configuration error that blocks track
// resolution. Playlist runs call it before building a batch.
func (y *YoutubeConfig) RequireTrackSearch() error {
	if y.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (s *SpotifyConfig) IsConfigured() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

var Config *ConfigStruct

func NewConfig() {
	config := &ConfigStruct{
		Download: DownloadConfig{
			TargetDir:    getTargetDir(),
			IncludeVideo: os.Getenv("INCLUDE_VIDEO") == "true",
			FFmpegPath:   getFFmpegPath(),
			ItemTimeout:  getItemTimeout(),
		},
		Youtube: YoutubeConfig{
			APIKey: os.Getenv("YOUTUBE_API_KEY"),
		},
		Spotify: SpotifyConfig{
			ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		},
		Options: Options{
			Port:      getPort(),
			LogLevel:  getLogLevel(),
			SentryDSN: os.Getenv("SENTRY_DSN"),
		},
	}

	Config = config
}

func getTargetDir() string {
	if dir := os.Getenv("TARGET_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}

func getFFmpegPath() string {
	if path := os.Getenv("FFMPEG_PATH"); path != "" {
		return path
	}
	return "ffmpeg"
}

func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		return "8080"
	}
	return port
}

func getLogLevel() string {
	switch level := os.Getenv("LOG_LEVEL"); level {
	case "trace", "debug", "info", "warn", "error":
		return level
	default:
		return "info"
	}
}

// getItemTimeout returns the per-item deadline applied at the provider
// boundary. Zero means no deadline.
func getItemTimeout() time.Duration {
	secondsStr := os.Getenv("ITEM_TIMEOUT_SECONDS")
	if secondsStr == "" {
		return 0
	}
	seconds, err := strconv.Atoi(secondsStr)
	if err != nil || seconds <= 0 {
		return 0
	}
	if seconds > 3600 {
		return time.Hour // one hour is plenty for a single video
	}
	return time.Duration(seconds) * time.Second
}
