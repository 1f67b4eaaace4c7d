// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up when no explicit path is given.
const FileName = "biomedtube.yaml"

// DefaultFallbackTopics are used when the PubMed lookup yields nothing usable.
var DefaultFallbackTopics = []string{
	"CRISPR", "Immunotherapy", "mRNA Vaccines", "Microbiome", "Stem Cells",
}

// Config holds all application configuration for a pipeline run.
type Config struct {
	// WorkDir is the root under which each run gets its own directory.
	WorkDir string `yaml:"work_dir"`
	// LockTimeout bounds how long a run waits for a concurrent run to finish.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// KeepFailed leaves the run directory on disk when a run fails.
	KeepFailed bool `yaml:"keep_failed"`

	Topic    TopicConfig    `yaml:"topic"`
	Unsplash UnsplashConfig `yaml:"unsplash"`
	Speech   SpeechConfig   `yaml:"speech"`
	Video    VideoConfig    `yaml:"video"`
	YouTube  YouTubeConfig  `yaml:"youtube"`
	HTTP     HTTPConfig     `yaml:"http"`
	Archive  ArchiveConfig  `yaml:"archive"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// TopicConfig configures the PubMed topic lookup.
type TopicConfig struct {
	// SearchTerm is the esearch query (default "biomedicine").
	SearchTerm string `yaml:"search_term"`
	// MaxResults is the esearch retmax (default 5).
	MaxResults int `yaml:"max_results"`
	// MaxLength truncates remote titles, in runes (default 100).
	MaxLength int `yaml:"max_length"`
	// Fallback replaces the built-in fallback list when non-empty.
	Fallback []string `yaml:"fallback"`
	// APIKey is the optional NCBI API key (env NCBI_API_KEY).
	APIKey string `yaml:"-"`
	// Email identifies the caller to NCBI (env NCBI_EMAIL).
	Email string `yaml:"email"`
}

// UnsplashConfig configures the background image search.
type UnsplashConfig struct {
	// AccessKey is the Unsplash client ID (env UNSPLASH_ACCESS_KEY).
	AccessKey string `yaml:"-"`
	// Orientation of the requested photo (default "landscape").
	Orientation string `yaml:"orientation"`
}

// SpeechConfig selects and configures the narration provider.
type SpeechConfig struct {
	// Provider is "gtts" or "openai" (default "gtts").
	Provider string `yaml:"provider"`
	// Language is the gtts language code (default "en").
	Language string `yaml:"language"`
	// OpenAIKey is required for the openai provider (env OPENAI_API_KEY).
	OpenAIKey string `yaml:"-"`
	// Voice is the OpenAI voice name (default "alloy").
	Voice string `yaml:"voice"`
	// Model is the OpenAI speech model (default "tts-1").
	Model string `yaml:"model"`
}

// VideoConfig locates the ffmpeg tooling and fonts.
type VideoConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	// Font is a fontconfig family name used when FontFile is empty.
	Font string `yaml:"font"`
	// FontFile is a path to a TTF/OTF file.
	FontFile string `yaml:"font_file"`
	// Timeout bounds a single ffmpeg/ffprobe invocation.
	Timeout time.Duration `yaml:"timeout"`
}

// YouTubeConfig configures authorization and upload metadata.
type YouTubeConfig struct {
	// ClientSecretsFile is the OAuth client secret JSON downloaded from Google Cloud.
	ClientSecretsFile string `yaml:"client_secrets_file"`
	// TokenFile caches the OAuth token between runs; empty disables caching.
	TokenFile string `yaml:"token_file"`
	// Privacy is "public", "unlisted" or "private" (default "public").
	Privacy string `yaml:"privacy"`
	// CategoryID is the YouTube category (default "28", Science & Technology).
	CategoryID string `yaml:"category_id"`
	// Tags attached to every upload.
	Tags []string `yaml:"tags"`
	// OpenBrowser launches the consent page automatically.
	OpenBrowser bool `yaml:"open_browser"`
}

// HTTPConfig configures the shared outbound HTTP client.
type HTTPConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// ArchiveConfig configures the optional S3-compatible copy of each video.
// Archiving is disabled when Endpoint is empty.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" }

// HistoryConfig configures the run ledger. Disabled when Path is empty.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig configures the Prometheus Pushgateway target.
// Disabled when PushgatewayURL is empty.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkDir:     filepath.Join(os.TempDir(), "biomedtube"),
		LockTimeout: 5 * time.Second,
		KeepFailed:  true,
		Topic: TopicConfig{
			SearchTerm: "biomedicine",
			MaxResults: 5,
			MaxLength:  100,
		},
		Unsplash: UnsplashConfig{
			Orientation: "landscape",
		},
		Speech: SpeechConfig{
			Provider: "gtts",
			Language: "en",
			Voice:    "alloy",
			Model:    "tts-1",
		},
		Video: VideoConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			Font:        "Arial",
			Timeout:     10 * time.Minute,
		},
		YouTube: YouTubeConfig{
			ClientSecretsFile: "client_secrets.json",
			Privacy:           "public",
			CategoryID:        "28",
			Tags:              []string{"biomedical", "science", "health"},
			OpenBrowser:       true,
		},
		HTTP: HTTPConfig{
			Timeout:        30 * time.Second,
			MaxRetries:     0,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Metrics: MetricsConfig{
			Job: "biomedtube",
		},
	}
}

// Load builds the configuration. Priority: env vars > config file > defaults.
// A .env file in the working directory is loaded first; it never overrides
// variables already set in the process environment. When path is empty the
// file is looked up in the working directory and ~/.config/biomedtube.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	if err := cfg.loadFromFile(path); err != nil {
		// The file is optional unless it was named explicitly.
		if path != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads YAML from path, or from the first default location that exists.
func (c *Config) loadFromFile(path string) error {
	paths := []string{path}
	if path == "" {
		paths = []string{FileName}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".config", "biomedtube", FileName))
		}
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == "" {
				continue
			}
			return err
		}

		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	setString(&c.Unsplash.AccessKey, "UNSPLASH_ACCESS_KEY")
	setString(&c.Topic.APIKey, "NCBI_API_KEY")
	setString(&c.Topic.Email, "NCBI_EMAIL")
	setString(&c.Speech.OpenAIKey, "OPENAI_API_KEY")

	setString(&c.WorkDir, "BIOMEDTUBE_WORK_DIR")
	setString(&c.Speech.Provider, "BIOMEDTUBE_TTS_PROVIDER")
	setString(&c.Video.FFmpegPath, "BIOMEDTUBE_FFMPEG_PATH")
	setString(&c.Video.FFprobePath, "BIOMEDTUBE_FFPROBE_PATH")
	setString(&c.Video.FontFile, "BIOMEDTUBE_FONT_FILE")
	setString(&c.YouTube.ClientSecretsFile, "BIOMEDTUBE_CLIENT_SECRETS")
	setString(&c.YouTube.TokenFile, "BIOMEDTUBE_TOKEN_FILE")
	setString(&c.YouTube.Privacy, "BIOMEDTUBE_PRIVACY")
	setString(&c.History.Path, "BIOMEDTUBE_HISTORY_PATH")
	setBool(&c.YouTube.OpenBrowser, "BIOMEDTUBE_OPEN_BROWSER")
	setBool(&c.KeepFailed, "BIOMEDTUBE_KEEP_FAILED")
	setDuration(&c.HTTP.Timeout, "BIOMEDTUBE_HTTP_TIMEOUT")
	setInt(&c.HTTP.MaxRetries, "BIOMEDTUBE_MAX_RETRIES")

	setString(&c.Archive.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Archive.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Archive.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Archive.Bucket, "MINIO_BUCKET")
	setString(&c.Archive.Region, "MINIO_REGION")
	setBool(&c.Archive.UseSSL, "MINIO_USE_SSL")

	setString(&c.Metrics.PushgatewayURL, "PUSHGATEWAY_URL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// FallbackTopics returns the configured fallback list, or the built-in one.
func (c *Config) FallbackTopics() []string {
	var topics []string
	for _, t := range c.Topic.Fallback {
		if t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return DefaultFallbackTopics
	}
	return topics
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir must not be empty")
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("lock_timeout must be non-negative")
	}
	if c.Topic.MaxResults <= 0 {
		return fmt.Errorf("topic.max_results must be positive")
	}
	if c.Topic.MaxLength <= 0 {
		return fmt.Errorf("topic.max_length must be positive")
	}
	switch c.Speech.Provider {
	case "gtts":
	case "openai":
		if c.Speech.OpenAIKey == "" {
			return fmt.Errorf("speech provider openai requires OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("speech.provider must be gtts or openai, got %q", c.Speech.Provider)
	}
	switch c.YouTube.Privacy {
	case "public", "unlisted", "private":
	default:
		return fmt.Errorf("youtube.privacy must be public, unlisted or private, got %q", c.YouTube.Privacy)
	}
	if c.Video.Timeout <= 0 {
		return fmt.Errorf("video.timeout must be positive")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be non-negative")
	}
	if c.HTTP.MaxRetries > 0 && c.HTTP.MaxBackoff < c.HTTP.InitialBackoff {
		return fmt.Errorf("http.max_backoff must be >= http.initial_backoff")
	}
	if c.Archive.Enabled() {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive.endpoint is set")
		}
		if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when archive.endpoint is set")
		}
	}
	return nil
}
