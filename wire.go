package biomedtube

import (
	"context"
	"fmt"
	"io"
	"log"

	bhttp "biomedtube/http"
	"biomedtube/archive"
	"biomedtube/asset"
	"biomedtube/config"
	"biomedtube/history"
	"biomedtube/internal/retry"
	"biomedtube/internal/telemetry"
	"biomedtube/speech"
	"biomedtube/topic"
	"biomedtube/video"
	"biomedtube/youtube"
)

// Options adjusts a Pipeline built by New.
type Options struct {
	// OnProgress receives the encode fraction in [0, 1].
	OnProgress func(float64)
	// OnUpload receives uploaded and total bytes.
	OnUpload func(current, total int64)
	// Prompt receives the OAuth consent URL. Defaults to stderr.
	Prompt io.Writer
}

// Runner is a configured Pipeline together with the resources it owns.
type Runner struct {
	*Pipeline

	client    *bhttp.Client
	history   *history.Store
	assembler *video.Assembler
}

// Check verifies that the external render tools are installed.
func (r *Runner) Check() error {
	return r.assembler.Check()
}

// Close releases the HTTP client and the history ledger.
func (r *Runner) Close() error {
	r.client.Close()
	if r.history != nil {
		return r.history.Close()
	}
	return nil
}

// NewHTTPClient builds the shared outbound client from cfg.
func NewHTTPClient(cfg *config.Config) *bhttp.Client {
	hc := bhttp.DefaultConfig()
	hc.Timeout = cfg.HTTP.Timeout
	hc.Retry = retry.Config{
		MaxRetries:     cfg.HTTP.MaxRetries,
		InitialBackoff: cfg.HTTP.InitialBackoff,
		MaxBackoff:     cfg.HTTP.MaxBackoff,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
	if cfg.Topic.APIKey != "" {
		// NCBI allows 10 req/s with a key.
		hc.RateLimiter.CustomRates[bhttp.NCBIHost] = 10
	}
	return bhttp.New(hc)
}

// NewTopicSelector builds the PubMed selector from cfg.
func NewTopicSelector(client *bhttp.Client, cfg *config.Config) *topic.Selector {
	s := topic.NewSelector(client)
	s.SearchTerm = cfg.Topic.SearchTerm
	s.MaxResults = cfg.Topic.MaxResults
	s.MaxLength = cfg.Topic.MaxLength
	s.APIKey = cfg.Topic.APIKey
	s.Email = cfg.Topic.Email
	s.Fallback = cfg.FallbackTopics()
	return s
}

// NewAssembler builds the video assembler from cfg.
func NewAssembler(client *bhttp.Client, cfg *config.Config) (*video.Assembler, error) {
	synth, err := speech.New(client, speech.Options{
		Provider:  cfg.Speech.Provider,
		Language:  cfg.Speech.Language,
		OpenAIKey: cfg.Speech.OpenAIKey,
		Voice:     cfg.Speech.Voice,
		Model:     cfg.Speech.Model,
	})
	if err != nil {
		return nil, err
	}
	a := video.NewAssembler(synth)
	a.FFmpeg = cfg.Video.FFmpegPath
	a.FFprobe = cfg.Video.FFprobePath
	a.Timeout = cfg.Video.Timeout
	return a, nil
}

// Layout returns the render layout with the configured fonts.
func Layout(cfg *config.Config) video.Layout {
	l := video.DefaultLayout()
	if cfg.Video.Font != "" {
		l.Font = cfg.Video.Font
	}
	l.FontFile = cfg.Video.FontFile
	return l
}

// New wires a Pipeline from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runner, error) {
	client := NewHTTPClient(cfg)

	fetcher := asset.NewFetcher(client, cfg.Unsplash.AccessKey)
	fetcher.Orientation = cfg.Unsplash.Orientation

	assembler, err := NewAssembler(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	assembler.OnProgress = opts.OnProgress

	flow := youtube.NewInstalledAppFlow(cfg.YouTube.ClientSecretsFile, cfg.YouTube.TokenFile)
	flow.OpenBrowser = cfg.YouTube.OpenBrowser
	flow.HTTPClient = client.StdClient()
	if opts.Prompt != nil {
		flow.Out = opts.Prompt
	}
	uploader := youtube.NewUploader(flow)
	uploader.OnProgress = opts.OnUpload

	r := &Runner{
		Pipeline: &Pipeline{
			Topics:      NewTopicSelector(client, cfg),
			Backgrounds: fetcher,
			Assembler:   assembler,
			Publisher:   uploader,
			WorkRoot:    cfg.WorkDir,
			LockTimeout: cfg.LockTimeout,
			KeepFailed:  cfg.KeepFailed,
			Layout:      Layout(cfg),
			Upload: youtube.Metadata{
				Tags:       cfg.YouTube.Tags,
				CategoryID: cfg.YouTube.CategoryID,
				Privacy:    cfg.YouTube.Privacy,
			},
		},
		client:    client,
		assembler: assembler,
	}

	if cfg.Archive.Enabled() {
		store, err := archive.NewMinIO(ctx, cfg.Archive)
		if err != nil {
			// The archive is optional; an unreachable bucket must not block uploads.
			log.Printf("pipeline: archive disabled: %v", err)
		} else {
			r.Archiver = store
		}
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		r.history = store
		r.History = store
	}

	if cfg.Metrics.PushgatewayURL != "" {
		m, err := telemetry.NewMetrics()
		if err != nil {
			r.Close()
			return nil, err
		}
		r.Metrics = m
		r.PushURL = cfg.Metrics.PushgatewayURL
		r.PushJob = cfg.Metrics.Job
	}

	return r, nil
}
