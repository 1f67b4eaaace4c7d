package biomedtube

import (
	"context"
	"errors"
	"image/jpeg"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	bhttp "biomedtube/http"
	"biomedtube/archive"
	"biomedtube/asset"
	"biomedtube/history"
	"biomedtube/internal/telemetry"
	"biomedtube/internal/workspace"
	"biomedtube/topic"
	"biomedtube/video"
	"biomedtube/youtube"
)

var runDate = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

type fakeSpeech struct{}

func (fakeSpeech) Synthesize(ctx context.Context, text, dest string) error {
	return os.WriteFile(dest, []byte("mp3:"+text), 0o644)
}

// ffmpegStub answers ffprobe with a fixed duration and writes ffmpeg's output.
type ffmpegStub struct {
	duration string
	// checkBackground inspects the background before encoding.
	checkBackground func(path string)
}

func (s *ffmpegStub) Run(ctx context.Context, stderr io.Writer, name string, args ...string) ([]byte, error) {
	if name == "ffprobe" {
		return []byte(s.duration), nil
	}
	for i, a := range args {
		if a == "-i" && s.checkBackground != nil && strings.HasSuffix(args[i+1], BackgroundFile) {
			s.checkBackground(args[i+1])
		}
	}
	return nil, os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
}

type fakePublisher struct {
	id    string
	err   error
	path  string
	meta  youtube.Metadata
	calls int
}

func (p *fakePublisher) Upload(ctx context.Context, path string, meta youtube.Metadata) (string, error) {
	p.calls++
	p.path = path
	p.meta = meta
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	if p.err != nil {
		return "", p.err
	}
	return p.id, nil
}

type fakeArchiver struct {
	err  error
	keys []string
}

func (a *fakeArchiver) Archive(ctx context.Context, runID, path string, meta map[string]string) (archive.ObjectInfo, error) {
	if a.err != nil {
		return archive.ObjectInfo{}, a.err
	}
	key := runID + "/" + filepath.Base(path)
	a.keys = append(a.keys, key)
	return archive.ObjectInfo{Key: key}, nil
}

type failingAssembler struct{ err error }

func (f failingAssembler) Assemble(ctx context.Context, job video.Job) (*video.Result, error) {
	return nil, f.err
}

// unreachable returns a URL nothing listens on.
func unreachable(t *testing.T) string {
	t.Helper()
	s := httptest.NewServer(http.NotFoundHandler())
	url := s.URL
	s.Close()
	return url
}

// newOfflinePipeline builds a pipeline whose lookups both fail, so the
// fallback list ("CRISPR" only) and the placeholder are used.
func newOfflinePipeline(t *testing.T, stub *ffmpegStub, pub *fakePublisher) *Pipeline {
	t.Helper()
	client := bhttp.New(nil)
	t.Cleanup(func() { client.Close() })

	sel := topic.NewSelector(client)
	sel.BaseURL = unreachable(t)
	sel.Fallback = []string{"CRISPR"}
	sel.SetRand(rand.New(rand.NewSource(7)))

	fetcher := asset.NewFetcher(client, "")

	asm := video.NewAssembler(fakeSpeech{})
	asm.Runner = stub

	return &Pipeline{
		Topics:      sel,
		Backgrounds: fetcher,
		Assembler:   asm,
		Publisher:   pub,
		WorkRoot:    t.TempDir(),
		LockTimeout: 100 * time.Millisecond,
		KeepFailed:  true,
		Layout:      video.DefaultLayout(),
		Now:         func() time.Time { return runDate },
	}
}

func TestRunOfflineFallbacks(t *testing.T) {
	checked := false
	stub := &ffmpegStub{
		duration: "4.500000",
		checkBackground: func(path string) {
			checked = true
			f, err := os.Open(path)
			if err != nil {
				t.Errorf("background missing: %v", err)
				return
			}
			defer f.Close()
			cfg, err := jpeg.DecodeConfig(f)
			if err != nil {
				t.Errorf("background is not a JPEG: %v", err)
				return
			}
			if cfg.Width != 1280 || cfg.Height != 720 {
				t.Errorf("background is %dx%d, want 1280x720", cfg.Width, cfg.Height)
			}
		},
	}
	pub := &fakePublisher{id: "vid123"}
	p := newOfflinePipeline(t, stub, pub)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !checked {
		t.Error("encoder never saw the background")
	}

	if res.Concept.Name != "CRISPR" || res.Concept.Source != topic.SourceFallback {
		t.Errorf("Concept = %+v, want CRISPR fallback", res.Concept)
	}
	if res.Background != asset.SourcePlaceholder {
		t.Errorf("Background = %q, want placeholder", res.Background)
	}
	if res.Duration != 5500*time.Millisecond {
		t.Errorf("Duration = %v, want narration + 1s = 5.5s", res.Duration)
	}
	if res.VideoID != "vid123" || res.URL() != "https://youtu.be/vid123" {
		t.Errorf("VideoID = %q URL = %q", res.VideoID, res.URL())
	}

	wantTitle := "Biomedical Concept: CRISPR (2026-10-19)"
	if pub.meta.Title != wantTitle || res.Title != wantTitle {
		t.Errorf("title = %q, want %q", pub.meta.Title, wantTitle)
	}
	if pub.meta.Description != "Explore CRISPR in today’s video! Subscribe for daily biomedical topics." {
		t.Errorf("description = %q", pub.meta.Description)
	}
	if pub.meta.CategoryID != "28" || pub.meta.Privacy != "public" {
		t.Errorf("meta = %+v", pub.meta)
	}
	if filepath.Base(pub.path) != VideoFile {
		t.Errorf("uploaded %s, want %s", pub.path, VideoFile)
	}

	// Only the lock file may remain in the work root.
	entries, err := os.ReadDir(p.WorkRoot)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != ".lock" {
			t.Errorf("leftover %s in work root", e.Name())
		}
	}
	if res.Dir != "" {
		t.Errorf("Dir = %q after success, want empty", res.Dir)
	}
}

func TestRunRecordsHistoryAndMetrics(t *testing.T) {
	var pushes atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}

	p := newOfflinePipeline(t, &ffmpegStub{duration: "3"}, &fakePublisher{id: "abc"})
	p.History = store
	p.Metrics = metrics
	p.PushURL = gateway.URL
	p.PushJob = "biomedtube"
	arch := &fakeArchiver{}
	p.Archiver = arch

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec, err := store.Get(res.RunID)
	if err != nil {
		t.Fatalf("history.Get: %v", err)
	}
	if rec.Status != history.StatusSucceeded || rec.VideoID != "abc" || rec.Concept != "CRISPR" {
		t.Errorf("record = %+v", rec)
	}
	if rec.BackgroundSource != "placeholder" || rec.ConceptSource != "fallback" {
		t.Errorf("record sources = %q/%q", rec.ConceptSource, rec.BackgroundSource)
	}
	if len(arch.keys) != 1 || rec.ArchiveKey != arch.keys[0] {
		t.Errorf("archive keys = %v, record key %q", arch.keys, rec.ArchiveKey)
	}
	if pushes.Load() != 1 {
		t.Errorf("pushes = %d, want 1", pushes.Load())
	}
}

func TestRunUploadFailureKeepsFiles(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	authErr := &youtube.UploadError{Op: "authorize", Err: youtube.ErrAuthorization}
	p := newOfflinePipeline(t, &ffmpegStub{duration: "3"}, &fakePublisher{err: authErr})
	p.History = store

	res, err := p.Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageUpload {
		t.Fatalf("expected upload StageError, got %v", err)
	}
	if !errors.Is(err, ErrAuthorization) {
		t.Errorf("expected ErrAuthorization in chain, got %v", err)
	}
	if res.Dir == "" {
		t.Fatal("Dir empty after failure with KeepFailed")
	}
	if _, err := os.Stat(filepath.Join(res.Dir, VideoFile)); err != nil {
		t.Errorf("rendered video not kept: %v", err)
	}

	rec, err := store.Get(res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != history.StatusFailed || rec.Stage != StageUpload || rec.Error == "" {
		t.Errorf("record = %+v", rec)
	}
}

func TestRunFailureCleansUpWhenConfigured(t *testing.T) {
	p := newOfflinePipeline(t, &ffmpegStub{duration: "3"}, &fakePublisher{err: errors.New("quota")})
	p.KeepFailed = false

	res, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Dir != "" {
		t.Errorf("Dir = %q, want empty", res.Dir)
	}
	if _, err := os.Stat(filepath.Join(p.WorkRoot, res.RunID)); !os.IsNotExist(err) {
		t.Errorf("run dir still exists: %v", err)
	}
}

func TestRunAssembleFailureSkipsUpload(t *testing.T) {
	pub := &fakePublisher{id: "never"}
	p := newOfflinePipeline(t, &ffmpegStub{duration: "3"}, pub)
	p.Assembler = failingAssembler{err: &video.AssembleError{Step: video.StepEncode, Err: video.ErrFFmpegNotFound}}

	_, err := p.Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageAssemble {
		t.Fatalf("expected assemble StageError, got %v", err)
	}
	var ae *AssembleError
	if !errors.As(err, &ae) || ae.Step != video.StepEncode {
		t.Errorf("expected AssembleError at encode, got %v", err)
	}
	if !errors.Is(err, ErrFFmpegNotFound) {
		t.Errorf("expected ErrFFmpegNotFound in chain")
	}
	if pub.calls != 0 {
		t.Errorf("publisher called %d times after assemble failure", pub.calls)
	}
}

func TestRunArchiveFailureIsNotFatal(t *testing.T) {
	p := newOfflinePipeline(t, &ffmpegStub{duration: "3"}, &fakePublisher{id: "ok"})
	p.Archiver = &fakeArchiver{err: errors.New("bucket gone")}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ArchiveKey != "" {
		t.Errorf("ArchiveKey = %q, want empty", res.ArchiveKey)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	p := newOfflinePipeline(t, &ffmpegStub{duration: "3"}, &fakePublisher{id: "x"})

	held, err := workspace.Open(p.WorkRoot, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Close()

	_, err = p.Run(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageWorkspace {
		t.Fatalf("expected workspace StageError, got %v", err)
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}

func TestBuildMetadata(t *testing.T) {
	meta := BuildMetadata("Stem Cells", runDate, youtube.Metadata{})
	if meta.Title != "Biomedical Concept: Stem Cells (2026-10-19)" {
		t.Errorf("Title = %q", meta.Title)
	}
	if !strings.Contains(meta.Title, "Stem Cells") || !strings.Contains(meta.Description, "Stem Cells") {
		t.Error("metadata does not mention the concept")
	}
	if strings.Join(meta.Tags, ",") != "biomedical,science,health" {
		t.Errorf("Tags = %v", meta.Tags)
	}

	custom := BuildMetadata("CRISPR", runDate, youtube.Metadata{
		Tags:       []string{"genetics"},
		CategoryID: "27",
		Privacy:    "unlisted",
	})
	if custom.CategoryID != "27" || custom.Privacy != "unlisted" || custom.Tags[0] != "genetics" {
		t.Errorf("custom metadata = %+v", custom)
	}
}

func TestSearchQuery(t *testing.T) {
	tests := map[string]string{
		"CRISPR":                 "CRISPR",
		"mRNA Vaccines":          "mRNA+Vaccines",
		"Gene therapy for cells": "Gene+therapy+for+cells",
	}
	for in, want := range tests {
		if got := SearchQuery(in); got != want {
			t.Errorf("SearchQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
