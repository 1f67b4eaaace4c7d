package biomedtube

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"biomedtube/archive"
	"biomedtube/asset"
	"biomedtube/history"
	"biomedtube/internal/telemetry"
	"biomedtube/internal/workspace"
	"biomedtube/topic"
	"biomedtube/video"
	"biomedtube/youtube"
)

// Pipeline stages, as reported in StageError and metrics.
const (
	StageWorkspace = "workspace"
	StageTopic     = "topic"
	StageAsset     = "asset"
	StageAssemble  = "assemble"
	StageUpload    = "upload"
	StageArchive   = "archive"
	StageCleanup   = "cleanup"
)

// File names inside a run directory.
const (
	BackgroundFile = "background.jpg"
	VideoFile      = "final_video.mp4"
)

// ConceptSource picks the topic of a run. It never fails.
type ConceptSource interface {
	Select(ctx context.Context) topic.Concept
}

// BackgroundSource writes a background image to dest. It only fails when no
// file at all could be written.
type BackgroundSource interface {
	Fetch(ctx context.Context, query, dest string) (asset.Asset, error)
}

// Assembler renders the narrated video.
type Assembler interface {
	Assemble(ctx context.Context, job video.Job) (*video.Result, error)
}

// Publisher uploads a finished video and returns its platform ID.
type Publisher interface {
	Upload(ctx context.Context, path string, meta youtube.Metadata) (string, error)
}

// Archiver keeps a copy of the finished video.
type Archiver interface {
	Archive(ctx context.Context, runID, path string, meta map[string]string) (archive.ObjectInfo, error)
}

// Recorder persists run records.
type Recorder interface {
	Put(r history.Record) error
}

// StageError reports the pipeline stage that ended a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RunResult describes one run. It is returned even when the run fails and
// then holds whatever was known when the failing stage stopped it.
type RunResult struct {
	RunID      string
	Concept    topic.Concept
	Background asset.Source
	Title      string
	VideoID    string
	Duration   time.Duration
	ArchiveKey string
	StartedAt  time.Time
	FinishedAt time.Time
	// Dir is the run directory; it only exists after a failed run.
	Dir string
}

// URL returns the watch link of the uploaded video, if any.
func (r *RunResult) URL() string {
	if r.VideoID == "" {
		return ""
	}
	return youtube.WatchURL(r.VideoID)
}

// Pipeline runs the topic → background → video → upload sequence once.
type Pipeline struct {
	Topics      ConceptSource
	Backgrounds BackgroundSource
	Assembler   Assembler
	Publisher   Publisher

	// Optional collaborators. Nil disables them.
	Archiver Archiver
	History  Recorder
	Metrics  *telemetry.Metrics

	// PushURL and PushJob address the Pushgateway for Metrics.
	PushURL string
	PushJob string

	WorkRoot    string
	LockTimeout time.Duration
	// KeepFailed leaves the run directory in place after a failure.
	KeepFailed bool

	Layout video.Layout
	// Upload holds the tags, category and privacy applied to every video.
	Upload youtube.Metadata

	Now func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// SearchQuery turns a concept into an image search query.
func SearchQuery(concept string) string {
	return strings.ReplaceAll(concept, " ", "+")
}

// VideoTitle returns the upload title for concept on date.
func VideoTitle(concept string, date time.Time) string {
	return fmt.Sprintf("Biomedical Concept: %s (%s)", concept, date.Format("2006-01-02"))
}

// VideoDescription returns the upload description for concept.
func VideoDescription(concept string) string {
	return fmt.Sprintf("Explore %s in today’s video! Subscribe for daily biomedical topics.", concept)
}

// BuildMetadata returns the upload metadata for concept on date, taking tags,
// category and privacy from defaults when set.
func BuildMetadata(concept string, date time.Time, defaults youtube.Metadata) youtube.Metadata {
	meta := youtube.NewMetadata(VideoTitle(concept, date), VideoDescription(concept))
	if len(defaults.Tags) > 0 {
		meta.Tags = append([]string(nil), defaults.Tags...)
	}
	if defaults.CategoryID != "" {
		meta.CategoryID = defaults.CategoryID
	}
	if defaults.Privacy != "" {
		meta.Privacy = defaults.Privacy
	}
	return meta
}

// Run executes one full run. Lookup failures are absorbed by fallbacks; any
// later failure stops the run and is returned as a *StageError.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	defer span.End()

	res := &RunResult{StartedAt: p.now()}

	ws, err := workspace.Open(p.WorkRoot, p.LockTimeout)
	if err != nil {
		err = &StageError{Stage: StageWorkspace, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.FinishedAt = p.now()
		p.report(ctx, res, err)
		return res, err
	}
	defer ws.Close()

	res.RunID = ws.RunID
	span.SetAttributes(attribute.String("run.id", ws.RunID))
	log.Printf("pipeline: run %s started in %s", ws.RunID, ws.Dir)

	err = p.run(ctx, ws, res)
	res.FinishedAt = p.now()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if p.KeepFailed {
			res.Dir = ws.Dir
			log.Printf("pipeline: run %s failed, files kept in %s", ws.RunID, ws.Dir)
		} else if cerr := ws.Cleanup(); cerr != nil {
			log.Printf("pipeline: remove %s: %v", ws.Dir, cerr)
		}
	} else {
		log.Printf("pipeline: run %s finished in %s", ws.RunID, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}

	p.report(ctx, res, err)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, ws *workspace.Workspace, res *RunResult) error {
	err := p.stage(ctx, StageTopic, func(ctx context.Context) error {
		res.Concept = p.Topics.Select(ctx)
		if res.Concept.Source == topic.SourceFallback && p.Metrics != nil {
			p.Metrics.Fallback(StageTopic)
		}
		log.Printf("pipeline: concept %q from %s", res.Concept.Name, res.Concept.Source)
		return nil
	})
	if err != nil {
		return err
	}

	var bg asset.Asset
	err = p.stage(ctx, StageAsset, func(ctx context.Context) error {
		var err error
		bg, err = p.Backgrounds.Fetch(ctx, SearchQuery(res.Concept.Name), ws.Path(BackgroundFile))
		if err != nil {
			return err
		}
		res.Background = bg.Source
		if bg.Source == asset.SourcePlaceholder && p.Metrics != nil {
			p.Metrics.Fallback(StageAsset)
		}
		return nil
	})
	if err != nil {
		return err
	}

	out := ws.Path(VideoFile)
	err = p.stage(ctx, StageAssemble, func(ctx context.Context) error {
		r, err := p.Assembler.Assemble(ctx, video.Job{
			Concept:    res.Concept.Name,
			Background: bg.Path,
			Output:     out,
			WorkDir:    ws.Dir,
			Layout:     p.Layout,
		})
		if err != nil {
			return err
		}
		res.Duration = r.Duration
		return nil
	})
	if err != nil {
		return err
	}

	meta := BuildMetadata(res.Concept.Name, p.now(), p.Upload)
	res.Title = meta.Title

	err = p.stage(ctx, StageUpload, func(ctx context.Context) error {
		id, err := p.Publisher.Upload(ctx, out, meta)
		if err != nil {
			return err
		}
		res.VideoID = id
		return nil
	})
	if err != nil {
		return err
	}

	if p.Archiver != nil {
		// Archiving is a convenience copy; a failure does not fail the run.
		_ = p.stage(ctx, StageArchive, func(ctx context.Context) error {
			info, err := p.Archiver.Archive(ctx, res.RunID, out, map[string]string{
				"concept":  res.Concept.Name,
				"video-id": res.VideoID,
			})
			if err != nil {
				log.Printf("pipeline: archive failed: %v", err)
				return err
			}
			res.ArchiveKey = info.Key
			return nil
		})
	}

	return p.stage(ctx, StageCleanup, func(ctx context.Context) error {
		if err := ws.Remove(out); err != nil {
			return err
		}
		return ws.Cleanup()
	})
}

// stage runs fn inside a span and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "stage."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if p.Metrics != nil {
		p.Metrics.ObserveStage(name, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// report writes the history record and pushes metrics. Failures are logged.
func (p *Pipeline) report(ctx context.Context, res *RunResult, runErr error) {
	status := history.StatusSucceeded
	if runErr != nil {
		status = history.StatusFailed
	}

	if p.History != nil && res.RunID != "" {
		rec := history.Record{
			RunID:            res.RunID,
			StartedAt:        res.StartedAt,
			FinishedAt:       res.FinishedAt,
			Concept:          res.Concept.Name,
			ConceptSource:    string(res.Concept.Source),
			BackgroundSource: string(res.Background),
			VideoID:          res.VideoID,
			ArchiveKey:       res.ArchiveKey,
			Status:           status,
		}
		if runErr != nil {
			rec.Error = runErr.Error()
			var se *StageError
			if errors.As(runErr, &se) {
				rec.Stage = se.Stage
			}
		}
		if err := p.History.Put(rec); err != nil {
			log.Printf("pipeline: record history: %v", err)
		}
	}

	if p.Metrics != nil {
		p.Metrics.RunFinished(string(status), res.Duration, res.FinishedAt)
		if p.PushURL != "" {
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := p.Metrics.Push(pctx, p.PushURL, p.PushJob); err != nil {
				log.Printf("pipeline: %v", err)
			}
		}
	}
}
