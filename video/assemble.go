// Package video renders the narrated clip for a concept with ffmpeg.
package video

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"biomedtube/internal/workspace"
	"biomedtube/speech"
)

// File names used inside a job's work directory.
const (
	NarrationFile = "narration.mp3"
	TitleFile     = "title.txt"
	IntroFile     = "intro.txt"
)

// Job is one render request.
type Job struct {
	Concept    string
	Background string
	Output     string
	// WorkDir holds intermediate files. It defaults to the output's directory.
	WorkDir string
	Layout  Layout
}

// Result describes a rendered video.
type Result struct {
	Output    string
	Narration time.Duration
	Duration  time.Duration
}

// Assembler narrates a concept and composes the final video.
type Assembler struct {
	Speech  speech.Synthesizer
	Runner  CommandRunner
	FFmpeg  string
	FFprobe string
	// Timeout bounds the encode step. Zero means no limit.
	Timeout time.Duration
	// OnProgress receives the encoded fraction in [0, 1].
	OnProgress func(float64)
}

// NewAssembler creates an Assembler that runs the system ffmpeg.
func NewAssembler(synth speech.Synthesizer) *Assembler {
	return &Assembler{
		Speech:  synth,
		Runner:  ExecRunner{},
		FFmpeg:  FFmpegCommand,
		FFprobe: FFprobeCommand,
	}
}

// NarrationText returns the spoken script for concept.
func NarrationText(concept string) string {
	return fmt.Sprintf("Today’s biomedical topic: %s. Discover its role in advancing medicine!", concept)
}

// Check reports whether ffmpeg and ffprobe can be found.
func (a *Assembler) Check() error {
	for _, bin := range []string{a.FFmpeg, a.FFprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%w: %s", ErrFFmpegNotFound, bin)
		}
	}
	return nil
}

// Assemble renders job and removes the narration and background on success.
// Intermediate files are left in place when a step fails.
func (a *Assembler) Assemble(ctx context.Context, job Job) (*Result, error) {
	if job.Layout.Width == 0 {
		job.Layout = DefaultLayout()
	}
	if job.WorkDir == "" {
		job.WorkDir = filepath.Dir(job.Output)
	}
	if _, err := os.Stat(job.Background); err != nil {
		return nil, &AssembleError{Step: StepInput, Err: err}
	}

	narration := filepath.Join(job.WorkDir, NarrationFile)
	if err := a.Speech.Synthesize(ctx, NarrationText(job.Concept), narration); err != nil {
		return nil, &AssembleError{Step: StepNarrate, Err: err}
	}

	spoken, err := ProbeDuration(ctx, a.Runner, a.FFprobe, narration)
	if err != nil {
		return nil, &AssembleError{Step: StepProbe, Err: err}
	}
	total := spoken + job.Layout.Padding
	log.Printf("video: narration %.2fs, rendering %.2fs", spoken.Seconds(), total.Seconds())

	titleFile := filepath.Join(job.WorkDir, TitleFile)
	introFile := filepath.Join(job.WorkDir, IntroFile)
	if err := workspace.WriteFile(titleFile, []byte(job.Concept)); err != nil {
		return nil, &AssembleError{Step: StepCaption, Err: err}
	}
	if err := workspace.WriteFile(introFile, []byte(job.Layout.IntroText)); err != nil {
		return nil, &AssembleError{Step: StepCaption, Err: err}
	}

	if err := a.encode(ctx, job, narration, total, titleFile, introFile); err != nil {
		return nil, &AssembleError{Step: StepEncode, Err: err}
	}

	for _, p := range []string{narration, job.Background, titleFile, introFile} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &AssembleError{Step: StepCleanup, Err: err}
		}
	}

	return &Result{Output: job.Output, Narration: spoken, Duration: total}, nil
}

func (a *Assembler) encode(ctx context.Context, job Job, narration string, total time.Duration, titleFile, introFile string) error {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	progress := newProgressWriter(total, a.OnProgress)
	args := BuildFFmpegArgs(job, narration, total, titleFile, introFile)
	if _, err := a.Runner.Run(ctx, progress, a.FFmpeg, args...); err != nil {
		if tail := progress.Tail(); tail != "" {
			return fmt.Errorf("%w\n%s", err, tail)
		}
		return err
	}

	info, err := os.Stat(job.Output)
	if err != nil || info.Size() == 0 {
		return ErrNoOutput
	}
	if a.OnProgress != nil {
		a.OnProgress(1)
	}
	return nil
}
