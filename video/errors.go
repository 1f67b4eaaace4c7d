package video

import (
	"errors"
	"fmt"
)

// Assembly steps reported in AssembleError.
const (
	StepInput   = "input"
	StepNarrate = "narrate"
	StepProbe   = "probe"
	StepCaption = "caption"
	StepEncode  = "encode"
	StepCleanup = "cleanup"
)

var (
	// ErrFFmpegNotFound indicates ffmpeg or ffprobe is not installed.
	ErrFFmpegNotFound = errors.New("video: ffmpeg not found")

	// ErrInvalidDuration indicates ffprobe reported an unusable duration.
	ErrInvalidDuration = errors.New("video: invalid media duration")

	// ErrNoOutput indicates ffmpeg exited cleanly without writing the output.
	ErrNoOutput = errors.New("video: encoder produced no output")
)

// AssembleError reports the step at which assembly failed.
type AssembleError struct {
	Step string
	Err  error
}

func (e *AssembleError) Error() string {
	return fmt.Sprintf("video: %s: %v", e.Step, e.Err)
}

func (e *AssembleError) Unwrap() error { return e.Err }
