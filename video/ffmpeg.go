package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Tool defaults and ffmpeg argument constants.
const (
	FFmpegCommand       = "ffmpeg"
	FFprobeCommand      = "ffprobe"
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"
	ProgressPipeTarget  = "pipe:2"
	ProgressTimePrefix  = "out_time_us="
	FastStartFlag       = "+faststart"
	AudioBitrate        = "128k"
)

// CommandRunner runs an external program. stderr, when non-nil, receives the
// program's standard error as it is produced.
type CommandRunner interface {
	Run(ctx context.Context, stderr io.Writer, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name and returns its standard output.
func (ExecRunner) Run(ctx context.Context, stderr io.Writer, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var tail bytes.Buffer
	if stderr != nil {
		cmd.Stderr = stderr
	} else {
		cmd.Stderr = &tail
	}

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFFmpegNotFound, name)
		}
		if msg := strings.TrimSpace(tail.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// ProbeDuration returns the container duration of path.
func ProbeDuration(ctx context.Context, runner CommandRunner, ffprobe, path string) (time.Duration, error) {
	out, err := runner.Run(ctx, nil, ffprobe,
		"-v", FFprobeLogLevel,
		"-show_entries", FFprobeShowEntries,
		"-of", FFprobeOutputFormat,
		path)
	if err != nil {
		return 0, err
	}

	s := strings.TrimSpace(string(out))
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// BuildFFmpegArgs builds the ffmpeg arguments that render job. titleFile and
// introFile hold the caption text.
func BuildFFmpegArgs(job Job, narration string, total time.Duration, titleFile, introFile string) []string {
	l := job.Layout
	return []string{
		"-y",
		"-hide_banner",
		"-nostats",
		"-loop", "1",
		"-framerate", strconv.Itoa(l.FPS),
		"-i", job.Background,
		"-i", narration,
		"-filter_complex", BuildFilterGraph(l, total, titleFile, introFile),
		"-map", "[v]",
		"-map", "1:a",
		"-c:v", l.VideoCodec,
		"-preset", l.Preset,
		"-c:a", l.AudioCodec,
		"-b:a", AudioBitrate,
		"-r", strconv.Itoa(l.FPS),
		"-pix_fmt", l.PixelFormat,
		"-t", seconds(total),
		"-movflags", FastStartFlag,
		"-progress", ProgressPipeTarget,
		job.Output,
	}
}

// BuildFilterGraph returns the filter_complex graph: the background scaled and
// cropped to the frame, a translucent shade, the centred title for the whole
// clip and the intro line for its first seconds.
func BuildFilterGraph(l Layout, total time.Duration, titleFile, introFile string) string {
	size := fmt.Sprintf("%d:%d", l.Width, l.Height)

	bg := fmt.Sprintf("[0:v]scale=%s:force_original_aspect_ratio=increase,crop=%s,setsar=1,format=rgb24", size, size)
	shade := fmt.Sprintf("drawbox=x=0:y=0:w=iw:h=ih:color=%s@%s:t=fill",
		l.OverlayColor, strconv.FormatFloat(l.OverlayOpacity, 'f', -1, 64))

	title := fmt.Sprintf("drawtext=%s:textfile=%s:expansion=none:fontsize=%d:fontcolor=%s:borderw=%d:bordercolor=%s:x=(w-text_w)/2:y=(h-text_h)/2:alpha='%s'",
		fontOption(l), escapeFilterValue(titleFile), l.TitleSize, l.TitleColor,
		l.TitleBorder, l.TitleBorderColor, fadeInOut(l.TitleFade, total))

	intro := fmt.Sprintf("drawtext=%s:textfile=%s:expansion=none:fontsize=%d:fontcolor=%s:borderw=%d:bordercolor=%s:x=(w-text_w)/2:y=%d:enable='between(t,0,%s)':alpha='%s'",
		fontOption(l), escapeFilterValue(introFile), l.IntroSize, l.TitleColor,
		l.IntroBorder, l.IntroBorderColor, l.IntroY, seconds(l.IntroDuration), fadeIn(l.IntroFade))

	return strings.Join([]string{bg, shade, title, intro, "format=" + l.PixelFormat + "[v]"}, ",")
}

func fontOption(l Layout) string {
	if l.FontFile != "" {
		return "fontfile=" + escapeFilterValue(l.FontFile)
	}
	return "font=" + escapeFilterValue(l.Font)
}

// fadeInOut is an alpha expression ramping up over fade, holding at 1 and
// ramping down over the last fade of total.
func fadeInOut(fade, total time.Duration) string {
	if fade <= 0 {
		return "1"
	}
	f, end := seconds(fade), seconds(total-fade)
	return fmt.Sprintf("if(lt(t,%s),t/%s,if(gt(t,%s),(%s-t)/%s,1))", f, f, end, seconds(total), f)
}

func fadeIn(fade time.Duration) string {
	if fade <= 0 {
		return "1"
	}
	f := seconds(fade)
	return fmt.Sprintf("if(lt(t,%s),t/%s,1)", f, f)
}

// escapeFilterValue escapes s for use as an unquoted option value inside a
// filtergraph: first for the option parser, then for the graph parser.
func escapeFilterValue(s string) string {
	return escapeChars(escapeChars(s, `\':`), `\'[],;`)
}

func escapeChars(s, special string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// progressWriter parses "-progress pipe:2" output and keeps the last few
// diagnostic lines for error reports.
type progressWriter struct {
	total time.Duration
	fn    func(float64)

	mu   sync.Mutex
	buf  []byte
	tail []string
}

const progressTailLines = 8

func newProgressWriter(total time.Duration, fn func(float64)) *progressWriter {
	return &progressWriter{total: total, fn: fn}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.line(strings.TrimSpace(string(w.buf[:i])))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *progressWriter) line(line string) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, ProgressTimePrefix) {
		us, err := strconv.ParseInt(strings.TrimPrefix(line, ProgressTimePrefix), 10, 64)
		if err != nil || w.fn == nil || w.total <= 0 {
			return
		}
		frac := float64(us) / float64(w.total.Microseconds())
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		w.fn(frac)
		return
	}
	if strings.Contains(line, "=") && !strings.Contains(line, " ") {
		// other progress keys (frame=, bitrate=, progress=...)
		return
	}
	w.tail = append(w.tail, line)
	if len(w.tail) > progressTailLines {
		w.tail = w.tail[len(w.tail)-progressTailLines:]
	}
}

// Tail returns the last diagnostic lines written by ffmpeg.
func (w *progressWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.tail, "\n")
}
