package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"biomedtube"
	"biomedtube/config"
	"biomedtube/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once: pick a topic, render, upload",
	Example: `  # Daily run with the configured settings
  biomedtube run

  # Upload privately and always clean up
  biomedtube run --privacy private --keep-failed=false

  # Headless host: print the consent URL instead of opening a browser
  biomedtube run --no-browser --quiet`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().String("privacy", "", "Override youtube.privacy (public, unlisted, private)")
	runCmd.Flags().Bool("keep-failed", true, "Keep the run directory when the run fails (overrides keep_failed)")
	runCmd.Flags().Bool("no-browser", false, "Do not open a browser for YouTube consent")
	runCmd.Flags().BoolP("quiet", "q", false, "Disable progress bars")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags copies command-line overrides into cfg and revalidates it.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	if privacy, _ := cmd.Flags().GetString("privacy"); privacy != "" {
		cfg.YouTube.Privacy = privacy
	}
	if cmd.Flags().Changed("keep-failed") {
		cfg.KeepFailed, _ = cmd.Flags().GetBool("keep-failed")
	}
	if noBrowser, _ := cmd.Flags().GetBool("no-browser"); noBrowser {
		cfg.YouTube.OpenBrowser = false
	}
	return cfg.Validate()
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitTracing(ctx, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Printf("telemetry: shutdown: %v", err)
		}
	}()

	quiet, _ := cmd.Flags().GetBool("quiet")
	progress := newProgress(cmd.ErrOrStderr(), quiet)

	runner, err := biomedtube.New(ctx, cfg, biomedtube.Options{
		OnProgress: progress.render,
		OnUpload:   progress.upload,
		Prompt:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer runner.Close()

	if err := runner.Check(); err != nil {
		return err
	}

	res, err := runner.Run(ctx)
	progress.finish()
	if err != nil {
		if res != nil && res.Dir != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Run files kept in %s\n", res.Dir)
		}
		if errors.Is(err, biomedtube.ErrFFmpegNotFound) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Install ffmpeg or set video.ffmpeg_path.")
		}
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Concept: %s (%s)\n", res.Concept.Name, res.Concept.Source)
	fmt.Fprintf(cmd.ErrOrStderr(), "Title:   %s\n", res.Title)
	fmt.Fprintln(cmd.OutOrStdout(), res.URL())
	return nil
}

// progress drives the render and upload bars.
type progress struct {
	out    io.Writer
	quiet  bool
	encode *progressbar.ProgressBar
	send   *progressbar.ProgressBar
}

func newProgress(out io.Writer, quiet bool) *progress {
	return &progress{out: out, quiet: quiet}
}

func (p *progress) render(fraction float64) {
	if p.quiet {
		return
	}
	if p.encode == nil {
		p.encode = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription("Rendering"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.out) }),
		)
	}
	p.encode.Set(int(fraction * 100))
}

func (p *progress) upload(current, total int64) {
	if p.quiet {
		return
	}
	if p.send == nil {
		max := total
		if max <= 0 {
			max = -1
		}
		p.send = progressbar.NewOptions64(max,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription("Uploading"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.out) }),
		)
	}
	p.send.Set64(current)
}

func (p *progress) finish() {
	for _, bar := range []*progressbar.ProgressBar{p.encode, p.send} {
		if bar != nil && !bar.IsFinished() {
			bar.Exit()
		}
	}
}
