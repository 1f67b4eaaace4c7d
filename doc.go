// Package biomedtube produces a short narrated video about a biomedical
// topic and publishes it to YouTube.
//
// Overview
//
// A run is a fixed sequence of stages:
//
//   - topic: pick a concept from recent PubMed articles, or a fixed list
//   - asset: fetch a background photo from Unsplash, or draw a placeholder
//   - assemble: narrate the concept and render a 720p clip with ffmpeg
//   - upload: publish the clip through the YouTube Data API
//
// The two lookups never fail a run; their failures are logged and replaced
// by fallbacks. Every later stage stops the run on its first error.
//
// Quick Start
//
//	cfg, err := config.Load("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	runner, err := biomedtube.New(ctx, cfg, biomedtube.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer runner.Close()
//
//	res, err := runner.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.URL())
//
// Configuration
//
// Settings are loaded from, in order of priority:
//
//  1. Environment variables (a .env file is read first)
//  2. Config file (biomedtube.yaml or ~/.config/biomedtube/biomedtube.yaml)
//  3. Default values
//
// Environment variables:
//
//   - UNSPLASH_ACCESS_KEY: Unsplash client ID; without it the placeholder is used
//   - NCBI_API_KEY, NCBI_EMAIL: optional PubMed credentials
//   - OPENAI_API_KEY: required when BIOMEDTUBE_TTS_PROVIDER=openai
//   - BIOMEDTUBE_WORK_DIR: root of the per-run directories
//   - BIOMEDTUBE_CLIENT_SECRETS, BIOMEDTUBE_TOKEN_FILE: OAuth files
//   - MINIO_ENDPOINT, MINIO_BUCKET, MINIO_ACCESS_KEY, MINIO_SECRET_KEY: archive
//   - PUSHGATEWAY_URL: Prometheus Pushgateway for run metrics
//   - OTEL_EXPORTER_OTLP_ENDPOINT: trace collector
//
// Error Handling
//
// A failed run returns a *StageError naming the stage. Stage errors wrap the
// package errors, so both forms work:
//
//	var stageErr *biomedtube.StageError
//	if errors.As(err, &stageErr) {
//		fmt.Println("failed at", stageErr.Stage)
//	}
//	if errors.Is(err, biomedtube.ErrFFmpegNotFound) {
//		fmt.Println("install ffmpeg")
//	}
//
// Dependencies
//
// ffmpeg and ffprobe must be installed and on PATH, or configured through
// BIOMEDTUBE_FFMPEG_PATH and BIOMEDTUBE_FFPROBE_PATH.
package biomedtube
