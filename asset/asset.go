// Package asset fetches the background image for a video.
//
// Like topic selection this stage is fail-soft: any problem with the
// Unsplash lookup or the downloaded payload is logged and replaced by a
// generated placeholder, so Fetch only fails when it cannot write a file.
package asset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"log"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	bhttp "biomedtube/http"
	"biomedtube/internal/workspace"
)

// DefaultBaseURL is the Unsplash API endpoint.
const DefaultBaseURL = "https://api.unsplash.com"

// Placeholder dimensions and colour.
const (
	PlaceholderWidth  = 1280
	PlaceholderHeight = 720
)

// PlaceholderColor is the flat fill of the generated background.
var PlaceholderColor = color.RGBA{R: 0, G: 50, B: 100, A: 255}

// Source records where a background came from.
type Source string

const (
	SourceUnsplash    Source = "unsplash"
	SourcePlaceholder Source = "placeholder"
)

// Lookup errors. They are logged, never returned by Fetch.
var (
	ErrNoAccessKey = errors.New("asset: no unsplash access key configured")
	ErrNoResults   = errors.New("asset: search returned no photos")
	ErrNotImage    = errors.New("asset: downloaded payload is not an image")
)

// Asset is a background image on local disk.
type Asset struct {
	Path   string
	Source Source
	// MIME is the detected content type of the file.
	MIME string
}

// Fetcher looks up a background on Unsplash.
type Fetcher struct {
	Client      *bhttp.Client
	BaseURL     string
	AccessKey   string
	Orientation string
}

// NewFetcher creates a Fetcher for the public Unsplash API.
func NewFetcher(client *bhttp.Client, accessKey string) *Fetcher {
	return &Fetcher{
		Client:      client,
		BaseURL:     DefaultBaseURL,
		AccessKey:   accessKey,
		Orientation: "landscape",
	}
}

type searchResponse struct {
	Results []struct {
		ID   string `json:"id"`
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// Fetch writes a background image for query to dest. query uses '+' as the
// word separator. The returned error is non-nil only when the placeholder
// itself could not be written.
func (f *Fetcher) Fetch(ctx context.Context, query, dest string) (Asset, error) {
	mime, err := f.download(ctx, query, dest)
	if err == nil {
		log.Printf("asset: fetched unsplash background for %q (%s)", query, mime)
		return Asset{Path: dest, Source: SourceUnsplash, MIME: mime}, nil
	}

	log.Printf("asset: unsplash lookup failed, using placeholder: %v", err)
	if err := WritePlaceholder(dest); err != nil {
		return Asset{}, fmt.Errorf("asset: write placeholder: %w", err)
	}
	return Asset{Path: dest, Source: SourcePlaceholder, MIME: "image/jpeg"}, nil
}

func (f *Fetcher) download(ctx context.Context, query, dest string) (string, error) {
	if f.AccessKey == "" {
		return "", ErrNoAccessKey
	}
	if f.Client == nil {
		return "", errors.New("asset: no http client configured")
	}

	searchURL := fmt.Sprintf("%s/search/photos?query=%s&per_page=1&orientation=%s",
		f.BaseURL, escapeQuery(query), url.QueryEscape(f.Orientation))
	headers := map[string]string{
		"Authorization":  "Client-ID " + f.AccessKey,
		"Accept-Version": "v1",
	}

	var search searchResponse
	if err := f.Client.GetJSON(ctx, searchURL, headers, &search); err != nil {
		return "", fmt.Errorf("search: %w", err)
	}
	if len(search.Results) == 0 || search.Results[0].URLs.Regular == "" {
		return "", ErrNoResults
	}

	resp, err := f.Client.Get(ctx, search.Results[0].URLs.Regular)
	if err != nil {
		return "", fmt.Errorf("download photo %s: %w", search.Results[0].ID, err)
	}

	mtype := mimetype.Detect(resp.Body)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mtype.String())
	}

	if err := workspace.WriteFile(dest, resp.Body); err != nil {
		return "", fmt.Errorf("save photo: %w", err)
	}
	return mtype.String(), nil
}

// escapeQuery escapes each '+'-separated word, keeping '+' as the separator.
func escapeQuery(q string) string {
	words := strings.Split(q, "+")
	for i, w := range words {
		words[i] = url.QueryEscape(w)
	}
	return strings.Join(words, "+")
}

// WritePlaceholder writes the flat placeholder JPEG to dest.
func WritePlaceholder(dest string) error {
	return workspace.WriteFrom(dest, EncodePlaceholder)
}

// EncodePlaceholder encodes the placeholder JPEG to w.
func EncodePlaceholder(w io.Writer) error {
	img := image.NewRGBA(image.Rect(0, 0, PlaceholderWidth, PlaceholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: PlaceholderColor}, image.Point{}, draw.Src)

	return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
}
