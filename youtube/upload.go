// Package youtube publishes rendered videos to a YouTube channel.
package youtube

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Upload defaults.
const (
	// DefaultCategoryID is "Science & Technology".
	DefaultCategoryID = "28"
	PrivacyPublic     = "public"
	PrivacyUnlisted   = "unlisted"
	PrivacyPrivate    = "private"
)

// DefaultTags are attached to every upload.
var DefaultTags = []string{"biomedical", "science", "health"}

// Metadata describes an upload.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
}

// NewMetadata returns metadata with the default tags, category and privacy.
func NewMetadata(title, description string) Metadata {
	return Metadata{
		Title:       title,
		Description: description,
		Tags:        append([]string(nil), DefaultTags...),
		CategoryID:  DefaultCategoryID,
		Privacy:     PrivacyPublic,
	}
}

// ValidPrivacy reports whether p is a privacy status YouTube accepts.
func ValidPrivacy(p string) bool {
	switch p {
	case PrivacyPublic, PrivacyUnlisted, PrivacyPrivate:
		return true
	}
	return false
}

// WatchURL returns the short watch link for a video ID.
func WatchURL(id string) string {
	return "https://youtu.be/" + id
}

// Authorizer supplies an HTTP client carrying upload credentials.
type Authorizer interface {
	Client(ctx context.Context) (*http.Client, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context) (*http.Client, error)

// Client calls f.
func (f AuthorizerFunc) Client(ctx context.Context) (*http.Client, error) {
	return f(ctx)
}

// Uploader inserts videos through the YouTube Data API v3.
type Uploader struct {
	auth Authorizer
	opts []option.ClientOption

	// ChunkSize selects resumable uploads in chunks of this many bytes.
	// Zero uses the client library default.
	ChunkSize int
	// OnProgress receives bytes sent so far and the total, when known.
	OnProgress func(current, total int64)
}

// NewUploader creates an Uploader. opts are appended to the service options
// after the authorized HTTP client, e.g. option.WithEndpoint for tests.
func NewUploader(auth Authorizer, opts ...option.ClientOption) *Uploader {
	return &Uploader{auth: auth, opts: opts}
}

// Upload publishes the video at path and returns its ID.
func (u *Uploader) Upload(ctx context.Context, path string, meta Metadata) (string, error) {
	if meta.Privacy == "" {
		meta.Privacy = PrivacyPublic
	}
	if !ValidPrivacy(meta.Privacy) {
		return "", &UploadError{Op: "insert", Path: path, Err: fmt.Errorf("%w: %q", ErrInvalidPrivacy, meta.Privacy)}
	}
	if meta.CategoryID == "" {
		meta.CategoryID = DefaultCategoryID
	}

	client, err := u.auth.Client(ctx)
	if err != nil {
		return "", &UploadError{Op: "authorize", Path: path, Err: fmt.Errorf("%w: %w", ErrAuthorization, err)}
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, u.opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", &UploadError{Op: "authorize", Path: path, Err: fmt.Errorf("create youtube service: %w", err)}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", &UploadError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: meta.Privacy,
		},
	}

	var mediaOpts []googleapi.MediaOption
	if u.ChunkSize > 0 {
		mediaOpts = append(mediaOpts, googleapi.ChunkSize(u.ChunkSize))
	}
	call := service.Videos.Insert([]string{"snippet", "status"}, video).
		Media(f, mediaOpts...).
		Context(ctx)
	if u.OnProgress != nil {
		call = call.ProgressUpdater(googleapi.ProgressUpdater(u.OnProgress))
	}

	resp, err := call.Do()
	if err != nil {
		return "", &UploadError{Op: "insert", Path: path, Err: err}
	}
	if resp.Id == "" {
		return "", &UploadError{Op: "insert", Path: path, Err: ErrNoVideoID}
	}

	log.Printf("youtube: uploaded %s", WatchURL(resp.Id))
	return resp.Id, nil
}
