package biomedtube

import (
	"biomedtube/internal/workspace"
	"biomedtube/speech"
	"biomedtube/video"
	"biomedtube/youtube"
)

// Errors re-exported from sub-packages for library users.
var (
	// ErrLocked indicates another run holds the work directory.
	ErrLocked = workspace.ErrLocked
	// ErrEmptyAudio indicates the speech provider returned no audio.
	ErrEmptyAudio = speech.ErrEmptyAudio
	// ErrFFmpegNotFound indicates ffmpeg or ffprobe is not installed.
	ErrFFmpegNotFound = video.ErrFFmpegNotFound
	// ErrAuthorization indicates the YouTube OAuth flow failed.
	ErrAuthorization = youtube.ErrAuthorization
)

// Error types re-exported from sub-packages.
type (
	// AssembleError reports the failing step of video assembly.
	AssembleError = video.AssembleError
	// UploadError reports the failing step of a YouTube upload.
	UploadError = youtube.UploadError
)
