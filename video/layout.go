package video

import "time"

// Layout describes the frame and text styling of a rendered video.
type Layout struct {
	Width  int
	Height int
	FPS    int

	// FontFile is a path to a TTF/OTF file. When empty, Font is resolved
	// through fontconfig.
	FontFile string
	Font     string

	TitleSize        int
	TitleColor       string
	TitleBorder      int
	TitleBorderColor string
	TitleFade        time.Duration

	IntroText        string
	IntroSize        int
	IntroY           int
	IntroBorder      int
	IntroBorderColor string
	IntroDuration    time.Duration
	IntroFade        time.Duration

	OverlayColor   string
	OverlayOpacity float64

	// Padding is added after the narration ends.
	Padding time.Duration

	VideoCodec  string
	AudioCodec  string
	PixelFormat string
	Preset      string
}

// DefaultLayout returns the 720p layout used for every upload.
func DefaultLayout() Layout {
	return Layout{
		Width:            1280,
		Height:           720,
		FPS:              24,
		Font:             "Arial",
		TitleSize:        50,
		TitleColor:       "white",
		TitleBorder:      1,
		TitleBorderColor: "black",
		TitleFade:        500 * time.Millisecond,
		IntroText:        "Biomedical Concept of the Day",
		IntroSize:        30,
		IntroY:           50,
		IntroBorder:      1,
		IntroBorderColor: "black",
		IntroDuration:    2 * time.Second,
		IntroFade:        500 * time.Millisecond,
		OverlayColor:     "black",
		OverlayOpacity:   0.4,
		Padding:          time.Second,
		VideoCodec:       "libx264",
		AudioCodec:       "aac",
		PixelFormat:      "yuv420p",
		Preset:           "medium",
	}
}
