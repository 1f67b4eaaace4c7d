package speech

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	bhttp "biomedtube/http"
	"biomedtube/internal/workspace"
)

// DefaultGTTSURL is the Google Translate text-to-speech endpoint.
const DefaultGTTSURL = "https://translate.google.com/translate_tts"

// MaxChunkLen is the longest text the translate endpoint accepts per request.
const MaxChunkLen = 100

// GTTS synthesizes speech with the Google Translate voice.
type GTTS struct {
	Client   *bhttp.Client
	BaseURL  string
	Language string
}

// NewGTTS creates a GTTS provider for lang (e.g. "en").
func NewGTTS(client *bhttp.Client, lang string) *GTTS {
	if lang == "" {
		lang = "en"
	}
	return &GTTS{Client: client, BaseURL: DefaultGTTSURL, Language: lang}
}

// Synthesize fetches one MP3 per text chunk and concatenates them into dest.
func (g *GTTS) Synthesize(ctx context.Context, text, dest string) error {
	chunks := SplitText(text, MaxChunkLen)
	if len(chunks) == 0 {
		return ErrEmptyText
	}

	err := workspace.WriteFrom(dest, func(w io.Writer) error {
		for i, chunk := range chunks {
			q := url.Values{}
			q.Set("ie", "UTF-8")
			q.Set("client", "tw-ob")
			q.Set("tl", g.Language)
			q.Set("q", chunk)
			q.Set("total", strconv.Itoa(len(chunks)))
			q.Set("idx", strconv.Itoa(i))
			q.Set("textlen", strconv.Itoa(len([]rune(chunk))))

			resp, err := g.Client.Get(ctx, g.BaseURL+"?"+q.Encode())
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			if len(resp.Body) == 0 {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), ErrEmptyAudio)
			}
			if _, err := w.Write(resp.Body); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &Error{Provider: "gtts", Err: err}
	}
	return nil
}
