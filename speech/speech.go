// Package speech turns narration text into an MP3 file.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel errors shared by all providers.
var (
	ErrEmptyText     = errors.New("speech: empty narration text")
	ErrEmptyAudio    = errors.New("speech: provider returned no audio")
	ErrUnknownEngine = errors.New("speech: unknown provider")
)

// Synthesizer writes spoken audio for text to dest.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, dest string) error
}

// Error reports a failure inside a provider.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("speech: %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SplitText breaks text into chunks of at most maxLen runes, splitting on
// word boundaries. Words longer than maxLen are cut.
func SplitText(text string, maxLen int) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		for utf8.RuneCountInString(word) > maxLen {
			flush()
			r := []rune(word)
			chunks = append(chunks, string(r[:maxLen]))
			word = string(r[maxLen:])
		}
		n := utf8.RuneCountInString(word)
		if curLen > 0 && curLen+1+n > maxLen {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += n
	}
	flush()
	return chunks
}
