package speech

import (
	"fmt"

	bhttp "biomedtube/http"
)

// Provider names accepted by New.
const (
	ProviderGTTS   = "gtts"
	ProviderOpenAI = "openai"
)

// Options selects and configures a provider.
type Options struct {
	Provider  string
	Language  string
	OpenAIKey string
	Voice     string
	Model     string
}

// New returns the Synthesizer named by opts.Provider. An empty name selects gtts.
func New(client *bhttp.Client, opts Options) (Synthesizer, error) {
	switch opts.Provider {
	case "", ProviderGTTS:
		return NewGTTS(client, opts.Language), nil
	case ProviderOpenAI:
		if opts.OpenAIKey == "" {
			return nil, fmt.Errorf("speech: openai provider requires OPENAI_API_KEY")
		}
		o := OpenAIOptions{APIKey: opts.OpenAIKey, Model: opts.Model, Voice: opts.Voice}
		if client != nil {
			o.HTTPClient = client.StdClient()
		}
		return NewOpenAI(o), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, opts.Provider)
	}
}
