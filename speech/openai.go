package speech

import (
	"context"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"biomedtube/internal/workspace"
)

// OpenAI synthesizes speech with the OpenAI audio API.
type OpenAI struct {
	client *openai.Client
	Model  openai.SpeechModel
	Voice  openai.SpeechVoice
}

// OpenAIOptions configures NewOpenAI. Zero values select tts-1 and the
// alloy voice.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Voice      string
	HTTPClient *http.Client
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	p := &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		Model:  openai.TTSModel1,
		Voice:  openai.VoiceAlloy,
	}
	if opts.Model != "" {
		p.Model = openai.SpeechModel(opts.Model)
	}
	if opts.Voice != "" {
		p.Voice = openai.SpeechVoice(opts.Voice)
	}
	return p
}

// Synthesize requests an MP3 rendering of text and writes it to dest.
func (p *OpenAI) Synthesize(ctx context.Context, text, dest string) error {
	if text == "" {
		return ErrEmptyText
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          p.Model,
		Input:          text,
		Voice:          p.Voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return &Error{Provider: "openai", Err: err}
	}
	defer resp.Close()

	err = workspace.WriteFrom(dest, func(w io.Writer) error {
		n, err := io.Copy(w, resp)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrEmptyAudio
		}
		return nil
	})
	if err != nil {
		return &Error{Provider: "openai", Err: err}
	}
	return nil
}
