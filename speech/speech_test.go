package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	bhttp "biomedtube/http"
)

const narration = "Today’s biomedical topic: CRISPR. Discover its role in advancing medicine!"

func TestSplitText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   []string
	}{
		{"empty", "   ", 10, nil},
		{"fits", "hello world", 20, []string{"hello world"}},
		{"wraps", "aaa bbb ccc", 7, []string{"aaa bbb", "ccc"}},
		{"exact", "aaaa bbbb", 4, []string{"aaaa", "bbbb"}},
		{"long word", "abcdefghij xy", 4, []string{"abcd", "efgh", "ij", "xy"}},
		{"long word joins", "abcdef g", 4, []string{"abcd", "ef g"}},
		{"runes", "ééé ééé", 3, []string{"ééé", "ééé"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitText(tt.text, tt.maxLen)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitText = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitTextNarrationBound(t *testing.T) {
	long := strings.Repeat(narration+" ", 5)
	for _, c := range SplitText(long, MaxChunkLen) {
		if n := len([]rune(c)); n > MaxChunkLen {
			t.Errorf("chunk of %d runes exceeds %d", n, MaxChunkLen)
		}
	}
}

func TestGTTSSynthesize(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tl") != "en" || q.Get("client") != "tw-ob" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		calls.Add(1)
		w.Write([]byte("mp3-" + q.Get("idx") + ";"))
	}))
	defer server.Close()

	g := NewGTTS(bhttp.New(nil), "")
	g.BaseURL = server.URL

	text := strings.Repeat("word ", 50)
	dest := filepath.Join(t.TempDir(), "narration.mp3")
	if err := g.Synthesize(context.Background(), text, dest); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	chunks := SplitText(text, MaxChunkLen)
	if int(calls.Load()) != len(chunks) {
		t.Errorf("made %d requests, want %d", calls.Load(), len(chunks))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "mp3-0;mp3-1;mp3-2;" {
		t.Errorf("narration = %q", got)
	}
}

func TestGTTSFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "", nil},
		{"empty audio", http.StatusOK, "", ErrEmptyAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			g := NewGTTS(bhttp.New(nil), "en")
			g.BaseURL = server.URL

			dest := filepath.Join(t.TempDir(), "narration.mp3")
			err := g.Synthesize(context.Background(), narration, dest)
			if err == nil {
				t.Fatal("expected error")
			}
			var se *Error
			if !errors.As(err, &se) || se.Provider != "gtts" {
				t.Errorf("expected *speech.Error from gtts, got %T: %v", err, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if _, err := os.Stat(dest); !os.IsNotExist(err) {
				t.Error("partial narration left on disk")
			}
		})
	}
}

func TestGTTSEmptyText(t *testing.T) {
	g := NewGTTS(bhttp.New(nil), "en")
	err := g.Synthesize(context.Background(), " ", filepath.Join(t.TempDir(), "n.mp3"))
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestOpenAISynthesize(t *testing.T) {
	audio := []byte("ID3fake-mp3-frames")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Model          string `json:"model"`
			Input          string `json:"input"`
			Voice          string `json:"voice"`
			ResponseFormat string `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "tts-1" || req.Voice != "nova" || req.Input != narration || req.ResponseFormat != "mp3" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer server.Close()

	p := NewOpenAI(OpenAIOptions{APIKey: "sk-test", BaseURL: server.URL + "/v1", Voice: "nova"})
	dest := filepath.Join(t.TempDir(), "narration.mp3")
	if err := p.Synthesize(context.Background(), narration, dest); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, audio) {
		t.Errorf("narration = %q, want %q", got, audio)
	}
}

func TestOpenAIEmptyAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
	}))
	defer server.Close()

	p := NewOpenAI(OpenAIOptions{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	err := p.Synthesize(context.Background(), narration, filepath.Join(t.TempDir(), "n.mp3"))
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestOpenAIAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAI(OpenAIOptions{APIKey: "sk-bad", BaseURL: server.URL + "/v1"})
	err := p.Synthesize(context.Background(), narration, filepath.Join(t.TempDir(), "n.mp3"))
	var se *Error
	if !errors.As(err, &se) || se.Provider != "openai" {
		t.Errorf("expected *speech.Error from openai, got %T: %v", err, err)
	}
}

func TestNew(t *testing.T) {
	client := bhttp.New(nil)

	s, err := New(client, Options{})
	if err != nil {
		t.Fatalf("New default: %v", err)
	}
	if _, ok := s.(*GTTS); !ok {
		t.Errorf("default provider = %T, want *GTTS", s)
	}

	s, err = New(client, Options{Provider: ProviderOpenAI, OpenAIKey: "sk"})
	if err != nil {
		t.Fatalf("New openai: %v", err)
	}
	if _, ok := s.(*OpenAI); !ok {
		t.Errorf("provider = %T, want *OpenAI", s)
	}

	if _, err := New(client, Options{Provider: ProviderOpenAI}); err == nil {
		t.Error("expected error for openai without key")
	}
	if _, err := New(client, Options{Provider: "espeak"}); !errors.Is(err, ErrUnknownEngine) {
		t.Errorf("expected ErrUnknownEngine, got %v", err)
	}
}
