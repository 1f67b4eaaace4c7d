package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"biomedtube/internal/workspace"
)

// DefaultSecretsFile is the OAuth client secret downloaded from the Google
// Cloud console.
const DefaultSecretsFile = "client_secrets.json"

// InstalledAppFlow authorizes uploads with the OAuth installed-application
// flow: a consent URL is shown to the user and the authorization code is
// received on a loopback listener.
type InstalledAppFlow struct {
	SecretsFile string
	// TokenFile caches the token between runs. Empty disables caching.
	TokenFile string
	// OpenBrowser launches the system browser on the consent URL.
	OpenBrowser bool
	// Out receives the consent URL. Defaults to os.Stderr.
	Out io.Writer
	// HTTPClient is used for token exchange and refresh.
	HTTPClient *http.Client

	openURL func(string) error
}

// NewInstalledAppFlow creates a flow reading the given client secret file.
func NewInstalledAppFlow(secretsFile, tokenFile string) *InstalledAppFlow {
	if secretsFile == "" {
		secretsFile = DefaultSecretsFile
	}
	return &InstalledAppFlow{SecretsFile: secretsFile, TokenFile: tokenFile, Out: os.Stderr}
}

// Client returns an HTTP client authorized for the youtube.upload scope.
func (f *InstalledAppFlow) Client(ctx context.Context) (*http.Client, error) {
	data, err := os.ReadFile(f.SecretsFile)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}

	if f.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
	}

	if cached, err := f.loadToken(); err == nil {
		ts := cfg.TokenSource(ctx, cached)
		tok, err := ts.Token()
		if err == nil {
			if tok.AccessToken != cached.AccessToken {
				f.saveToken(tok)
			}
			return oauth2.NewClient(ctx, ts), nil
		}
		log.Printf("youtube: cached token unusable, re-authorizing: %v", err)
	}

	tok, err := f.authorize(ctx, cfg)
	if err != nil {
		return nil, err
	}
	f.saveToken(tok)
	return cfg.Client(ctx, tok), nil
}

type callbackResult struct {
	code string
	err  error
}

func (f *InstalledAppFlow) authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("start callback listener: %w", err)
	}
	cfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/", func(c *fiber.Ctx) error {
		var res callbackResult
		switch {
		case c.Query("state") != state:
			res.err = errors.New("state mismatch in callback")
		case c.Query("error") != "":
			res.err = fmt.Errorf("consent denied: %s", c.Query("error"))
		case c.Query("code") == "":
			res.err = errors.New("callback carried no code")
		default:
			res.code = c.Query("code")
		}

		select {
		case results <- res:
		default:
		}
		if res.err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Authorization failed: " + res.err.Error())
		}
		return c.SendString("Authorization complete. You may close this window.")
	})

	go app.Listener(ln)
	defer app.Shutdown()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	out := f.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "Authorize YouTube uploads by visiting:\n\n  %s\n\n", authURL)

	if f.openURL != nil {
		if err := f.openURL(authURL); err != nil {
			log.Printf("youtube: open consent url: %v", err)
		}
	} else if f.OpenBrowser {
		if err := openBrowser(authURL); err != nil {
			log.Printf("youtube: open browser: %v", err)
		}
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

func (f *InstalledAppFlow) loadToken() (*oauth2.Token, error) {
	if f.TokenFile == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(f.TokenFile)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token cache: %w", err)
	}
	return &tok, nil
}

// saveToken writes the token cache. Failures only cost a future consent prompt.
func (f *InstalledAppFlow) saveToken(tok *oauth2.Token) {
	if f.TokenFile == "" {
		return
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		log.Printf("youtube: encode token cache: %v", err)
		return
	}
	if err := workspace.WriteFile(f.TokenFile, data); err != nil {
		log.Printf("youtube: save token cache: %v", err)
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
