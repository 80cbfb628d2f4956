package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

const (
	CallbackPath          = "/oauth2/callback"
	defaultConsentAddr    = "127.0.0.1:0"
	defaultConsentTimeout = 5 * time.Minute
)

// LoadOAuthConfig parses an OAuth client secrets file downloaded from the
// Google Cloud console.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gmail: read client secrets: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmailapi.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("gmail: parse client secrets: %w", err)
	}
	return cfg, nil
}

// Consent runs the one-time browser authorization that mints the refresh
// token used by the scheduled function. It is never part of an archive run.
type Consent struct {
	Config  *oauth2.Config
	Addr    string
	Timeout time.Duration
	Log     *slog.Logger
}

type consentResult struct {
	code string
	err  error
}

// Run listens on a loopback address, hands the consent URL to announce and
// waits for the provider to redirect back with an authorization code.
func (c *Consent) Run(ctx context.Context, announce func(authURL string)) (*oauth2.Token, error) {
	if c.Config == nil {
		return nil, errors.New("gmail: consent: oauth config must not be nil")
	}
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	addr := c.Addr
	if addr == "" {
		addr = defaultConsentAddr
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultConsentTimeout
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gmail: consent: listen %s: %w", addr, err)
	}
	defer ln.Close()

	cfg := *c.Config
	cfg.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), CallbackPath)
	state := uuid.NewString()

	results := make(chan consentResult, 1)
	send := func(r consentResult) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if reason := q.Get("error"); reason != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			send(consentResult{err: fmt.Errorf("gmail: consent denied: %s", reason)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "code missing", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, "Authorization received. You can close this tab.")
		send(consentResult{code: code})
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		_ = srv.Serve(ln)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.InfoContext(ctx, "waiting for authorization", "redirect_url", cfg.RedirectURL)
	announce(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res consentResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("gmail: consent: %w", ctx.Err())
	case <-timer.C:
		return nil, errors.New("gmail: consent: authorization timed out")
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("gmail: exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, errors.New("gmail: provider returned no refresh token")
	}
	return tok, nil
}

// TokenFile is the on-disk shape written by the consent tool.
type TokenFile struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
}

func NewTokenFile(cfg *oauth2.Config, tok *oauth2.Token) TokenFile {
	return TokenFile{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     cfg.Endpoint.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
	}
}

// SaveTokenFile writes tf to path, readable by the owner only.
func SaveTokenFile(path string, tf TokenFile) error {
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("gmail: encode token file: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("gmail: write token file: %w", err)
	}
	return nil
}
