// Package auth obtains Google OAuth2 credentials for the Photos Library API.
//
// Provider caches the current token in memory and on disk (via tokenfile),
// refreshes it silently with the stored refresh token, and falls back to an
// interactive browser consent only when the caller allows it. Concurrent
// requests for a credential share a single refresh or consent flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"github.com/anduleh/save-to-google-photos/internal/photos"
	"github.com/anduleh/save-to-google-photos/internal/tokenfile"
)

// ScopeAppendOnly lets the app add media to the library and nothing else.
const ScopeAppendOnly = "https://www.googleapis.com/auth/photoslibrary.appendonly"

// invalidGrant is the OAuth2 error code for a revoked or expired refresh token.
const invalidGrant = "invalid_grant"

// ErrNotLoggedIn is returned by non-interactive requests when no usable token
// exists. Run "login" to fix.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// ErrNoClientID is returned when no OAuth2 client id is configured.
var ErrNoClientID = errors.New("auth: client_id is not configured")

// Config holds everything a Provider needs.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenPath    string

	// Scopes defaults to ScopeAppendOnly.
	Scopes []string

	// Endpoint defaults to google.Endpoint. Tests point it at a fake server.
	Endpoint oauth2.Endpoint

	// HTTPClient is used for token exchange and refresh. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	// OpenURL opens the consent page. Nil or a failing opener prints the URL
	// to Prompt instead.
	OpenURL func(string) error

	// Prompt receives the consent URL when no browser could be opened.
	// Defaults to os.Stderr.
	Prompt io.Writer
}

// Provider implements photos.CredentialProvider backed by a token file.
type Provider struct {
	oauth     oauth2.Config
	tokenPath string
	client    *http.Client
	openURL   func(string) error
	prompt    io.Writer
	logger    *slog.Logger

	mu     sync.Mutex
	tok    *oauth2.Token
	loaded bool

	flight singleflight.Group
}

var _ photos.CredentialProvider = (*Provider)(nil)

// NewProvider validates cfg and returns a Provider. The token file is read
// lazily on the first request.
func NewProvider(cfg Config, logger *slog.Logger) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, ErrNoClientID
	}

	if cfg.TokenPath == "" {
		return nil, errors.New("auth: token path is empty")
	}

	if logger == nil {
		logger = slog.Default()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{ScopeAppendOnly}
	}

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	prompt := cfg.Prompt
	if prompt == nil {
		prompt = os.Stderr
	}

	return &Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		tokenPath: cfg.TokenPath,
		client:    client,
		openURL:   cfg.OpenURL,
		prompt:    prompt,
		logger:    logger,
	}, nil
}

// Credential returns a valid access token. A cached unexpired token is
// returned as is. Otherwise the stored refresh token is exchanged, and if
// that is impossible and interactive is true, the browser consent flow runs.
// Non-interactive requests without a usable token fail with ErrNotLoggedIn.
func (p *Provider) Credential(ctx context.Context, interactive bool) (photos.Credential, error) {
	p.mu.Lock()
	if err := p.ensureLoadedLocked(); err != nil {
		p.mu.Unlock()
		return "", err
	}

	if p.tok.Valid() {
		cred := photos.Credential(p.tok.AccessToken)
		p.mu.Unlock()

		return cred, nil
	}
	p.mu.Unlock()

	// A silent refresh is shared by every waiting caller, so it must not die
	// with the first caller's context; the transport timeouts bound it. The
	// consent flow waits on the user and stays tied to its initiator.
	key, flightCtx := "silent", context.WithoutCancel(ctx)
	if interactive {
		key, flightCtx = "interactive", ctx
	}

	ch := p.flight.DoChan(key, func() (any, error) {
		return p.obtain(flightCtx, interactive)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", fmt.Errorf("auth: waiting for credential: %w", ctx.Err())
	}

	if res.Err != nil {
		return "", res.Err
	}

	if res.Shared {
		p.logger.Debug("credential request joined an in-flight refresh")
	}

	cred, ok := res.Val.(photos.Credential)
	if !ok {
		return "", fmt.Errorf("auth: unexpected credential type %T", res.Val)
	}

	return cred, nil
}

// Invalidate forgets cred if it is the cached access token. The refresh
// token is kept so the next Credential call can renew silently. Invalidating
// an already replaced credential is a no-op.
func (p *Provider) Invalidate(_ context.Context, cred photos.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoadedLocked(); err != nil {
		return err
	}

	if p.tok == nil || p.tok.AccessToken != string(cred) {
		p.logger.Debug("invalidate: credential already replaced")
		return nil
	}

	stale := *p.tok
	stale.AccessToken = ""
	p.tok = &stale

	p.logger.Info("access token invalidated")

	if err := tokenfile.Save(p.tokenPath, p.tok, p.oauth.Scopes); err != nil {
		return fmt.Errorf("auth: persisting invalidated token: %w", err)
	}

	return nil
}

// Login runs the browser consent flow unconditionally and stores the result.
func (p *Provider) Login(ctx context.Context) error {
	_, err, _ := p.flight.Do("interactive", func() (any, error) {
		return p.consent(ctx)
	})

	return err
}

// Logout deletes the stored token. The bool reports whether one existed.
func (p *Provider) Logout() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tok = nil
	p.loaded = true

	removed, err := tokenfile.Remove(p.tokenPath)
	if err != nil {
		return false, fmt.Errorf("auth: %w", err)
	}

	p.logger.Info("logged out", slog.Bool("token_removed", removed))

	return removed, nil
}

// Token returns a copy of the cached token, or nil when logged out. Used for
// status output only.
func (p *Provider) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoadedLocked(); err != nil {
		return nil, err
	}

	if p.tok == nil {
		return nil, nil //nolint:nilnil // logged out
	}

	cp := *p.tok

	return &cp, nil
}

// obtain refreshes silently when possible, then falls back to consent.
func (p *Provider) obtain(ctx context.Context, interactive bool) (photos.Credential, error) {
	p.mu.Lock()
	var current *oauth2.Token
	if p.tok != nil {
		cp := *p.tok
		current = &cp
	}
	p.mu.Unlock()

	// Another flight may have finished between the fast path and here.
	if current.Valid() {
		return photos.Credential(current.AccessToken), nil
	}

	if current != nil && current.RefreshToken != "" {
		cred, err := p.refresh(ctx, current)
		if err == nil {
			return cred, nil
		}

		var re *oauth2.RetrieveError
		if !errors.As(err, &re) || re.ErrorCode != invalidGrant {
			return "", err
		}

		p.logger.Warn("refresh token rejected, consent required",
			slog.String("error_code", re.ErrorCode),
		)
	}

	if !interactive {
		return "", ErrNotLoggedIn
	}

	return p.consent(ctx)
}

// refresh exchanges the refresh token for a new access token and persists it.
func (p *Provider) refresh(ctx context.Context, current *oauth2.Token) (photos.Credential, error) {
	p.logger.Debug("refreshing access token")

	src := p.oauth.TokenSource(p.oauthContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("auth: refreshing token: %w", err)
	}

	if err := p.store(tok); err != nil {
		return "", err
	}

	p.logger.Info("access token refreshed", slog.Time("expiry", tok.Expiry))

	return photos.Credential(tok.AccessToken), nil
}

// consent runs the browser flow and persists the resulting token.
func (p *Provider) consent(ctx context.Context) (photos.Credential, error) {
	tok, err := browserLogin(p.oauthContext(ctx), p.oauth, p.openURL, p.prompt, p.logger)
	if err != nil {
		return "", err
	}

	if err := p.store(tok); err != nil {
		return "", err
	}

	return photos.Credential(tok.AccessToken), nil
}

// store replaces the cached token and writes it to disk.
func (p *Provider) store(tok *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.RefreshToken == "" && p.tok != nil {
		tok.RefreshToken = p.tok.RefreshToken
	}

	p.tok = tok
	p.loaded = true

	if err := tokenfile.Save(p.tokenPath, tok, p.oauth.Scopes); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	return nil
}

// ensureLoadedLocked reads the token file once. A token granted for other
// scopes is ignored so the next interactive request asks for consent again.
func (p *Provider) ensureLoadedLocked() error {
	if p.loaded {
		return nil
	}

	tf, err := tokenfile.Load(p.tokenPath)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	p.loaded = true

	if tf == nil {
		return nil
	}

	if !tf.CoversScopes(p.oauth.Scopes) {
		p.logger.Warn("stored token lacks required scopes, ignoring it",
			slog.String("path", p.tokenPath),
		)

		return nil
	}

	p.tok = tf.Token

	return nil
}

// oauthContext attaches the provider's HTTP client for the oauth2 package.
func (p *Provider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}
