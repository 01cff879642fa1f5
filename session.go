package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/browser"

	"github.com/anduleh/save-to-google-photos/internal/auth"
	"github.com/anduleh/save-to-google-photos/internal/config"
	"github.com/anduleh/save-to-google-photos/internal/fetch"
	"github.com/anduleh/save-to-google-photos/internal/history"
	"github.com/anduleh/save-to-google-photos/internal/photos"
	"github.com/anduleh/save-to-google-photos/internal/trigger"
)

// idleConnTimeout closes pooled connections nobody reused.
const idleConnTimeout = 90 * time.Second

// session bundles everything one upload-capable command needs.
type session struct {
	handler *trigger.Handler
	client  *http.Client
	history *history.Store
	logger  *slog.Logger
}

// newHTTPClient builds the shared client. connect_timeout bounds dialing and
// TLS; data_timeout bounds the wait for response headers. There is no
// overall deadline because large videos legitimately take long to transfer.
func newHTTPClient(cfg *config.Config) *http.Client {
	connect, data := cfg.Timeouts()

	dialer := &net.Dialer{Timeout: connect}

	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib invariant
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = data
	transport.IdleConnTimeout = idleConnTimeout

	return &http.Client{Transport: transport}
}

// openBrowser opens url in the user's default browser without letting the
// opener's own output reach our terminal.
func openBrowser(url string) error {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard

	return browser.OpenURL(url)
}

// newAuthProvider builds the credential provider from config.
func newAuthProvider(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (*auth.Provider, error) {
	if err := config.ValidateForUpload(cfg); err != nil {
		return nil, err
	}

	return auth.NewProvider(auth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenPath:    cfg.TokenPath,
		HTTPClient:   httpClient,
		OpenURL:      openBrowser,
	}, logger)
}

// newSession wires the trigger handler and, when enabled, the history ledger
// for cfg.
func newSession(ctx context.Context, cc *CLIContext, cfg *config.Config) (*session, error) {
	s := &session{logger: cc.Logger}

	if cfg.HistoryEnabled {
		store, err := history.Open(ctx, cfg.HistoryPath, cc.Logger)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}

		s.history = store
	}

	s.client = newHTTPClient(cfg)

	handler, err := buildHandler(cfg, s.client, s.recorder(), cc.Logger)
	if err != nil {
		s.Close()

		return nil, err
	}

	s.handler = handler

	return s, nil
}

// buildHandler wires fetcher, uploader and credential provider for cfg on
// top of httpClient. recorder may be nil.
func buildHandler(
	cfg *config.Config, httpClient *http.Client, recorder trigger.Recorder, logger *slog.Logger,
) (*trigger.Handler, error) {
	creds, err := newAuthProvider(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.NewFetcher(httpClient, fetch.Options{
		MaxSize:         cfg.MaxResourceBytes(),
		DisableFileURLs: !cfg.AllowFileURLs,
		UserAgent:       cfg.UserAgent,
	}, logger)

	client := photos.NewClient(cfg.APIBaseURL, httpClient, logger, cfg.UserAgent)
	uploader := photos.NewUploader(client, creds, photos.CreateOptions{
		Description: cfg.Description,
		AlbumID:     cfg.AlbumID,
	}, logger)

	return trigger.NewHandler(fetcher, creds, uploader, recorder, logger), nil
}

// recorder returns the history store as a trigger.Recorder, or nil when
// history is disabled.
func (s *session) recorder() trigger.Recorder {
	if s.history == nil {
		return nil
	}

	return s.history
}

// Close releases pooled connections and the history database.
func (s *session) Close() {
	if s.client != nil {
		s.client.CloseIdleConnections()
	}

	if s.history == nil {
		return
	}

	if err := s.history.Close(); err != nil {
		s.logger.Warn("closing history", slog.String("error", err.Error()))
	}
}
