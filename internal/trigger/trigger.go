// Package trigger turns a context-menu click into one upload. It acquires a
// credential, fetches the clicked resource, hands it to the uploader with a
// single credential refresh allowed, and reports the outcome by logging and,
// when configured, by writing a history record.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/anduleh/save-to-google-photos/internal/fetch"
	"github.com/anduleh/save-to-google-photos/internal/history"
	"github.com/anduleh/save-to-google-photos/internal/photos"
)

// MenuItemID identifies this action among the browser's context-menu entries.
const MenuItemID = "save-to-google-photos"

// ErrEmptySource is returned for a matching event without a source URL.
var ErrEmptySource = errors.New("trigger: event has no source URL")

// Menu describes the context-menu entry the extension registers.
type Menu struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Contexts []string `json:"contexts"`
}

// DefaultMenu is the entry shown on right-clicked images and videos.
func DefaultMenu() Menu {
	return Menu{
		ID:       MenuItemID,
		Title:    "Save to Google Photos",
		Contexts: []string{"image", "video"},
	}
}

// Event is a context-menu click delivered by the browser extension.
type Event struct {
	MenuItemID string `json:"menuItemId"`
	SrcURL     string `json:"srcUrl"`
	MediaType  string `json:"mediaType,omitempty"`
	PageURL    string `json:"pageUrl,omitempty"`
}

// Outcome describes one handled event. It is returned alongside the error
// when the upload fails, so callers can still report the invocation id.
type Outcome struct {
	InvocationID string
	Resource     *fetch.Resource
	Result       *photos.MediaItemResult
	Started      time.Time
	Finished     time.Time
}

// MediaItem returns the created item, or nil.
func (o *Outcome) MediaItem() *photos.MediaItem {
	if o == nil || o.Result == nil {
		return nil
	}

	return o.Result.Item()
}

// Fetcher retrieves the clicked resource.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Resource, error)
}

// Recorder persists a history record. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, r *history.Record) error
}

// Handler wires fetching and uploading for a single click.
type Handler struct {
	fetcher  Fetcher
	creds    photos.CredentialProvider
	uploader *photos.Uploader
	recorder Recorder
	logger   *slog.Logger

	newID   func() string
	nowFunc func() time.Time
}

// NewHandler creates a Handler. recorder may be nil to disable history.
func NewHandler(
	fetcher Fetcher,
	creds photos.CredentialProvider,
	uploader *photos.Uploader,
	recorder Recorder,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		fetcher:  fetcher,
		creds:    creds,
		uploader: uploader,
		recorder: recorder,
		logger:   logger,
		newID:    uuid.NewString,
		nowFunc:  time.Now,
	}
}

// Handle processes ev. Events for other menu items are ignored and return
// (nil, nil). Otherwise the returned Outcome is always non-nil; the error is
// a *photos.AuthError, *fetch.FetchError, *photos.UploadError or
// *photos.MediaItemError describing the terminal failure.
func (h *Handler) Handle(ctx context.Context, ev Event) (*Outcome, error) {
	if ev.MenuItemID != MenuItemID {
		h.logger.Debug("ignoring event for other menu item",
			slog.String("menu_item_id", ev.MenuItemID),
		)

		return nil, nil //nolint:nilnil // not ours
	}

	out := &Outcome{InvocationID: h.newID(), Started: h.nowFunc()}
	logger := h.logger.With(
		slog.String("invocation_id", out.InvocationID),
		slog.String("src", DisplaySource(ev.SrcURL)),
	)

	err := h.run(ctx, ev, out, logger)
	out.Finished = h.nowFunc()

	h.record(ctx, ev, out, err, logger)

	if err != nil {
		logger.Error("save to Google Photos failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", out.Finished.Sub(out.Started)),
		)

		return out, err
	}

	attrs := []any{slog.Duration("elapsed", out.Finished.Sub(out.Started))}
	if item := out.MediaItem(); item != nil {
		attrs = append(attrs,
			slog.String("media_item_id", item.ID),
			slog.String("product_url", item.ProductURL),
		)
	}

	logger.Info("saved to Google Photos", attrs...)

	return out, nil
}

// run is credential -> fetch -> upload. A credential problem aborts before
// any bytes are downloaded.
func (h *Handler) run(ctx context.Context, ev Event, out *Outcome, logger *slog.Logger) error {
	if ev.SrcURL == "" {
		return ErrEmptySource
	}

	cred, err := h.creds.Credential(ctx, true)
	if err != nil {
		return &photos.AuthError{Err: err}
	}

	if cred == "" {
		return &photos.AuthError{Err: photos.ErrNoCredential}
	}

	res, err := h.fetcher.Fetch(ctx, ev.SrcURL)
	if err != nil {
		return err
	}

	out.Resource = res

	logger.Debug("resource fetched",
		slog.String("mime_type", res.MimeType),
		slog.Int64("size", res.Size()),
	)

	if ev.MediaType != "" && !res.IsMedia() {
		logger.Warn("resource is not an image or video",
			slog.String("media_type", ev.MediaType),
			slog.String("mime_type", res.MimeType),
		)
	}

	result, err := h.uploader.Upload(ctx, res, cred, true)
	if err != nil {
		return err
	}

	out.Result = result

	return nil
}

// record writes the history row. Ledger failures are logged, never returned:
// the upload outcome is already final.
func (h *Handler) record(ctx context.Context, ev Event, out *Outcome, runErr error, logger *slog.Logger) {
	if h.recorder == nil {
		return
	}

	rec := &history.Record{
		ID:         out.InvocationID,
		SourceURL:  DisplaySource(ev.SrcURL),
		PageURL:    DisplaySource(ev.PageURL),
		Status:     history.StatusSucceeded,
		StartedAt:  out.Started,
		FinishedAt: out.Finished,
	}

	if rec.SourceURL == "" {
		rec.SourceURL = "(none)"
	}

	if out.Resource != nil {
		rec.MimeType = out.Resource.MimeType
		rec.Size = out.Resource.Size()
	}

	if item := out.MediaItem(); item != nil {
		rec.MediaItemID = item.ID
		rec.ProductURL = item.ProductURL
	}

	if runErr != nil {
		rec.Status = history.StatusFailed
		rec.Error = runErr.Error()
	}

	// Detached so a canceled request still leaves a trace.
	recCtx := context.WithoutCancel(ctx)
	if err := h.recorder.Record(recCtx, rec); err != nil {
		logger.Warn("writing history record failed", slog.String("error", err.Error()))
	}
}

// DisplaySource strips credentials, query and fragment from raw for logs and
// history. Unparseable input is replaced by a marker.
func DisplaySource(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("(unparseable URL, %d bytes)", len(raw))
	}

	return fetch.DisplayURL(u)
}
