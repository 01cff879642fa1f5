package photos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anduleh/save-to-google-photos/internal/fetch"
)

// CredentialProvider hands out bearer credentials and forgets rejected ones.
// Defined at the consumer; internal/auth provides the OAuth2 implementation.
type CredentialProvider interface {
	// Credential returns a usable credential, prompting the user for consent
	// when interactive is true and no cached or refreshable token exists.
	Credential(ctx context.Context, interactive bool) (Credential, error)

	// Invalidate drops cred from any cache so the next Credential call
	// issues a fresh one.
	Invalidate(ctx context.Context, cred Credential) error
}

// Uploader runs the two-phase upload with a single credential refresh.
type Uploader struct {
	client *Client
	creds  CredentialProvider
	opts   CreateOptions
	logger *slog.Logger
}

// NewUploader creates an Uploader. opts apply to every media item it creates.
func NewUploader(client *Client, creds CredentialProvider, opts CreateOptions, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Uploader{
		client: client,
		creds:  creds,
		opts:   opts,
		logger: logger,
	}
}

// Upload sends res to Google Photos using cred and returns the created item.
//
// When either phase answers 401 and retryAllowed is true, cred is invalidated,
// a replacement is obtained, and the whole operation restarts from the raw
// upload with retrying disabled. The upload token is never reused across a
// credential swap. A second 401, or a 401 with retryAllowed false, surfaces as
// *UploadError or *MediaItemError. Failure to obtain the replacement is an
// *AuthError.
func (u *Uploader) Upload(
	ctx context.Context, res *fetch.Resource, cred Credential, retryAllowed bool,
) (*MediaItemResult, error) {
	if res == nil || len(res.Data) == 0 {
		return nil, &UploadError{Err: ErrEmptyResource}
	}

	for attempt := 1; ; attempt++ {
		result, err := u.attempt(ctx, res, cred)
		if err == nil {
			item := result.Item()
			if item != nil {
				u.logger.Info("media item created",
					slog.String("media_item_id", item.ID),
					slog.Int("attempt", attempt),
				)
			}

			return result, nil
		}

		if !retryAllowed || !IsUnauthorized(err) {
			return nil, err
		}

		retryAllowed = false

		u.logger.Info("credential rejected, refreshing and restarting upload",
			slog.String("phase", phaseOf(err)),
			slog.Int("attempt", attempt),
		)

		cred, err = u.refresh(ctx, cred)
		if err != nil {
			return nil, err
		}
	}
}

// attempt runs both phases once with a single credential.
func (u *Uploader) attempt(ctx context.Context, res *fetch.Resource, cred Credential) (*MediaItemResult, error) {
	token, err := u.client.UploadBytes(ctx, cred, res.Data, res.MimeType)
	if err != nil {
		return nil, err
	}

	return u.client.BatchCreate(ctx, cred, token, res.FileName, u.opts)
}

// refresh invalidates the rejected credential and blocks until a replacement
// is available.
func (u *Uploader) refresh(ctx context.Context, stale Credential) (Credential, error) {
	if err := u.creds.Invalidate(ctx, stale); err != nil {
		// The replacement request below still decides whether we can continue.
		u.logger.Warn("invalidating rejected credential failed",
			slog.String("error", err.Error()),
		)
	}

	fresh, err := u.creds.Credential(ctx, true)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("obtaining replacement credential: %w", err)}
	}

	if fresh == "" {
		return "", &AuthError{Err: ErrNoCredential}
	}

	return fresh, nil
}

// phaseOf names the phase that produced err, for logs.
func phaseOf(err error) string {
	var me *MediaItemError
	if errors.As(err, &me) {
		return "create"
	}

	return "upload"
}
