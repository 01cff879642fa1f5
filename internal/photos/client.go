package photos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultBaseURL is the Photos Library API root.
const DefaultBaseURL = "https://photoslibrary.googleapis.com"

const (
	uploadsPath     = "/v1/uploads"
	batchCreatePath = "/v1/mediaItems:batchCreate"

	defaultUserAgent  = "save-to-google-photos/0.1"
	uploadProtocolRaw = "raw"

	// maxResponseBody bounds how much of any API response is read. Upload
	// tokens and batchCreate results are a few KiB at most.
	maxResponseBody = 1 << 20
)

// Client speaks the two upload endpoints of the Photos Library API. It does
// not retry: the credential-refresh policy lives in Uploader.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a Photos API client.
// baseURL is typically DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// UploadBytes posts raw media bytes and returns the upload token from the
// plain-text response body. Any non-2xx status yields *UploadError.
func (c *Client) UploadBytes(ctx context.Context, cred Credential, data []byte, mimeType string) (UploadToken, error) {
	c.logger.Debug("uploading bytes",
		slog.String("mime_type", mimeType),
		slog.Int("size", len(data)),
	)

	req, err := c.newRequest(ctx, uploadsPath, cred, bytes.NewReader(data))
	if err != nil {
		return "", &UploadError{Err: err}
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Goog-Upload-Content-Type", mimeType)
	req.Header.Set("X-Goog-Upload-Protocol", uploadProtocolRaw)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("upload request failed", slog.String("error", err.Error()))

		return "", &UploadError{Err: fmt.Errorf("upload request: %w", err)}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if !isSuccess(resp.StatusCode) {
		failure := newResponse(resp, body)
		c.logger.Warn("upload rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", failure.RequestID),
		)

		return "", &UploadError{Response: failure, Err: classifyStatus(resp.StatusCode)}
	}

	if readErr != nil {
		return "", &UploadError{Err: fmt.Errorf("reading upload token: %w", readErr)}
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", &UploadError{Err: ErrEmptyUploadToken}
	}

	c.logger.Debug("upload token received", slog.Int("token_length", len(token)))

	return UploadToken(token), nil
}

// batchCreateRequest is the JSON body of mediaItems:batchCreate.
type batchCreateRequest struct {
	AlbumID       string         `json:"albumId,omitempty"`
	NewMediaItems []newMediaItem `json:"newMediaItems"`
}

type newMediaItem struct {
	Description     string          `json:"description,omitempty"`
	SimpleMediaItem simpleMediaItem `json:"simpleMediaItem"`
}

type simpleMediaItem struct {
	UploadToken string `json:"uploadToken"`
	FileName    string `json:"fileName,omitempty"`
}

// BatchCreate exchanges an upload token for a media item. fileName is
// optional and stored NFC-normalized. Any non-2xx status yields
// *MediaItemError.
func (c *Client) BatchCreate(
	ctx context.Context, cred Credential, token UploadToken, fileName string, opts CreateOptions,
) (*MediaItemResult, error) {
	c.logger.Debug("creating media item",
		slog.String("file_name", fileName),
		slog.Bool("album", opts.AlbumID != ""),
	)

	payload := batchCreateRequest{
		AlbumID: opts.AlbumID,
		NewMediaItems: []newMediaItem{{
			Description: opts.Description,
			SimpleMediaItem: simpleMediaItem{
				UploadToken: string(token),
				FileName:    norm.NFC.String(fileName),
			},
		}},
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, &MediaItemError{Err: fmt.Errorf("marshaling batchCreate request: %w", err)}
	}

	req, err := c.newRequest(ctx, batchCreatePath, cred, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &MediaItemError{Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("batchCreate request failed", slog.String("error", err.Error()))

		return nil, &MediaItemError{Err: fmt.Errorf("batchCreate request: %w", err)}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if !isSuccess(resp.StatusCode) {
		failure := newResponse(resp, body)
		c.logger.Warn("media item creation rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", failure.RequestID),
		)

		return nil, &MediaItemError{Response: failure, Err: classifyStatus(resp.StatusCode)}
	}

	if readErr != nil {
		return nil, &MediaItemError{Err: fmt.Errorf("reading batchCreate response: %w", readErr)}
	}

	var result MediaItemResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &MediaItemError{Err: fmt.Errorf("decoding batchCreate response: %w", err)}
	}

	result.Raw = json.RawMessage(body)

	if failure := result.itemFailure(); failure != nil {
		c.logger.Warn("media item rejected by service",
			slog.Int("status", resp.StatusCode),
			slog.Int("item_code", failure.Code),
			slog.String("item_message", failure.Message),
		)

		return nil, &MediaItemError{
			Response: &Response{StatusCode: resp.StatusCode, Body: string(body), API: failure},
			Err:      ErrItemRejected,
		}
	}

	return &result, nil
}

// newRequest builds an authenticated POST against the API.
func (c *Client) newRequest(ctx context.Context, path string, cred Credential, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+string(cred))
	req.Header.Set("User-Agent", c.userAgent)

	return req, nil
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
