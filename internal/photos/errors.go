// Package photos implements the Google Photos Library API upload protocol:
// raw bytes go to /v1/uploads in exchange for an upload token, which
// /v1/mediaItems:batchCreate turns into a media item. Uploader wraps the two
// phases in a single credential-refresh-and-restart policy.
package photos

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification. Every UploadError and
// MediaItemError unwraps to one of these (or to the transport error).
var (
	ErrBadRequest       = errors.New("photos: bad request")
	ErrUnauthorized     = errors.New("photos: unauthorized")
	ErrForbidden        = errors.New("photos: forbidden")
	ErrNotFound         = errors.New("photos: not found")
	ErrThrottled        = errors.New("photos: throttled")
	ErrServerError      = errors.New("photos: server error")
	ErrUnexpectedStatus = errors.New("photos: unexpected status")
)

// Errors raised before or after the HTTP exchange.
var (
	ErrEmptyResource    = errors.New("photos: resource has no data")
	ErrEmptyUploadToken = errors.New("photos: upload returned an empty token")
	ErrItemRejected     = errors.New("photos: media item rejected")
	ErrNoCredential     = errors.New("photos: no credential available")
)

// APIError is the error object inside Google's JSON error envelope
// ({"error": {...}}) and the per-item status of a batchCreate result.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *APIError) String() string {
	if e.Status != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Code, e.Status)
	}

	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// Response describes a failed HTTP exchange: status, request id, the raw body
// and, when the body was a Google error envelope, its parsed form.
type Response struct {
	StatusCode int
	RequestID  string
	Body       string
	API        *APIError
}

func (r *Response) describe() string {
	detail := r.Body
	if r.API != nil {
		detail = r.API.String()
	}

	if r.RequestID != "" {
		return fmt.Sprintf("HTTP %d (request-id: %s): %s", r.StatusCode, r.RequestID, detail)
	}

	return fmt.Sprintf("HTTP %d: %s", r.StatusCode, detail)
}

// UploadError reports a failed raw byte upload (phase 1). Response is nil
// when no HTTP response was received.
type UploadError struct {
	Response *Response
	Err      error
}

func (e *UploadError) Error() string {
	if e.Response != nil {
		return "photos: upload failed: " + e.Response.describe()
	}

	return fmt.Sprintf("photos: upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// MediaItemError reports a failed media item creation (phase 2), including a
// 2xx batchCreate whose item carries a non-OK status.
type MediaItemError struct {
	Response *Response
	Err      error
}

func (e *MediaItemError) Error() string {
	if e.Response != nil {
		return "photos: media item creation failed: " + e.Response.describe()
	}

	return fmt.Sprintf("photos: media item creation failed: %v", e.Err)
}

func (e *MediaItemError) Unwrap() error {
	return e.Err
}

// AuthError reports that no credential could be obtained. It is terminal and
// never retried.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("photos: credential unavailable: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpectedStatus
	}
}

// parseAPIError decodes a Google JSON error envelope. Returns nil when the
// body is not one.
func parseAPIError(body []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	return envelope.Error
}

// newResponse captures a failed exchange for error reporting.
func newResponse(resp *http.Response, body []byte) *Response {
	return &Response{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
		Body:       string(body),
		API:        parseAPIError(body),
	}
}

// IsUnauthorized reports whether err is a 401 from either phase.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
