// Package fetch retrieves the bytes of an image or video from a URL. Besides
// http and https it understands file:// (local reads report status 0, the
// way a browser does) and data: URLs, so anything a browser hands out as a
// context-menu srcUrl can be fetched.
package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by FetchError.
var (
	ErrBadStatus = errors.New("fetch: unsuccessful status")
	ErrTooLarge  = errors.New("fetch: resource exceeds size limit")
	ErrEmptyURL  = errors.New("fetch: empty url")

	ErrFileURLsDisabled = errors.New("fetch: file URLs disabled (allow_file_urls = false)")
)

// maxErrorBodyDisplay caps how much of a failed response body Error() prints.
const maxErrorBodyDisplay = 256

// FetchError reports a failed resource retrieval. StatusCode is zero when no
// response was received (DNS failure, connection refused, missing local file);
// Body holds whatever the transport returned, for diagnostics.
type FetchError struct {
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		body := string(e.Body)
		if len(body) > maxErrorBodyDisplay {
			body = body[:maxErrorBodyDisplay] + "..."
		}

		return fmt.Sprintf("fetch: GET %s: HTTP %d: %s", e.URL, e.StatusCode, body)
	}

	return fmt.Sprintf("fetch: GET %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
