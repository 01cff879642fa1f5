package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	schemeFile = "file"
	schemeData = "data"

	octetStream = "application/octet-stream"

	// maxDataURLDisplay caps how much of a data: URL is echoed in logs and errors.
	maxDataURLDisplay = 32
)

// Resource is an image or video as fetched: raw bytes plus the MIME type they
// were served or detected as. A Resource is never modified after Fetch
// returns it.
type Resource struct {
	Data      []byte
	MimeType  string
	SourceURL string
	FileName  string // last path segment of the source URL, may be empty
}

// Size returns the resource length in bytes.
func (r *Resource) Size() int64 {
	return int64(len(r.Data))
}

// IsMedia reports whether the MIME type is an image or video type.
func (r *Resource) IsMedia() bool {
	return strings.HasPrefix(r.MimeType, "image/") || strings.HasPrefix(r.MimeType, "video/")
}

// Options configures a Fetcher.
type Options struct {
	MaxSize         int64 // 0 = unlimited
	DisableFileURLs bool
	UserAgent       string
}

// Fetcher retrieves resources over http(s), file and data URLs.
type Fetcher struct {
	httpClient *http.Client
	maxSize    int64
	userAgent  string
	logger     *slog.Logger
}

// NewFetcher builds a Fetcher on top of base. The base client's transport
// (http.DefaultTransport when unset) handles network schemes; file and data
// URLs are served in-process. base itself is not modified.
func NewFetcher(base *http.Client, opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	if base == nil {
		base = http.DefaultClient
	}

	network := base.Transport
	if network == nil {
		network = http.DefaultTransport
	}

	local := map[string]http.RoundTripper{
		schemeData: dataTransport{},
		schemeFile: fileTransport{},
	}
	if opts.DisableFileURLs {
		local[schemeFile] = disabledTransport{err: ErrFileURLsDisabled}
	}

	client := *base
	client.Transport = &schemeTransport{network: network, local: local}

	return &Fetcher{
		httpClient: &client,
		maxSize:    opts.MaxSize,
		userAgent:  opts.UserAgent,
		logger:     logger,
	}
}

// Fetch retrieves rawURL and returns its bytes. A transport status of 0 (local
// file reads) or 2xx is success; any other status, transport failure, or an
// oversized body yields a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Resource, error) {
	if rawURL == "" {
		return nil, &FetchError{Err: ErrEmptyURL}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("parsing url: %w", err)}
	}

	display := DisplayURL(u)

	f.logger.Debug("fetching resource",
		slog.String("url", display),
		slog.String("scheme", u.Scheme),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, &FetchError{URL: display, Err: fmt.Errorf("creating request: %w", err)}
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("resource fetch failed",
			slog.String("url", display),
			slog.String("error", err.Error()),
		)

		return nil, &FetchError{URL: display, Err: err}
	}
	defer resp.Body.Close()

	data, readErr := readLimited(resp.Body, f.maxSize)

	if !IsSuccessStatus(resp.StatusCode) {
		f.logger.Warn("resource fetch returned unsuccessful status",
			slog.String("url", display),
			slog.Int("status", resp.StatusCode),
		)

		return nil, &FetchError{URL: display, StatusCode: resp.StatusCode, Body: data, Err: ErrBadStatus}
	}

	if readErr != nil {
		return nil, &FetchError{URL: display, Err: readErr}
	}

	res := &Resource{
		Data:      data,
		SourceURL: rawURL,
		FileName:  fileNameFromURL(u),
	}
	res.MimeType = detectMimeType(resp.Header.Get("Content-Type"), res.FileName, data)

	f.logger.Info("fetched resource",
		slog.String("url", display),
		slog.Int("status", resp.StatusCode),
		slog.String("mime_type", res.MimeType),
		slog.Int64("size", res.Size()),
	)

	return res, nil
}

// readLimited reads r fully, failing with ErrTooLarge once more than max bytes
// arrive. max <= 0 disables the limit.
func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return data, fmt.Errorf("reading body: %w", err)
		}

		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return data, fmt.Errorf("reading body: %w", err)
	}

	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxSize)
	}

	return data, nil
}

// detectMimeType picks the most specific type available: a concrete
// Content-Type header, then the file extension, then content sniffing.
func detectMimeType(contentType, name string, data []byte) string {
	if mt := baseMediaType(contentType); mt != "" && mt != octetStream && mt != "text/plain" {
		return mt
	}

	if ext := path.Ext(name); ext != "" {
		if mt := baseMediaType(mime.TypeByExtension(ext)); mt != "" {
			return mt
		}
	}

	return baseMediaType(mimetype.Detect(data).String())
}

// baseMediaType strips parameters and lowercases a media type. Unparseable
// input yields "".
func baseMediaType(s string) string {
	if s == "" {
		return ""
	}

	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return ""
	}

	return mt
}

func fileNameFromURL(u *url.URL) string {
	if u.Scheme == schemeData || u.Path == "" {
		return ""
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}

	return name
}

// DisplayURL renders u for logs and errors: no userinfo, no query or fragment,
// and data: URLs truncated to their header.
func DisplayURL(u *url.URL) string {
	if u.Scheme == schemeData {
		opaque := u.Opaque
		if len(opaque) > maxDataURLDisplay {
			opaque = opaque[:maxDataURLDisplay] + "..."
		}

		return schemeData + ":" + opaque
	}

	clean := *u
	clean.User = nil
	clean.RawQuery = ""
	clean.Fragment = ""
	clean.RawFragment = ""

	return clean.String()
}
