package fetch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/vincent-petithory/dataurl"
)

// StatusLocal is the status reported for a successful local read. Browsers
// report 0 for file:// responses and callers must accept it alongside 2xx.
const StatusLocal = 0

// errNotRegularFile is returned for file:// URLs naming a directory or device.
var errNotRegularFile = errors.New("not a regular file")

// IsSuccessStatus reports whether a transport status counts as a successful
// fetch: the 2xx range, or StatusLocal.
func IsSuccessStatus(code int) bool {
	return code == StatusLocal || (code >= http.StatusOK && code < http.StatusMultipleChoices)
}

// schemeTransport routes non-network schemes to in-process round trippers and
// everything else to the network transport.
type schemeTransport struct {
	network http.RoundTripper
	local   map[string]http.RoundTripper
}

func (t *schemeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt, ok := t.local[req.URL.Scheme]; ok {
		return rt.RoundTrip(req)
	}

	return t.network.RoundTrip(req)
}

// fileTransport serves file:// URLs from the local filesystem. Only empty and
// "localhost" hosts are accepted.
type fileTransport struct{}

func (fileTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != "" && req.URL.Host != "localhost" {
		return nil, fmt.Errorf("file url with remote host %q is not supported", req.URL.Host)
	}

	f, err := os.Open(req.URL.Path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", req.URL.Path, errNotRegularFile)
	}

	return &http.Response{
		Status:        "0 local file",
		StatusCode:    StatusLocal,
		Proto:         "HTTP/1.0",
		ProtoMajor:    1,
		Header:        make(http.Header),
		Body:          f,
		ContentLength: fi.Size(),
		Request:       req,
	}, nil
}

// disabledTransport refuses a scheme switched off by configuration.
type disabledTransport struct {
	err error
}

func (t disabledTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, t.err
}

// dataTransport decodes RFC 2397 data URLs in memory.
type dataTransport struct{}

func (dataTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	du, err := dataurl.DecodeString(req.URL.String())
	if err != nil {
		return nil, fmt.Errorf("decoding data url: %w", err)
	}

	header := make(http.Header)
	header.Set("Content-Type", du.MediaType.ContentType())

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.0",
		ProtoMajor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(du.Data)),
		ContentLength: int64(len(du.Data)),
		Request:       req,
	}, nil
}
