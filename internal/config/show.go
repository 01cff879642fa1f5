package config

import (
	"fmt"
	"io"
	"strings"
)

// redacted replaces secret values in rendered output.
const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as an annotated TOML-like
// summary to w. Powers "config show". The client secret is never printed.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	ew.printf("# auth\n")
	ew.printf("client_id         = %q\n", cfg.ClientID)
	ew.printf("client_secret     = %q\n", redactSecret(cfg.ClientSecret))
	ew.printf("token_path        = %q\n\n", cfg.TokenPath)

	ew.printf("# photos\n")
	ew.printf("api_base_url      = %q\n", cfg.APIBaseURL)
	ew.printf("album_id          = %q\n", cfg.AlbumID)
	ew.printf("description       = %q\n\n", cfg.Description)

	ew.printf("# fetch\n")
	ew.printf("max_resource_size = %q\n", cfg.MaxResourceSize)
	ew.printf("allow_file_urls   = %t\n\n", cfg.AllowFileURLs)

	ew.printf("# network\n")
	ew.printf("connect_timeout   = %q\n", cfg.ConnectTimeout)
	ew.printf("data_timeout      = %q\n", cfg.DataTimeout)
	ew.printf("user_agent        = %q\n\n", cfg.UserAgent)

	ew.printf("# logging\n")
	ew.printf("log_level         = %q\n", cfg.LogLevel)
	ew.printf("log_format        = %q\n\n", cfg.LogFormat)

	ew.printf("# server\n")
	ew.printf("listen_addr       = %q\n", cfg.ListenAddr)
	ew.printf("allowed_origins   = %s\n\n", quoteList(cfg.AllowedOrigins))

	ew.printf("# history\n")
	ew.printf("history_enabled   = %t\n", cfg.HistoryEnabled)
	ew.printf("history_path      = %q\n", cfg.HistoryPath)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func redactSecret(s string) string {
	if s == "" {
		return ""
	}

	return redacted
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return "[" + strings.Join(quoted, ", ") + "]"
}
