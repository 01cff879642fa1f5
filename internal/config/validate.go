package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found, so
// users can fix every problem in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validatePhotos(&cfg.PhotosConfig)...)
	errs = append(errs, validateFetch(&cfg.FetchConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateServer(&cfg.ServerConfig)...)
	errs = append(errs, validateHistory(&cfg.HistoryConfig)...)

	return errors.Join(errs...)
}

// ValidateForUpload checks the constraints that only matter once a command
// is about to talk to Google: a client id and a token location.
func ValidateForUpload(cfg *Config) error {
	var errs []error

	if cfg.ClientID == "" {
		errs = append(errs, fmt.Errorf("client_id: must be set (or export %s)", EnvClientID))
	}

	if cfg.TokenPath == "" {
		errs = append(errs, errors.New("token_path: must be set"))
	}

	return errors.Join(errs...)
}

func validatePhotos(p *PhotosConfig) []error {
	u, err := url.Parse(p.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return []error{fmt.Errorf("api_base_url: must be an absolute http(s) URL, got %q", p.APIBaseURL)}
	}

	return nil
}

func validateFetch(f *FetchConfig) []error {
	if _, err := ParseSize(f.MaxResourceSize); err != nil {
		return []error{fmt.Errorf("max_resource_size: %w", err)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("listen_addr: %w", err))
	}

	for _, origin := range s.AllowedOrigins {
		if origin == "" || strings.ContainsAny(origin, " \t") {
			errs = append(errs, fmt.Errorf("allowed_origins: invalid origin pattern %q", origin))
		}
	}

	return errs
}

func validateHistory(h *HistoryConfig) []error {
	if h.HistoryEnabled && h.HistoryPath == "" {
		return []error{errors.New("history_path: must be set when history_enabled is true")}
	}

	return nil
}
