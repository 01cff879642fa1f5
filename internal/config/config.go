// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for save-to-google-photos. Values follow
// a four-layer override chain (defaults -> config file -> environment -> CLI
// flags). All keys are flat top-level keys; the Go struct groups them by
// concern through embedded sections.
package config

import (
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	AuthConfig
	PhotosConfig
	FetchConfig
	NetworkConfig
	LoggingConfig
	ServerConfig
	HistoryConfig
}

// AuthConfig holds the OAuth2 client registration and token location.
type AuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenPath    string `toml:"token_path"`
}

// PhotosConfig controls where and how media items are created.
type PhotosConfig struct {
	APIBaseURL  string `toml:"api_base_url"`
	AlbumID     string `toml:"album_id"`
	Description string `toml:"description"`
}

// FetchConfig controls retrieval of the clicked resource.
type FetchConfig struct {
	MaxResourceSize string `toml:"max_resource_size"`
	AllowFileURLs   bool   `toml:"allow_file_urls"`
}

// NetworkConfig controls HTTP client behavior shared by fetching and
// uploading.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// ServerConfig controls the localhost trigger server used by the browser
// extension.
type ServerConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// HistoryConfig controls the local upload ledger.
type HistoryConfig struct {
	HistoryEnabled bool   `toml:"history_enabled"`
	HistoryPath    string `toml:"history_path"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set".
type CLIOverrides struct {
	ConfigPath  string  // --config flag (empty = use default)
	AlbumID     *string // --album flag
	Description *string // --description flag
	ListenAddr  *string // --listen flag
}

// MaxResourceBytes returns max_resource_size in bytes. Zero means unlimited.
// The value was checked by Validate, so a parse failure yields zero.
func (c *Config) MaxResourceBytes() int64 {
	n, err := ParseSize(c.MaxResourceSize)
	if err != nil {
		return 0
	}

	return n
}

// Timeouts returns the parsed connect and data timeouts.
func (n *NetworkConfig) Timeouts() (connect, data time.Duration) {
	connect, err := time.ParseDuration(n.ConnectTimeout)
	if err != nil {
		connect = 0
	}

	data, err = time.ParseDuration(n.DataTimeout)
	if err != nil {
		data = 0
	}

	return connect, data
}
