package config

import "path/filepath"

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultAPIBaseURL      = "https://photoslibrary.googleapis.com"
	defaultMaxResourceSize = "200MB"
	defaultConnectTimeout  = "10s"
	defaultDataTimeout     = "5m"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultListenAddr      = "127.0.0.1:8765"
	tokenFileName          = "token.json"
	historyFileName        = "history.db"
)

// DefaultConfig returns a Config populated with all default values. It is the
// starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		AuthConfig: AuthConfig{
			TokenPath: defaultDataPath(tokenFileName),
		},
		PhotosConfig: PhotosConfig{
			APIBaseURL: defaultAPIBaseURL,
		},
		FetchConfig: FetchConfig{
			MaxResourceSize: defaultMaxResourceSize,
			AllowFileURLs:   true,
		},
		NetworkConfig: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		ServerConfig: ServerConfig{
			ListenAddr: defaultListenAddr,
		},
		HistoryConfig: HistoryConfig{
			HistoryEnabled: true,
			HistoryPath:    defaultDataPath(historyFileName),
		},
	}
}

func defaultDataPath(name string) string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
