package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "SAVE_TO_PHOTOS_CONFIG"
	EnvClientID     = "SAVE_TO_PHOTOS_CLIENT_ID"
	EnvClientSecret = "SAVE_TO_PHOTOS_CLIENT_SECRET"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // SAVE_TO_PHOTOS_CONFIG: override config file path
	ClientID     string // SAVE_TO_PHOTOS_CLIENT_ID: OAuth2 client id
	ClientSecret string // SAVE_TO_PHOTOS_CLIENT_SECRET: OAuth2 client secret
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
	}
}
