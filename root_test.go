package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anduleh/save-to-google-photos/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests set
// globals after newRootCmd() returns, or let Cobra parse them via SetArgs.

func saveFlags(t *testing.T) {
	t.Helper()

	oldConfig, oldJSON, oldVerbose, oldQuiet := flagConfigPath, flagJSON, flagVerbose, flagQuiet

	t.Cleanup(func() {
		flagConfigPath, flagJSON, flagVerbose, flagQuiet = oldConfig, oldJSON, oldVerbose, oldQuiet
	})
}

// isolateDirs points every XDG location at a temp dir so tests never touch
// the real config, token or PID files.
func isolateDirs(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("HOME", dir)
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvClientID, "")
	t.Setenv(config.EnvClientSecret, "")

	return dir
}

// --- buildLogger tests ---

func TestBuildLogger_Levels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		cfgLevel string
		flags    CLIFlags
		enabled  slog.Level
		disabled slog.Level
	}{
		{"default info", "info", CLIFlags{}, slog.LevelInfo, slog.LevelDebug},
		{"config debug", "debug", CLIFlags{}, slog.LevelDebug, slog.LevelDebug - 1},
		{"config warn", "warn", CLIFlags{}, slog.LevelWarn, slog.LevelInfo},
		{"config error", "error", CLIFlags{}, slog.LevelError, slog.LevelWarn},
		{"verbose overrides config", "error", CLIFlags{Verbose: true}, slog.LevelDebug, slog.LevelDebug - 1},
		{"quiet overrides config", "debug", CLIFlags{Quiet: true}, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.LogLevel = tt.cfgLevel

			logger := buildLogger(cfg, tt.flags, &bytes.Buffer{})

			assert.True(t, logger.Handler().Enabled(ctx, tt.enabled))
			assert.False(t, logger.Handler().Enabled(ctx, tt.disabled))
		})
	}
}

func TestBuildLogger_NilConfig(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{}, &bytes.Buffer{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Format(t *testing.T) {
	cfg := config.DefaultConfig()

	var buf bytes.Buffer

	cfg.LogFormat = "json"
	buildLogger(cfg, CLIFlags{}, &buf).Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()

	cfg.LogFormat = "text"
	buildLogger(cfg, CLIFlags{}, &buf).Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), "msg=hello k=v")
}

func TestUseJSONLogs(t *testing.T) {
	assert.True(t, useJSONLogs("json", os.Stderr))
	assert.False(t, useJSONLogs("text", &bytes.Buffer{}))
	assert.True(t, useJSONLogs("auto", &bytes.Buffer{}), "non-file writers are never terminals")

	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, useJSONLogs("auto", f), "regular files are not terminals")
}

// --- command tree tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"login", "logout", "status", "upload", "serve", "reload", "history", "config"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	show, _, err := cmd.Find([]string{"config", "show"})
	require.NoError(t, err)
	assert.Equal(t, "show", show.Name())
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "json", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "expected persistent flag %q", name)
	}
}

func TestNewRootCmd_VerboseQuietExclusive(t *testing.T) {
	saveFlags(t)
	dir := isolateDirs(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "none.toml"), "--verbose", "--quiet", "config", "path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestNewRootCmd_UploadRequiresURL(t *testing.T) {
	saveFlags(t)
	dir := isolateDirs(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "none.toml"), "upload"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

// --- loadConfig tests ---

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	saveFlags(t)
	dir := isolateDirs(t)

	cmd := newRootCmd()
	flagConfigPath = filepath.Join(dir, "nonexistent.toml")

	require.NoError(t, loadConfig(cmd))

	cc, err := cliContextFrom(cmd.Context())
	require.NoError(t, err)
	assert.Equal(t, flagConfigPath, cc.CfgPath)
	assert.Equal(t, "127.0.0.1:8765", cc.Cfg.ListenAddr)
	assert.NotNil(t, cc.Logger)
}

func TestLoadConfig_FileEnvAndFlagLayers(t *testing.T) {
	saveFlags(t)
	dir := isolateDirs(t)

	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`client_id = "file-client"
album_id = "file-album"
description = "from file"
`), 0o600))

	t.Setenv(config.EnvClientID, "env-client")

	root := newRootCmd()
	flagConfigPath = cfgPath

	sub, _, err := root.Find([]string{"upload"})
	require.NoError(t, err)
	require.NoError(t, sub.Flags().Set("album", "flag-album"))

	require.NoError(t, loadConfig(sub))

	cc, err := cliContextFrom(sub.Context())
	require.NoError(t, err)

	assert.Equal(t, "env-client", cc.Cfg.ClientID)
	assert.Equal(t, "flag-album", cc.Cfg.AlbumID)
	assert.Equal(t, "from file", cc.Cfg.Description, "unset flags must not override the file")
	require.NotNil(t, cc.Overrides.AlbumID)
	assert.Nil(t, cc.Overrides.Description)
}

func TestLoadConfig_UnknownKeySuggestsFix(t *testing.T) {
	saveFlags(t)
	dir := isolateDirs(t)

	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("album_di = \"x\"\n"), 0o600))

	cmd := newRootCmd()
	flagConfigPath = cfgPath

	err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "album_id")
}

func TestCLIContextFrom_Missing(t *testing.T) {
	_, err := cliContextFrom(context.Background())
	assert.Error(t, err)
}
