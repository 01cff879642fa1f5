package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anduleh/save-to-google-photos/internal/auth"
	"github.com/anduleh/save-to-google-photos/internal/config"
	"github.com/anduleh/save-to-google-photos/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize uploads to Google Photos in the browser",
		Long: "Opens the Google consent page and stores the resulting token. The\n" +
			"token only grants permission to add new photos and videos.",
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved Google token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login state and whether the extension server is running",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	creds, err := newAuthProvider(cc.Cfg, newHTTPClient(cc.Cfg), cc.Logger)
	if err != nil {
		return err
	}

	cc.Logger.Info("login started")

	// The consent prompt is always shown, even with --quiet.
	fmt.Fprintln(os.Stderr, "Opening the Google consent page in your browser...")

	if err := creds.Login(cmd.Context()); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	cc.Statusf("Login successful. Token saved to %s\n", cc.Cfg.TokenPath)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	removed, err := tokenfile.Remove(cc.Cfg.TokenPath)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	cc.Logger.Info("logout", slog.Bool("token_removed", removed))

	if removed {
		cc.Statusf("Logged out.\n")
	} else {
		cc.Statusf("Not logged in.\n")
	}

	return nil
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	ConfigPath    string     `json:"config_path"`
	ClientID      bool       `json:"client_id_configured"`
	LoggedIn      bool       `json:"logged_in"`
	TokenPath     string     `json:"token_path"`
	TokenSavedAt  *time.Time `json:"token_saved_at,omitempty"`
	TokenExpiry   *time.Time `json:"token_expiry,omitempty"`
	ScopesGranted bool       `json:"scopes_granted"`
	ServerPID     int        `json:"server_pid,omitempty"`
	ListenAddr    string     `json:"listen_addr"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc, err := cliContextFrom(cmd.Context())
	if err != nil {
		return err
	}

	out, err := collectStatus(cc.Cfg, cc.CfgPath, config.PIDFilePath())
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	printStatusText(os.Stdout, out)

	return nil
}

// collectStatus inspects the token file and PID file without contacting
// Google.
func collectStatus(cfg *config.Config, cfgPath, pidPath string) (*statusOutput, error) {
	out := &statusOutput{
		ConfigPath: cfgPath,
		ClientID:   cfg.ClientID != "",
		TokenPath:  cfg.TokenPath,
		ListenAddr: cfg.ListenAddr,
	}

	tf, err := tokenfile.Load(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}

	if tf != nil {
		out.LoggedIn = tf.Token.RefreshToken != "" || tf.Token.Valid()
		out.ScopesGranted = tf.CoversScopes([]string{auth.ScopeAppendOnly})

		if !tf.SavedAt.IsZero() {
			saved := tf.SavedAt
			out.TokenSavedAt = &saved
		}

		if !tf.Token.Expiry.IsZero() {
			expiry := tf.Token.Expiry
			out.TokenExpiry = &expiry
		}
	}

	pid, err := readPIDFile(pidPath)
	if err == nil && processAlive(pid) {
		out.ServerPID = pid
	}

	return out, nil
}

func printStatusText(w io.Writer, s *statusOutput) {
	now := time.Now()

	fmt.Fprintf(w, "Config:     %s\n", s.ConfigPath)

	if !s.ClientID {
		fmt.Fprintf(w, "Client ID:  not configured (set client_id or %s)\n", config.EnvClientID)
	}

	switch {
	case !s.LoggedIn:
		fmt.Fprintln(w, "Login:      not logged in (run 'save-to-google-photos login')")
	case !s.ScopesGranted:
		fmt.Fprintln(w, "Login:      token lacks the upload scope (run 'save-to-google-photos login')")
	default:
		fmt.Fprintf(w, "Login:      logged in (%s)\n", s.TokenPath)
	}

	if s.TokenExpiry != nil {
		fmt.Fprintf(w, "Expiry:     %s\n", formatTime(*s.TokenExpiry, now))
	}

	if s.ServerPID != 0 {
		fmt.Fprintf(w, "Server:     running (PID %d, %s)\n", s.ServerPID, s.ListenAddr)
	} else {
		fmt.Fprintln(w, "Server:     not running")
	}
}

// processAlive reports whether pid names a live process we may signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return proc.Signal(syscall.Signal(0)) == nil
}
