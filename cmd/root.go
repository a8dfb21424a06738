package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"cordctl/internal/apierr"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not configured.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags, bound in init.
var (
	flagConfigDir string
	flagLogLevel  string
	flagQuiet     bool
)

// rootCmd represents the base command for the cordctl application.
var rootCmd = &cobra.Command{
	Use:   "cordctl",
	Short: "Control your Discord account from the terminal",
	Long: `cordctl talks to the Discord REST API on behalf of your own account:
sign in once via the browser, then read guilds, channels, and messages,
search, and update your presence and notification settings.

All requests go through one client that handles rate limits, token
refresh, and caching, so commands can be scripted without tripping
Discord's limits.`,
	// SilenceUsage prevents cobra from printing usage on errors the
	// application already reports.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main with
// the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "cordctl version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes for scripting.
func getExitCode(err error) int {
	var authRequired *authRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}
	if apierr.IsKind(err, apierr.KindAuthentication) {
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "config directory (default is $HOME/.config/cordctl)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress progress output")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newGuildsCmd())
	rootCmd.AddCommand(newChannelsCmd())
	rootCmd.AddCommand(newMessagesCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newPresenceCmd())
	rootCmd.AddCommand(newNotificationsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
