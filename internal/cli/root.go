// Package cli implements bidid's command-line entrypoint: a cobra root
// command with a single serve subcommand, matching the teacher's
// root+subcommand shape while dropping the REPL surface this
// translator has no use for.
package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/grantcarthew/bidid/internal/browser"
	"github.com/grantcarthew/bidid/internal/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	flagPort     int
	flagHeadless bool
	flagChannel  string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "bidid",
	Short: "WebDriver BiDi server backed by a single Chrome instance over CDP",
	Long:  "bidid translates WebDriver BiDi client connections into Chrome DevTools Protocol commands against locally launched Chrome instances.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the BiDi server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&flagPort, "port", 9222+1000, "listen port for the BiDi HTTP/WebSocket endpoint")
	serveCmd.Flags().BoolVar(&flagHeadless, "headless", true, "launch Chrome headless")
	serveCmd.Flags().StringVar(&flagChannel, "channel", "stable", "Chrome release channel to launch (stable, beta, dev, canary)")
	serveCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose diagnostic output")

	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := server.Config{
		Headless: flagHeadless,
		Channel:  browser.Channel(flagChannel),
		Verbose:  flagVerbose,
	}
	srv := server.New(cfg, log)

	banner := color.New(color.FgCyan, color.Bold)
	banner.Fprintf(os.Stderr, "bidid %s listening on :%d (channel=%s headless=%v)\n", Version, flagPort, flagChannel, flagHeadless)

	addr := fmt.Sprintf(":%d", flagPort)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
