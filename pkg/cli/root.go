// Package cli implements the authscan command line: the HTTP service, a
// foreground single-scan mode and version output.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssdt/authscan/pkg/config"
	"github.com/ssdt/authscan/pkg/ui"
)

// Exit codes
const (
	ExitOK         = 0
	ExitError      = 1
	ExitScanFailed = 2
	ExitStopped    = 3
)

var (
	errScanFailed  = errors.New("scan failed")
	errScanStopped = errors.New("scan stopped")
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "authscan",
		Short: "Authenticated scan orchestrator",
		Long: `authscan drives a ZAP-compatible scanning engine through an authenticated
scan: it scopes an engine context to the target, injects the caller's
session cookies, crawls, scans, and archives grouped findings.

Only scan systems you are authorized to test.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if opts.noColor || !ui.IsTerminal(os.Stderr) {
				ui.SetNoColor(true)
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newServeCommand(opts),
		newScanCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := NewRootCommand().Execute()
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errScanFailed):
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExitScanFailed
	case errors.Is(err, errScanStopped):
		return ExitStopped
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExitError
	}
}

// load reads the config and builds the logger. defaultLevel applies when
// neither the flag nor the file sets a level.
func (o *rootOptions) load(w io.Writer, defaultLevel string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if defaultLevel != "" && o.configPath == "" {
		level = defaultLevel
	}
	if o.logLevel != "" {
		level = o.logLevel
	}
	format := cfg.Log.Format
	if o.logFormat != "" {
		format = o.logFormat
	}
	logger, err := newLogger(w, level, format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newLogger returns a text or JSON slog logger at level.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("%w: log level %q", config.ErrInvalidConfig, level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log format %q (want text or json)", config.ErrInvalidConfig, format)
	}
}
