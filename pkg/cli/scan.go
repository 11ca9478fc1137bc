package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/duration"
	"github.com/ssdt/authscan/pkg/jsonutil"
	"github.com/ssdt/authscan/pkg/orchestrator"
	"github.com/ssdt/authscan/pkg/session"
	"github.com/ssdt/authscan/pkg/ui"
)

type scanOptions struct {
	target     string
	loginURL   string
	cookies    []string
	cookieFile string
	scanID     string
	owner      string
	jsonOut    bool
	memory     bool
	skipAjax   bool
	waitEngine time.Duration
	interval   time.Duration
}

func newScanCommand(opts *rootOptions) *cobra.Command {
	so := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one authenticated scan in the foreground",
		Long: `scan runs a single authenticated scan and renders its progress.

Session cookies come from --cookie (a Cookie header value, repeatable) or
--cookie-file (a JSON array of cookies, or a browser storage-state export).
Ctrl+C stops the scan on the engine and records it as stopped.`,
		Example: `  authscan scan -u https://app.example.com --cookie "session=abc123"
  authscan scan -u https://app.example.com --cookie-file state.json --json > result.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts, so)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&so.target, "url", "u", "", "Target URL (required)")
	f.StringVar(&so.loginURL, "login-url", "", "Login page to prime through the engine")
	f.StringArrayVar(&so.cookies, "cookie", nil, `Cookie header value, e.g. "sid=abc; csrftoken=xyz" (repeatable)`)
	f.StringVar(&so.cookieFile, "cookie-file", "", "JSON file with cookies")
	f.StringVar(&so.scanID, "scan-id", "", "Scan id (default: random)")
	f.StringVar(&so.owner, "owner", "cli", "Owner recorded on the session")
	f.BoolVar(&so.jsonOut, "json", false, "Print the final session as JSON on stdout")
	f.BoolVar(&so.memory, "memory", false, "Keep sessions in memory instead of the configured database")
	f.BoolVar(&so.skipAjax, "skip-ajax", false, "Skip the AJAX spider")
	f.DurationVar(&so.waitEngine, "wait-engine", 0, "Wait up to this long for the engine to come up")
	f.DurationVar(&so.interval, "interval", duration.MinPoll, "Progress refresh interval")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runScan(cmd *cobra.Command, opts *rootOptions, so *scanOptions) error {
	stderr := cmd.ErrOrStderr()
	cfg, logger, err := opts.load(stderr, "warn")
	if err != nil {
		return err
	}
	if so.memory {
		cfg.Storage.Backend = "memory"
	}
	if so.skipAjax {
		cfg.Scan.SkipAjaxSpider = true
	}

	cookies, err := so.collectCookies()
	if err != nil {
		return err
	}
	if authctx.CookieHeader(cookies) == "" {
		return errors.New("no cookies given (use --cookie or --cookie-file)")
	}

	sigCtx, cancel := SignalContext(stderr, duration.Cleanup+duration.Drain)
	defer cancel()

	// The service outlives the signal context so a stop can still be
	// recorded after Ctrl+C.
	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), duration.Drain+duration.Cleanup)
		defer done()
		if err := a.close(closeCtx); err != nil {
			logger.Error("shutdown", slog.String("error", err.Error()))
		}
	}()

	if so.waitEngine > 0 {
		if _, err := a.checker.WaitReady(sigCtx, duration.MinPoll, so.waitEngine); err != nil {
			return err
		}
	}

	res, err := a.svc.Start(context.Background(), orchestrator.StartRequest{
		TargetURL: so.target,
		LoginURL:  so.loginURL,
		Cookies:   cookies,
		ScanID:    so.scanID,
		OwnerID:   so.owner,
	})
	if err != nil {
		return err
	}
	if res.Existing {
		return fmt.Errorf("scan %s is already running", res.ScanID)
	}

	r := ui.NewRenderer(stderr, ui.IsTerminal(os.Stderr))
	final, err := follow(sigCtx, a.svc, res.ScanID, so.owner, so.interval, r)
	if err != nil {
		return err
	}
	r.Finish(final)

	if so.jsonOut {
		if err := writeSessionJSON(cmd.OutOrStdout(), final); err != nil {
			return err
		}
	}

	switch final.Status {
	case session.StatusFailed:
		return fmt.Errorf("%w: %s", errScanFailed, final.Message)
	case session.StatusStopped:
		return errScanStopped
	}
	return nil
}

func (so *scanOptions) collectCookies() ([]authctx.Cookie, error) {
	var cookies []authctx.Cookie
	for _, h := range so.cookies {
		cookies = append(cookies, parseCookieHeader(h)...)
	}
	if so.cookieFile != "" {
		fromFile, err := loadCookieFile(so.cookieFile)
		if err != nil {
			return nil, err
		}
		cookies = append(cookies, fromFile...)
	}
	return cookies, nil
}

// follow renders the session of scanID every interval until it is
// terminal. When ctx is cancelled the scan is stopped and followed to its
// final record.
func follow(ctx context.Context, svc *orchestrator.Service, scanID, owner string, interval time.Duration, r *ui.Renderer) (*session.Session, error) {
	bg := context.Background()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s, err := svc.Status(bg, scanID, owner)
		if err != nil {
			return nil, err
		}
		r.Update(s)
		if s.Status.Terminal() {
			svc.Wait()
			return svc.Status(bg, scanID, owner)
		}

		select {
		case <-ctx.Done():
			if _, err := svc.Stop(bg, scanID, owner); err != nil {
				return nil, fmt.Errorf("stop scan: %w", err)
			}
			svc.Wait()
			return svc.Status(bg, scanID, owner)
		case <-t.C:
		}
	}
}

func writeSessionJSON(w io.Writer, s *session.Session) error {
	data, err := jsonutil.MarshalIndent(s, "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
