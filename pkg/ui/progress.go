package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ssdt/authscan/pkg/alerts"
	"github.com/ssdt/authscan/pkg/session"
)

// ProgressBar renders pct (0-100) as a bar of width cells.
func ProgressBar(pct, width int) string {
	pct = min(max(pct, 0), 100)
	if width < 1 {
		width = 1
	}
	filled := pct * width / 100
	full, empty := "█", "░"
	if !UnicodeTerminal() {
		full, empty = "#", "-"
	}
	return ProgressFullStyle.Render(strings.Repeat(full, filled)) +
		ProgressEmptyStyle.Render(strings.Repeat(empty, width-filled))
}

// Renderer prints scan progress. On a terminal it redraws one line; when
// piped it prints a line per change.
type Renderer struct {
	w     io.Writer
	tty   bool
	width int
	last  string
}

// NewRenderer returns a Renderer writing to w.
func NewRenderer(w io.Writer, tty bool) *Renderer {
	return &Renderer{w: w, tty: tty, width: 30}
}

// Update renders the current state of s.
func (r *Renderer) Update(s *session.Session) {
	key := fmt.Sprintf("%d|%s|%s", s.Progress, s.Phase, s.Message)
	if key == r.last {
		return
	}
	r.last = key
	if r.tty {
		fmt.Fprintf(r.w, "\r\033[K%s %3d%% %s %s",
			ProgressBar(s.Progress, r.width), s.Progress,
			PhaseStyle.Render(string(s.Phase)), MutedStyle.Render(s.Message))
		return
	}
	fmt.Fprintf(r.w, "[%3d%%] %-15s %s\n", s.Progress, s.Phase, s.Message)
}

// Finish clears the progress line and prints the result summary.
func (r *Renderer) Finish(s *session.Session) {
	if r.tty {
		fmt.Fprint(r.w, "\r\033[K")
	}
	PrintSummary(r.w, s)
}

// PrintSummary writes the outcome, counts, alerts and warnings of s.
func PrintSummary(w io.Writer, s *session.Session) {
	fmt.Fprintln(w, SectionStyle.Render("Scan "+s.ScanID))
	PrintOption(w, "Status", StatusStyle(s.Status).Render(string(s.Status)))
	PrintOption(w, "Target", s.TargetURL)
	if s.Message != "" {
		PrintOption(w, "Message", s.Message)
	}
	if s.Error != nil {
		PrintOption(w, "Error", *s.Error)
	}
	PrintOption(w, "URLs found", fmt.Sprint(s.URLsFound))
	PrintOption(w, "Alerts", fmt.Sprint(s.AlertsFound))
	if s.CompletedAt != nil {
		PrintOption(w, "Duration", s.CompletedAt.Sub(s.StartedAt).Round(time.Second).String())
	}

	rc := s.RiskCounts
	if rc.Total() > 0 {
		fmt.Fprintf(w, " :: %s : %s %s %s %s\n", LabelStyle.Render("Risk"),
			RiskStyle(alerts.High).Render(fmt.Sprintf("high=%d", rc.High)),
			RiskStyle(alerts.Medium).Render(fmt.Sprintf("medium=%d", rc.Medium)),
			RiskStyle(alerts.Low).Render(fmt.Sprintf("low=%d", rc.Low)),
			RiskStyle(alerts.Informational).Render(fmt.Sprintf("info=%d", rc.Informational)),
		)
	}

	if len(s.Alerts) > 0 {
		fmt.Fprintln(w, SectionStyle.Render("Alerts"))
		for _, a := range s.Alerts {
			fmt.Fprintf(w, "  %s %s %s\n",
				RiskStyle(a.Risk).Render(fmt.Sprintf("[%s]", a.Risk)),
				a.Name,
				MutedStyle.Render(fmt.Sprintf("(%d)", a.Count)),
			)
			for _, u := range a.URLs {
				fmt.Fprintf(w, "      %s\n", MutedStyle.Render(u))
			}
			if a.HasMoreURLs {
				fmt.Fprintf(w, "      %s\n", MutedStyle.Render("..."))
			}
		}
	}

	if len(s.Warnings) > 0 {
		fmt.Fprintln(w, SectionStyle.Render("Warnings"))
		for _, wn := range s.Warnings {
			fmt.Fprintf(w, "  %s %s\n", WarningStyle.Render(Icon("⚠", "!")), wn)
		}
	}

	if len(s.ReportFiles) > 0 {
		fmt.Fprintln(w, SectionStyle.Render("Artifacts"))
		for _, f := range s.ReportFiles {
			fmt.Fprintf(w, "  %s %s\n", f.Filename, MutedStyle.Render(f.ID))
		}
	}
}
