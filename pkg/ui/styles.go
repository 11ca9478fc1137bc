package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ssdt/authscan/pkg/alerts"
	"github.com/ssdt/authscan/pkg/session"
)

// Color palette
var (
	Primary   = lipgloss.Color("#7D56F4")
	Secondary = lipgloss.Color("#00D4AA")

	// Risk colors
	High   = lipgloss.Color("#FF6B6B")
	Medium = lipgloss.Color("#FFD93D")
	Low    = lipgloss.Color("#6BCB77")
	Info   = lipgloss.Color("#4D96FF")

	Success = lipgloss.Color("#00D26A")
	Warning = lipgloss.Color("#FFB800")
	Error   = lipgloss.Color("#FF3838")
	Muted   = lipgloss.Color("#6B7280")
)

// Pre-configured styles
var (
	BannerStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	VersionStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true).
			MarginTop(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Width(15)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	ProgressFullStyle = lipgloss.NewStyle().
				Foreground(Primary)

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#3B3B4F"))

	PhaseStyle = lipgloss.NewStyle().
			Foreground(Secondary)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)
)

// RiskStyle returns the style for a risk label.
func RiskStyle(r alerts.Risk) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch r {
	case alerts.High:
		return s.Foreground(High)
	case alerts.Medium:
		return s.Foreground(Medium)
	case alerts.Low:
		return s.Foreground(Low)
	default:
		return s.Foreground(Info)
	}
}

// StatusStyle returns the style for a scan status.
func StatusStyle(st session.Status) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch st {
	case session.StatusCompleted:
		return s.Foreground(Success)
	case session.StatusFailed:
		return s.Foreground(Error)
	case session.StatusStopped:
		return s.Foreground(Warning)
	default:
		return s.Foreground(Secondary)
	}
}
