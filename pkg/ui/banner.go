package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/ssdt/authscan/pkg/defaults"
)

var (
	noColorMode bool
	uiMu        sync.RWMutex
)

// SetNoColor disables colored output.
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether color is disabled.
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

const bannerArt = `
              _   _
  __ _ _   _| |_| |__  ___  ___ __ _ _ __
 / _' | | | | __| '_ \/ __|/ __/ _' | '_ \
| (_| | |_| | |_| | | \__ \ (_| (_| | | | |
 \__,_|\__,_|\__|_| |_|___/\___\__,_|_| |_|
`

// PrintBanner writes the banner and version to w.
func PrintBanner(w io.Writer) {
	for _, line := range strings.Split(bannerArt, "\n") {
		if line != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "                 v%s\n\n", VersionStyle.Render(defaults.Version))
}

// PrintOption prints one configuration line.
// Format:  :: Option          : Value
func PrintOption(w io.Writer, name, value string) {
	fmt.Fprintf(w, " :: %s : %s\n", LabelStyle.Render(name), ValueStyle.Render(value))
}
