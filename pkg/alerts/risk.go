package alerts

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Risk is a canonical risk label.
type Risk string

const (
	High          Risk = "High"
	Medium        Risk = "Medium"
	Low           Risk = "Low"
	Informational Risk = "Informational"
)

// Score orders risks for sorting. High=4, Medium=3, Low=2, Informational=1.
func (r Risk) Score() int {
	switch r {
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Informational:
		return 1
	default:
		return 0
	}
}

var titleCase = cases.Title(language.English)

// NormalizeRisk maps an engine risk string to a canonical label. The engine
// reports names in varying case ("high", "HIGH") and some views use the
// numeric codes 0-3. Anything unrecognised is Informational.
func NormalizeRisk(s string) Risk {
	s = strings.TrimSpace(s)
	switch s {
	case "3":
		return High
	case "2":
		return Medium
	case "1":
		return Low
	case "0":
		return Informational
	}
	switch r := Risk(titleCase.String(strings.ToLower(s))); r {
	case High, Medium, Low, Informational:
		return r
	case "Info":
		return Informational
	}
	return Informational
}

// RiskCounts is a histogram of grouped alerts by risk.
type RiskCounts struct {
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	Informational int `json:"informational"`
}

// Total returns the sum of all buckets.
func (c RiskCounts) Total() int {
	return c.High + c.Medium + c.Low + c.Informational
}

func (c *RiskCounts) add(r Risk) {
	switch r {
	case High:
		c.High++
	case Medium:
		c.Medium++
	case Low:
		c.Low++
	default:
		c.Informational++
	}
}
