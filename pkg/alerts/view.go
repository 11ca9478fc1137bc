package alerts

import (
	"strings"

	"github.com/ssdt/authscan/pkg/defaults"
)

// Summary is the lightweight view stored on the session.
type Summary struct {
	Name        string   `json:"name"`
	Risk        Risk     `json:"risk"`
	Confidence  string   `json:"confidence,omitempty"`
	Description string   `json:"description,omitempty"`
	Solution    string   `json:"solution,omitempty"`
	CWEID       string   `json:"cweid,omitempty"`
	WASCID      string   `json:"wascid,omitempty"`
	Fingerprint string   `json:"fingerprint"`
	Count       int      `json:"count"`
	URLs        []string `json:"urls"`
	HasMoreURLs bool     `json:"hasMoreUrls"`
}

// Detailed is the archival view written to blob storage.
type Detailed struct {
	Name        string     `json:"name"`
	Risk        Risk       `json:"risk"`
	Confidence  string     `json:"confidence,omitempty"`
	Description string     `json:"description,omitempty"`
	Solution    string     `json:"solution,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	CWEID       string     `json:"cweid,omitempty"`
	WASCID      string     `json:"wascid,omitempty"`
	PluginID    string     `json:"pluginId,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	Count       int        `json:"count"`
	Occurrences []Instance `json:"occurrences"`
}

// Summarize truncates description and solution and samples distinct URLs.
func Summarize(a *Aggregate) Summary {
	urls := make([]string, 0, defaults.SummarySampleURLs)
	seen := make(map[string]struct{})
	more := false
	for _, o := range a.Occurrences {
		if _, dup := seen[o.URL]; dup {
			continue
		}
		seen[o.URL] = struct{}{}
		if len(urls) == defaults.SummarySampleURLs {
			more = true
			break
		}
		urls = append(urls, o.URL)
	}
	return Summary{
		Name:        a.Name,
		Risk:        a.Risk,
		Confidence:  a.Confidence,
		Description: truncate(a.Description, defaults.SummaryDescriptionRunes),
		Solution:    truncate(a.Solution, defaults.SummarySolutionRunes),
		CWEID:       a.CWEID,
		WASCID:      a.WASCID,
		Fingerprint: a.Fingerprint,
		Count:       a.TotalCount,
		URLs:        urls,
		HasMoreURLs: more,
	}
}

// Detail returns the untruncated view.
func Detail(a *Aggregate) Detailed {
	return Detailed{
		Name:        a.Name,
		Risk:        a.Risk,
		Confidence:  a.Confidence,
		Description: a.Description,
		Solution:    a.Solution,
		Reference:   a.Reference,
		CWEID:       a.CWEID,
		WASCID:      a.WASCID,
		PluginID:    a.PluginID,
		Fingerprint: a.Fingerprint,
		Count:       a.TotalCount,
		Occurrences: append([]Instance(nil), a.Occurrences...),
	}
}

// Summaries maps Summarize over aggs.
func Summaries(aggs []*Aggregate) []Summary {
	out := make([]Summary, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, Summarize(a))
	}
	return out
}

// Details maps Detail over aggs.
func Details(aggs []*Aggregate) []Detailed {
	out := make([]Detailed, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, Detail(a))
	}
	return out
}

// truncate cuts s to limit runes and appends the ellipsis when it did.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimRight(string(r[:limit]), " ") + defaults.Ellipsis
}
