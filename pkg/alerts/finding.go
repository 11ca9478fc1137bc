package alerts

import "github.com/ssdt/authscan/pkg/engine"

// Instance is one place a finding was observed.
type Instance struct {
	URL      string `json:"url"`
	Method   string `json:"method,omitempty"`
	Param    string `json:"param,omitempty"`
	Attack   string `json:"attack,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// Finding is a raw finding as reported by the engine, possibly already
// carrying several instances.
type Finding struct {
	Name        string
	Risk        string
	Confidence  string
	Description string
	Solution    string
	Reference   string
	CWEID       string
	WASCID      string
	PluginID    string
	Instances   []Instance
}

// FromEngine converts engine alerts, one instance each, into findings.
func FromEngine(in []engine.Alert) []Finding {
	out := make([]Finding, 0, len(in))
	for _, a := range in {
		out = append(out, Finding{
			Name:        a.Title(),
			Risk:        a.Risk,
			Confidence:  a.Confidence,
			Description: a.Description,
			Solution:    a.Solution,
			Reference:   a.Reference,
			CWEID:       a.CWEID,
			WASCID:      a.WASCID,
			PluginID:    a.PluginID,
			Instances: []Instance{{
				URL:      a.URL,
				Method:   a.Method,
				Param:    a.Param,
				Attack:   a.Attack,
				Evidence: a.Evidence,
			}},
		})
	}
	return out
}
