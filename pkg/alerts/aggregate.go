package alerts

import (
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"
)

// Aggregate is every instance of one alert name. Risk and descriptive
// fields come from the representative finding: the highest risk seen for
// the name, ties broken by plugin id then description, so the result does
// not depend on input order.
type Aggregate struct {
	Name        string
	Risk        Risk
	Confidence  string
	Description string
	Solution    string
	Reference   string
	CWEID       string
	WASCID      string
	PluginID    string
	Fingerprint string
	Occurrences []Instance
	TotalCount  int
}

// Fingerprint returns a stable identifier for an alert name.
func Fingerprint(name string) string {
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(name)))
}

// GroupByName folds findings sharing a name into one aggregate. Occurrences
// keep input order; the result is ordered by risk (High first) then name.
func GroupByName(findings []Finding) []*Aggregate {
	byName := make(map[string]*Aggregate)
	var out []*Aggregate
	for _, f := range findings {
		agg, ok := byName[f.Name]
		if !ok {
			agg = &Aggregate{Name: f.Name, Fingerprint: Fingerprint(f.Name)}
			agg.describe(f)
			byName[f.Name] = agg
			out = append(out, agg)
		} else if agg.outrankedBy(f) {
			agg.describe(f)
		}
		agg.Occurrences = append(agg.Occurrences, f.Instances...)
		agg.TotalCount += len(f.Instances)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if si, sj := out[i].Risk.Score(), out[j].Risk.Score(); si != sj {
			return si > sj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (a *Aggregate) describe(f Finding) {
	a.Risk = NormalizeRisk(f.Risk)
	a.Confidence = f.Confidence
	a.Description = f.Description
	a.Solution = f.Solution
	a.Reference = f.Reference
	a.CWEID = f.CWEID
	a.WASCID = f.WASCID
	a.PluginID = f.PluginID
}

// outrankedBy reports whether f should replace the representative finding.
func (a *Aggregate) outrankedBy(f Finding) bool {
	if rs, as := NormalizeRisk(f.Risk).Score(), a.Risk.Score(); rs != as {
		return rs > as
	}
	if f.PluginID != a.PluginID {
		return f.PluginID < a.PluginID
	}
	return f.Description < a.Description
}

// CountRisks counts grouped alerts by risk, one per aggregate.
func CountRisks(aggs []*Aggregate) RiskCounts {
	var c RiskCounts
	for _, a := range aggs {
		c.add(a.Risk)
	}
	return c
}

// TotalOccurrences sums instances across aggregates.
func TotalOccurrences(aggs []*Aggregate) int {
	n := 0
	for _, a := range aggs {
		n += a.TotalCount
	}
	return n
}
