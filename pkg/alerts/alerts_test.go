package alerts

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssdt/authscan/pkg/defaults"
	"github.com/ssdt/authscan/pkg/engine"
)

func TestGroupByName_WorkedExample(t *testing.T) {
	findings := []Finding{
		{Name: "X", Risk: "High", Instances: []Instance{{URL: "/a"}, {URL: "/b"}}},
		{Name: "X", Risk: "High", Instances: []Instance{{URL: "/c"}}},
	}

	aggs := GroupByName(findings)
	require.Len(t, aggs, 1)
	assert.Equal(t, "X", aggs[0].Name)
	assert.Equal(t, 3, aggs[0].TotalCount)
	assert.Equal(t, []Instance{{URL: "/a"}, {URL: "/b"}, {URL: "/c"}}, aggs[0].Occurrences)
	assert.Equal(t, RiskCounts{High: 1}, CountRisks(aggs))
	assert.Equal(t, 3, TotalOccurrences(aggs))
}

func TestGroupByName_HighestRiskDescribes(t *testing.T) {
	low := Finding{Name: "XSS", Risk: "low", Description: "reflected", CWEID: "80", Instances: []Instance{{URL: "/1"}}}
	high := Finding{Name: "XSS", Risk: "high", Description: "stored", CWEID: "79", Instances: []Instance{{URL: "/2"}}}

	for _, in := range [][]Finding{{low, high}, {high, low}} {
		aggs := GroupByName(in)
		require.Len(t, aggs, 1)
		assert.Equal(t, High, aggs[0].Risk)
		assert.Equal(t, "stored", aggs[0].Description)
		assert.Equal(t, "79", aggs[0].CWEID)
		assert.Equal(t, 2, aggs[0].TotalCount)
		assert.Equal(t, Fingerprint("XSS"), aggs[0].Fingerprint)
	}
}

func TestGroupByName_MixedRiskHistogramOrderIndependent(t *testing.T) {
	medium := Finding{Name: "Application Error Disclosure", Risk: "Medium", PluginID: "90022", Instances: []Instance{{URL: "/a"}}}
	info := Finding{Name: "Application Error Disclosure", Risk: "Informational", PluginID: "90022", Instances: []Instance{{URL: "/b"}}}
	other := Finding{Name: "Banner", Risk: "Low", Instances: []Instance{{URL: "/c"}}}

	forward := CountRisks(GroupByName([]Finding{medium, info, other}))
	reversed := CountRisks(GroupByName([]Finding{other, info, medium}))
	assert.Equal(t, RiskCounts{Medium: 1, Low: 1}, forward)
	assert.Equal(t, forward, reversed)
}

func TestGroupByName_EqualRiskTieBreak(t *testing.T) {
	a := Finding{Name: "Cookie", Risk: "Low", PluginID: "10010", Description: "b", Instances: []Instance{{URL: "/1"}}}
	b := Finding{Name: "Cookie", Risk: "Low", PluginID: "10010", Description: "a", Instances: []Instance{{URL: "/2"}}}

	assert.Equal(t, "a", GroupByName([]Finding{a, b})[0].Description)
	assert.Equal(t, "a", GroupByName([]Finding{b, a})[0].Description)
}

func TestGroupByName_OrderIndependent(t *testing.T) {
	a := Finding{Name: "Cookie No HttpOnly", Risk: "Low", Instances: []Instance{{URL: "/a"}}}
	b := Finding{Name: "SQL Injection", Risk: "High", Instances: []Instance{{URL: "/b"}}}
	c := Finding{Name: "CSP Missing", Risk: "Medium", Instances: []Instance{{URL: "/c"}}}
	d := Finding{Name: "Banner", Risk: "Informational", Instances: []Instance{{URL: "/d"}}}
	e := Finding{Name: "Anti-CSRF", Risk: "Medium", Instances: []Instance{{URL: "/e"}}}

	names := func(aggs []*Aggregate) []string {
		out := make([]string, len(aggs))
		for i, a := range aggs {
			out[i] = a.Name
		}
		return out
	}
	want := []string{"SQL Injection", "Anti-CSRF", "CSP Missing", "Cookie No HttpOnly", "Banner"}
	assert.Equal(t, want, names(GroupByName([]Finding{a, b, c, d, e})))
	assert.Equal(t, want, names(GroupByName([]Finding{e, d, c, b, a})))
	assert.Equal(t, want, names(GroupByName([]Finding{c, a, e, b, d})))
}

func TestCountRisks_OnePerGroup(t *testing.T) {
	var findings []Finding
	for i := 0; i < 10; i++ {
		findings = append(findings, Finding{Name: "Header Missing", Risk: "Low", Instances: []Instance{{URL: "/x"}}})
	}
	findings = append(findings,
		Finding{Name: "SQLi", Risk: "High", Instances: []Instance{{URL: "/1"}, {URL: "/2"}}},
		Finding{Name: "Comment", Risk: "Informational", Instances: []Instance{{URL: "/3"}}},
	)

	aggs := GroupByName(findings)
	counts := CountRisks(aggs)
	assert.Equal(t, len(aggs), counts.Total())
	assert.Equal(t, RiskCounts{High: 1, Low: 1, Informational: 1}, counts)
	assert.Equal(t, 13, TotalOccurrences(aggs))
}

func TestNormalizeRisk(t *testing.T) {
	tests := []struct {
		in   string
		want Risk
	}{
		{"High", High},
		{"high", High},
		{"HIGH", High},
		{" medium ", Medium},
		{"Low", Low},
		{"Informational", Informational},
		{"info", Informational},
		{"3", High},
		{"0", Informational},
		{"", Informational},
		{"bogus", Informational},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRisk(tt.in))
		})
	}
}

func TestSummarize_Truncates(t *testing.T) {
	desc := strings.Repeat("é", 500)
	sol := strings.Repeat("s", 201)
	agg := &Aggregate{Name: "X", Description: desc, Solution: sol}

	s := Summarize(agg)
	ell := utf8.RuneCountInString(defaults.Ellipsis)
	assert.LessOrEqual(t, utf8.RuneCountInString(s.Description), defaults.SummaryDescriptionRunes+ell)
	assert.LessOrEqual(t, utf8.RuneCountInString(s.Solution), defaults.SummarySolutionRunes+ell)
	assert.True(t, strings.HasSuffix(s.Description, defaults.Ellipsis))
	assert.True(t, utf8.ValidString(s.Description))

	d := Detail(agg)
	assert.Equal(t, desc, d.Description)
	assert.Equal(t, sol, d.Solution)
}

func TestSummarize_ShortTextUnchanged(t *testing.T) {
	s := Summarize(&Aggregate{Name: "X", Description: "short", Solution: "fix it"})
	assert.Equal(t, "short", s.Description)
	assert.Equal(t, "fix it", s.Solution)
}

func TestSummarize_SamplesURLs(t *testing.T) {
	agg := &Aggregate{Name: "X"}
	for _, u := range []string{"/1", "/1", "/2", "/3", "/4", "/5"} {
		agg.Occurrences = append(agg.Occurrences, Instance{URL: u})
	}
	agg.TotalCount = len(agg.Occurrences)

	s := Summarize(agg)
	assert.Equal(t, []string{"/1", "/2", "/3", "/4", "/5"}, s.URLs)
	assert.False(t, s.HasMoreURLs)
	assert.Equal(t, 6, s.Count)

	agg.Occurrences = append(agg.Occurrences, Instance{URL: "/6"})
	s = Summarize(agg)
	assert.Len(t, s.URLs, defaults.SummarySampleURLs)
	assert.True(t, s.HasMoreURLs)
}

func TestDetail_CopiesOccurrences(t *testing.T) {
	agg := &Aggregate{Name: "X", Occurrences: []Instance{{URL: "/a"}}}
	d := Detail(agg)
	d.Occurrences[0].URL = "/changed"
	assert.Equal(t, "/a", agg.Occurrences[0].URL)
}

func TestFromEngine(t *testing.T) {
	in := []engine.Alert{
		{Alert: "Legacy Name", Risk: "Medium", URL: "https://t/a", Method: "GET", Param: "q"},
		{Name: "New Name", Risk: "Low", URL: "https://t/b", Evidence: "e"},
	}
	got := FromEngine(in)
	require.Len(t, got, 2)
	assert.Equal(t, "Legacy Name", got[0].Name)
	assert.Equal(t, []Instance{{URL: "https://t/a", Method: "GET", Param: "q"}}, got[0].Instances)
	assert.Equal(t, "New Name", got[1].Name)
	assert.Equal(t, "e", got[1].Instances[0].Evidence)
}
