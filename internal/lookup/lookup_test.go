package lookup_test

import (
	"testing"

	"github.com/abrw/reqfilter/internal/lookup"
	"github.com/abrw/reqfilter/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Common domains for tests.
const (
	testDomain      = "domain.example"
	testDomainNoMod = "nomod.domain.example"
	testDomainSub   = "sub.domain.example"
)

// Common rules for tests.
const (
	testRuleHostname        = "||" + testDomain + "^"
	testRulePath            = "||" + testDomainNoMod + "/banners/*.gif"
	testRuleNoShortcutsTiny = "||tiny^$script"
	testRuleNoShortcutsURL  = "|https://$script"
	testRuleWithDomain      = "/banner$domain=" + testDomain
	testRuleWildcardDomain  = "/banner$domain=domain.*"
)

// newRule is a helper that parses a network rule.
func newRule(tb testing.TB, text string) (f *rules.NetworkRule) {
	tb.Helper()

	f, err := rules.NewNetworkRule(text, 1)
	require.NoError(tb, err)

	return f
}

// ruleTexts returns the texts of rs.
func ruleTexts(rs []*rules.NetworkRule) (texts []string) {
	for _, r := range rs {
		texts = append(texts, r.Text())
	}

	return texts
}

func TestShortcutsTable(t *testing.T) {
	t.Parallel()

	tbl := lookup.NewShortcutsTable()

	assert.False(t, tbl.TryAdd(newRule(t, testRuleNoShortcutsTiny)))
	assert.False(t, tbl.TryAdd(newRule(t, testRuleNoShortcutsURL)))
	require.True(t, tbl.TryAdd(newRule(t, testRulePath)))

	testCases := []struct {
		name string
		url  string
		want []string
	}{{
		name: "no_match",
		url:  "https://" + testDomainNoMod + "/banners/a.png",
		want: nil,
	}, {
		name: "match",
		url:  "https://" + testDomainNoMod + "/banners/a.gif",
		want: []string{testRulePath},
	}, {
		name: "repeated_pattern",
		url:  "https://" + testDomainNoMod + "/banners/banners/a.gif",
		want: []string{testRulePath},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := rules.NewRequest(tc.url, "", rules.TypeImage)
			assert.Equal(t, tc.want, ruleTexts(tbl.MatchAll(r)))
		})
	}
}

func TestDomainsTable(t *testing.T) {
	t.Parallel()

	tbl := lookup.NewDomainsTable()

	assert.False(t, tbl.TryAdd(newRule(t, testRuleHostname)))
	assert.False(t, tbl.TryAdd(newRule(t, testRuleWildcardDomain)))
	require.True(t, tbl.TryAdd(newRule(t, testRuleWithDomain)))

	r := rules.NewRequest("https://cdn.example/banner.gif", testDomainSub, rules.TypeImage)
	assert.Equal(t, []string{testRuleWithDomain}, ruleTexts(tbl.MatchAll(r)))

	r = rules.NewRequest("https://cdn.example/banner.gif", "other.example", rules.TypeImage)
	assert.Empty(t, tbl.MatchAll(r))

	r = rules.NewRequest("https://cdn.example/banner.gif", "", rules.TypeImage)
	assert.Empty(t, tbl.MatchAll(r))
}

func TestHostnameTable(t *testing.T) {
	t.Parallel()

	tbl := lookup.NewHostnameTable()

	assert.False(t, tbl.TryAdd(newRule(t, testRulePath)))
	assert.False(t, tbl.TryAdd(newRule(t, testRuleWithDomain)))
	require.True(t, tbl.TryAdd(newRule(t, testRuleHostname)))

	testCases := []struct {
		name string
		url  string
		want []string
	}{{
		name: "exact",
		url:  "https://" + testDomain + "/",
		want: []string{testRuleHostname},
	}, {
		name: "subdomain",
		url:  "https://" + testDomainSub + "/x.js",
		want: []string{testRuleHostname},
	}, {
		name: "other",
		url:  "https://other.example/",
		want: nil,
	}, {
		name: "suffix",
		url:  "https://" + testDomain + ".evil/",
		want: nil,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := rules.NewRequest(tc.url, "", rules.TypeScript)
			assert.Equal(t, tc.want, ruleTexts(tbl.MatchAll(r)))
		})
	}
}

func TestScanTable(t *testing.T) {
	t.Parallel()

	const wildcardRule = "||tiny^$domain=example.*"

	tbl := &lookup.ScanTable{}
	require.True(t, tbl.TryAdd(newRule(t, testRuleNoShortcutsTiny)))
	require.True(t, tbl.TryAdd(newRule(t, wildcardRule)))

	r := rules.NewRequest("https://tiny/x.js", "", rules.TypeScript)
	assert.Equal(t, []string{testRuleNoShortcutsTiny}, ruleTexts(tbl.MatchAll(r)))

	r = rules.NewRequest("https://tiny/x.png", "", rules.TypeImage)
	assert.Empty(t, tbl.MatchAll(r))

	r = rules.NewRequest("https://tiny/x.png", "https://example.org/", rules.TypeImage)
	assert.Equal(t, []string{wildcardRule}, ruleTexts(tbl.MatchAll(r)))
}

func TestHostsTable(t *testing.T) {
	t.Parallel()

	h, err := rules.NewHostRule("0.0.0.0 "+testDomain+" "+testDomainNoMod, 1)
	require.NoError(t, err)

	tbl := lookup.NewHostsTable()
	tbl.Add(h)

	assert.Same(t, h, tbl.Match(testDomain))
	assert.Same(t, h, tbl.Match(testDomainNoMod))
	assert.Nil(t, tbl.Match(testDomainSub))
}
