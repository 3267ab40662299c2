package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleText(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		text          string
		wantPattern   string
		wantOptions   string
		wantWhitelist bool
	}{{
		name:          "plain",
		text:          "||example.org^",
		wantPattern:   "||example.org^",
		wantOptions:   "",
		wantWhitelist: false,
	}, {
		name:          "options",
		text:          "||example.org^$third-party",
		wantPattern:   "||example.org^",
		wantOptions:   "third-party",
		wantWhitelist: false,
	}, {
		name:          "exception",
		text:          "@@||example.org^$third-party",
		wantPattern:   "||example.org^",
		wantOptions:   "third-party",
		wantWhitelist: true,
	}, {
		name:          "dollars_in_path",
		text:          "||example.org/this$is$path$third-party",
		wantPattern:   "||example.org/this$is$path",
		wantOptions:   "third-party",
		wantWhitelist: false,
	}, {
		name:          "regex",
		text:          "@@/regex/",
		wantPattern:   "/regex/",
		wantOptions:   "",
		wantWhitelist: true,
	}, {
		name:          "regex_options",
		text:          "/regex/$script",
		wantPattern:   "/regex/",
		wantOptions:   "script",
		wantWhitelist: false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pattern, options, whitelist, err := parseRuleText(tc.text)
			require.NoError(t, err)

			assert.Equal(t, tc.wantPattern, pattern)
			assert.Equal(t, tc.wantOptions, options)
			assert.Equal(t, tc.wantWhitelist, whitelist)
		})
	}

	_, _, _, err := parseRuleText("@@")
	assert.Error(t, err)
}

func TestFindShortcut(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.org", findShortcut("||example.org^*ads"))
	assert.Equal(t, "/banner/", findShortcut("*/banner/*"))
	assert.Equal(t, "", findShortcut("||"))

	assert.Equal(t, "banners", findRegexpShortcut("/banners.*/"))
	assert.Equal(t, "banner", findRegexpShortcut("/banners*/"))
	assert.Equal(t, "", findRegexpShortcut(`/example\.org/`))
	assert.Equal(t, "", findRegexpShortcut("/(ad|banner)/"))
}

func TestNewNetworkRule_options(t *testing.T) {
	t.Parallel()

	f, err := NewNetworkRule("||example.org^$3p,important,match-case", 0)
	require.NoError(t, err)

	assert.True(t, f.IsOptionEnabled(OptionThirdParty))
	assert.True(t, f.IsOptionEnabled(OptionMatchCase))
	assert.True(t, f.IsImportant())
	assert.False(t, f.IsBadfilter())

	f, err = NewNetworkRule("||example.org^$first-party", 0)
	require.NoError(t, err)

	assert.True(t, f.IsOptionDisabled(OptionThirdParty))

	f, err = NewNetworkRule("||example.org/*", 0)
	require.NoError(t, err)

	assert.Equal(t, "||example.org^", f.pattern)
	assert.Equal(t, "example.org", f.Shortcut)
}

func TestNewNetworkRule_errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		wantErr error
		name    string
		text    string
	}{{
		wantErr: ErrUnsupportedRule,
		name:    "elemhide",
		text:    "@@||example.org^$elemhide",
	}, {
		wantErr: ErrUnsupportedRule,
		name:    "csp",
		text:    "||example.org^$csp=script-src 'none'",
	}, {
		wantErr: ErrUnsupportedRule,
		name:    "removeparam_regex",
		text:    "$removeparam=/^utm_/",
	}, {
		wantErr: ErrTooWideRule,
		name:    "too_wide",
		text:    "$third-party",
	}, {
		wantErr: nil,
		name:    "unknown_modifier",
		text:    "||example.org^$hologram",
	}, {
		wantErr: nil,
		name:    "popup_exception",
		text:    "@@||example.org^$popup",
	}, {
		wantErr: nil,
		name:    "empty_domain",
		text:    "||example.org^$domain=",
	}, {
		wantErr: nil,
		name:    "inverted_denyallow",
		text:    "*$denyallow=~example.org,domain=test.org",
	}, {
		wantErr: nil,
		name:    "bad_rewrite",
		text:    "||example.org^$rewrite=https://example.com",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f, err := NewNetworkRule(tc.text, 0)
			require.Error(t, err)
			assert.Nil(t, f)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				var synErr *RuleSyntaxError
				assert.ErrorAs(t, err, &synErr)
			}
		})
	}
}

func TestNetworkRule_Match(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want      assert.BoolAssertionFunc
		name      string
		rule      string
		url       string
		sourceURL string
		reqType   RequestType
	}{{
		want:    assert.True,
		name:    "hostname",
		rule:    "||example.org^",
		url:     "https://example.org/ad.js",
		reqType: TypeScript,
	}, {
		want:    assert.True,
		name:    "hostname_subdomain",
		rule:    "||example.org^",
		url:     "https://sub.example.org",
		reqType: TypeDocument,
	}, {
		want:    assert.False,
		name:    "hostname_suffix_attack",
		rule:    "||example.org^",
		url:     "https://example.org.evil.com/",
		reqType: TypeDocument,
	}, {
		want:    assert.False,
		name:    "hostname_other",
		rule:    "||example.org^",
		url:     "https://notexample.org/",
		reqType: TypeDocument,
	}, {
		want:    assert.True,
		name:    "anchor_no_separator_prefix",
		rule:    "||adserver",
		url:     "https://adserver.com/x.js",
		reqType: TypeScript,
	}, {
		want:    assert.True,
		name:    "anchor_no_separator_dash",
		rule:    "||ads-",
		url:     "https://ads-cdn.example/x.js",
		reqType: TypeScript,
	}, {
		want:    assert.True,
		name:    "anchor_no_separator_longer_host",
		rule:    "||example.com",
		url:     "https://example.com.evil.org/x.js",
		reqType: TypeScript,
	}, {
		want:    assert.True,
		name:    "path",
		rule:    "||example.org/ads/*.js",
		url:     "https://www.example.org/ads/banner.js",
		reqType: TypeScript,
	}, {
		want:    assert.False,
		name:    "path_mismatch",
		rule:    "||example.org/ads/*.js",
		url:     "https://www.example.org/ads/banner.png",
		reqType: TypeImage,
	}, {
		want:    assert.True,
		name:    "regex",
		rule:    `/banner\d+/`,
		url:     "https://x.org/BANNER123.png",
		reqType: TypeImage,
	}, {
		want:    assert.False,
		name:    "regex_mismatch",
		rule:    `/banner\d+/`,
		url:     "https://x.org/banner.png",
		reqType: TypeImage,
	}, {
		want:    assert.True,
		name:    "substring_case_insensitive",
		rule:    "ad.gif",
		url:     "https://x.org/AD.GIF",
		reqType: TypeImage,
	}, {
		want:    assert.True,
		name:    "match_case",
		rule:    "AD.gif$match-case",
		url:     "https://x.org/AD.gif",
		reqType: TypeImage,
	}, {
		want:    assert.False,
		name:    "match_case_mismatch",
		rule:    "AD.gif$match-case",
		url:     "https://x.org/ad.gif",
		reqType: TypeImage,
	}, {
		want:    assert.True,
		name:    "separator_end",
		rule:    "|https://x.org/track^",
		url:     "https://x.org/track",
		reqType: TypeOther,
	}, {
		want:    assert.False,
		name:    "separator_letter",
		rule:    "|https://x.org/track^",
		url:     "https://x.org/tracker",
		reqType: TypeOther,
	}, {
		want:      assert.True,
		name:      "third_party",
		rule:      "||ads.example.com^$third-party",
		url:       "https://ads.example.com/x",
		sourceURL: "https://news.org/",
		reqType:   TypeScript,
	}, {
		want:      assert.False,
		name:      "third_party_first",
		rule:      "||ads.example.com^$third-party",
		url:       "https://ads.example.com/x",
		sourceURL: "https://www.example.com/",
		reqType:   TypeScript,
	}, {
		want:      assert.True,
		name:      "domain_permitted",
		rule:      "||cdn.org^$domain=example.org|~sub.example.org",
		url:       "https://cdn.org/x",
		sourceURL: "example.org",
		reqType:   TypeScript,
	}, {
		want:      assert.False,
		name:      "domain_restricted",
		rule:      "||cdn.org^$domain=example.org|~sub.example.org",
		url:       "https://cdn.org/x",
		sourceURL: "sub.example.org",
		reqType:   TypeScript,
	}, {
		want:      assert.False,
		name:      "domain_other",
		rule:      "||cdn.org^$domain=example.org|~sub.example.org",
		url:       "https://cdn.org/x",
		sourceURL: "other.org",
		reqType:   TypeScript,
	}, {
		want:      assert.True,
		name:      "type_permitted",
		rule:      "*$script,domain=example.org",
		url:       "https://cdn.org/x.js",
		sourceURL: "example.org",
		reqType:   TypeScript,
	}, {
		want:      assert.False,
		name:      "type_not_permitted",
		rule:      "*$script,domain=example.org",
		url:       "https://cdn.org/x.png",
		sourceURL: "example.org",
		reqType:   TypeImage,
	}, {
		want:    assert.False,
		name:    "type_restricted",
		rule:    "||example.org^$~image",
		url:     "https://example.org/x.png",
		reqType: TypeImage,
	}, {
		want:    assert.True,
		name:    "type_not_restricted",
		rule:    "||example.org^$~image",
		url:     "https://example.org/x.js",
		reqType: TypeScript,
	}, {
		want:      assert.False,
		name:      "denyallow_excluded",
		rule:      "*$denyallow=good.org,domain=example.org",
		url:       "https://cdn.good.org/x.js",
		sourceURL: "example.org",
		reqType:   TypeScript,
	}, {
		want:      assert.True,
		name:      "denyallow_other",
		rule:      "*$denyallow=good.org,domain=example.org",
		url:       "https://bad.org/x.js",
		sourceURL: "example.org",
		reqType:   TypeScript,
	}, {
		want:    assert.True,
		name:    "removeparam",
		rule:    "||tracker.org^$removeparam=utm_source",
		url:     "https://tracker.org/p?utm_source=x&a=1",
		reqType: TypeDocument,
	}, {
		want:    assert.False,
		name:    "removeparam_absent",
		rule:    "||tracker.org^$removeparam=utm_source",
		url:     "https://tracker.org/p?a=1",
		reqType: TypeDocument,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f, err := NewNetworkRule(tc.rule, 0)
			require.NoError(t, err)

			tc.want(t, f.Match(NewRequest(tc.url, tc.sourceURL, tc.reqType)))
		})
	}
}

func TestNetworkRule_RewriteURL(t *testing.T) {
	t.Parallel()

	f, err := NewNetworkRule("||tracker.org^$removeparam=utm_source", 0)
	require.NoError(t, err)
	require.True(t, f.IsRewrite())

	u, changed := f.RewriteURL("https://tracker.org/p?utm_source=x&a=1")
	assert.True(t, changed)
	assert.Equal(t, "https://tracker.org/p?a=1", u)

	u, changed = f.RewriteURL("https://tracker.org/p")
	assert.False(t, changed)
	assert.Equal(t, "https://tracker.org/p", u)

	f, err = NewNetworkRule("||tracker.org^$removeparam", 0)
	require.NoError(t, err)

	u, changed = f.RewriteURL("https://tracker.org/p?a=1&b=2")
	assert.True(t, changed)
	assert.Equal(t, "https://tracker.org/p", u)
}

func TestNetworkRule_redirect(t *testing.T) {
	t.Parallel()

	f, err := NewNetworkRule("||ads.org/script.js$script,redirect=noopjs:10", 0)
	require.NoError(t, err)

	assert.True(t, f.IsRedirect())
	assert.Equal(t, RedirectScheme+"noopjs", f.RedirectTarget())

	f, err = NewNetworkRule("||ads.org^$rewrite=abp-resource:blank-js", 0)
	require.NoError(t, err)

	assert.True(t, f.IsRedirect())
	assert.Equal(t, RedirectScheme+"blank-js", f.RedirectTarget())

	f, err = NewNetworkRule("@@||ads.org^$redirect=noopjs", 0)
	require.NoError(t, err)

	assert.False(t, f.IsRedirect())
	assert.Empty(t, f.RedirectTarget())

	f, err = NewNetworkRule("||ads.org^", 0)
	require.NoError(t, err)

	assert.False(t, f.IsRedirect())
	assert.Empty(t, f.RedirectTarget())
}

func TestNetworkRule_Negates(t *testing.T) {
	t.Parallel()

	rule, err := NewNetworkRule("||example.org^$script", 0)
	require.NoError(t, err)

	badfilter, err := NewNetworkRule("||example.org^$script,badfilter", 0)
	require.NoError(t, err)

	other, err := NewNetworkRule("||example.org^$image,badfilter", 0)
	require.NoError(t, err)

	assert.True(t, badfilter.Negates(rule))
	assert.False(t, rule.Negates(badfilter))
	assert.False(t, other.Negates(rule))
}

func TestNetworkRule_HostnameAnchor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		rule     string
		wantHost string
		wantOK   bool
	}{{
		name:     "plain",
		rule:     "||Ads.Example.org^",
		wantHost: "ads.example.org",
		wantOK:   true,
	}, {
		name:     "no_separator",
		rule:     "||ads.example.org",
		wantHost: "",
		wantOK:   false,
	}, {
		name:     "important",
		rule:     "||ads.example.org^$important",
		wantHost: "ads.example.org",
		wantOK:   true,
	}, {
		name:     "exception",
		rule:     "@@||ads.example.org^",
		wantHost: "ads.example.org",
		wantOK:   true,
	}, {
		name:     "modifier",
		rule:     "||ads.example.org^$script",
		wantHost: "",
		wantOK:   false,
	}, {
		name:     "path",
		rule:     "||ads.example.org/path",
		wantHost: "",
		wantOK:   false,
	}, {
		name:     "wildcard",
		rule:     "||ads.*.org^",
		wantHost: "",
		wantOK:   false,
	}, {
		name:     "not_anchored",
		rule:     "ads.example.org^",
		wantHost: "",
		wantOK:   false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f, err := NewNetworkRule(tc.rule, 0)
			require.NoError(t, err)

			host, ok := f.HostnameAnchor()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantHost, host)
		})
	}
}
