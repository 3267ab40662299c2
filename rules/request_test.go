package rules_test

import (
	"strings"
	"testing"

	"github.com/abrw/reqfilter/rules"
	"github.com/stretchr/testify/assert"
)

func TestNewRequest(t *testing.T) {
	t.Parallel()

	r := rules.NewRequest("http://example.org/", "", rules.TypeOther)
	assert.Equal(t, "example.org", r.Hostname)
	assert.Equal(t, "example.org", r.Domain)
	assert.Equal(t, "http://example.org/", r.URL)
	assert.Equal(t, "", r.SourceHostname)
	assert.Equal(t, "", r.SourceDomain)
	assert.Equal(t, rules.TypeOther, r.RequestType)
	assert.False(t, r.ThirdParty)

	r = rules.NewRequest("https://Ads.Example.org/X.js", "https://news.example.org/", rules.TypeScript)
	assert.Equal(t, "ads.example.org", r.Hostname)
	assert.Equal(t, "https://ads.example.org/x.js", r.URLLowerCase)
	assert.Equal(t, "https://Ads.Example.org/X.js", r.URL)
	assert.Equal(t, "news.example.org", r.SourceHostname)
	assert.Equal(t, "example.org", r.SourceDomain)
	assert.False(t, r.ThirdParty)

	r = rules.NewRequest("http://example.org.uk/", "http://sub.example.org.uk", rules.TypeOther)
	assert.Equal(t, "example.org.uk", r.Domain)
	assert.Equal(t, "example.org.uk", r.SourceDomain)
	assert.False(t, r.ThirdParty)

	r = rules.NewRequest("https://cdn.tracker.net/pixel.gif", "news.org", rules.TypeImage)
	assert.Equal(t, "news.org", r.SourceHostname)
	assert.Equal(t, "tracker.net", r.Domain)
	assert.True(t, r.ThirdParty)
}

func TestNewRequest_longURL(t *testing.T) {
	t.Parallel()

	u := "https://example.org/" + strings.Repeat("a", 5000)
	r := rules.NewRequest(u, "", rules.TypeOther)

	assert.Len(t, r.URL, 4096)
	assert.Equal(t, "example.org", r.Hostname)
}

func TestRequestTypeFromString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, rules.TypeXmlhttprequest, rules.RequestTypeFromString("XHR"))
	assert.Equal(t, rules.TypeImage, rules.RequestTypeFromString("image"))
	assert.Equal(t, rules.TypeSubdocument, rules.RequestTypeFromString("frame"))
	assert.Equal(t, rules.TypeOther, rules.RequestTypeFromString(""))
	assert.Equal(t, rules.TypeOther, rules.RequestTypeFromString("hologram"))

	assert.Equal(t, 2, (rules.TypeImage | rules.TypeScript).Count())
}
