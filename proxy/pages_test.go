package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/abrw/reqfilter"
	"github.com/abrw/reqfilter/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBlockedPage(t *testing.T) {
	t.Parallel()

	page, err := buildBlockedPage("example.org", "||example.org^<script>")
	require.NoError(t, err)

	assert.Contains(t, page, "example.org")
	assert.Contains(t, page, "||example.org^&lt;script&gt;")
	assert.NotContains(t, page, "<script>")
}

func TestNewRedirectResponse(t *testing.T) {
	t.Parallel()

	newRedirect := func(t *testing.T, text string) (res *reqfilter.Redirect) {
		t.Helper()

		f, err := rules.NewNetworkRule(text, 0)
		require.NoError(t, err)

		return &reqfilter.Redirect{Rule: f, Target: f.RedirectTarget()}
	}

	r := httptest.NewRequest(http.MethodGet, "http://ads.example.com/ad.js", nil)

	resp := newRedirectResponse(r, newRedirect(t, "||ads.example.com^$redirect=noopjs"))
	require.NotNil(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get(httphdr.ContentType))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, redirectResources["noopjs"].body, body)

	resp = newRedirectResponse(r, newRedirect(t, "||ads.example.com^$redirect=unknown-resource"))
	require.NotNil(t, resp)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRedirectResources(t *testing.T) {
	t.Parallel()

	gif := redirectResources["1x1-transparent.gif"]
	require.NotNil(t, gif)

	assert.Equal(t, []byte("GIF89a"), gif.body[:6])
}
