package proxy

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/gomitmproxy/proxyutil"
	"github.com/abrw/reqfilter"
	"github.com/abrw/reqfilter/rules"
)

// blockedPageHTML is the template of the page served instead of a blocked
// request.
const blockedPageHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Request blocked</title>
</head>
<body>
<h1>Request to {{.Hostname}} was blocked</h1>
<p>Blocking rule:</p>
<pre>{{.RuleText}}</pre>
</body>
</html>
`

var blockedPageTmpl = template.Must(template.New("blocked").Parse(blockedPageHTML))

type blockedPageParameters struct {
	Hostname string
	RuleText string
}

// buildBlockedPage builds blocked page content.
func buildBlockedPage(hostname, ruleText string) (page string, err error) {
	params := blockedPageParameters{
		Hostname: hostname,
		RuleText: ruleText,
	}

	var data bytes.Buffer
	err = blockedPageTmpl.Execute(&data, params)
	if err != nil {
		return "", err
	}

	return data.String(), nil
}

// newBlockedResponse creates an HTTP response for the request blocked with
// res.
func newBlockedResponse(r *http.Request, res reqfilter.MatchResult) (resp *http.Response) {
	page, err := buildBlockedPage(r.URL.Hostname(), res.RuleText())
	if err != nil {
		return proxyutil.NewErrorResponse(r, err)
	}

	resp = proxyutil.NewResponse(http.StatusForbidden, strings.NewReader(page), r)
	resp.Close = true
	resp.Header.Set(httphdr.ContentType, "text/html; charset=utf-8")

	return resp
}

// newRewriteResponse creates an HTTP response which makes the client load
// target instead of r.
func newRewriteResponse(r *http.Request, target string) (resp *http.Response) {
	resp = proxyutil.NewResponse(http.StatusTemporaryRedirect, nil, r)
	resp.Header.Set(httphdr.Location, target)

	return resp
}

// newRedirectResponse creates an HTTP response with the stub resource of res.
// An unknown resource blocks the request.
func newRedirectResponse(r *http.Request, res *reqfilter.Redirect) (resp *http.Response) {
	rsc, ok := redirectResources[strings.TrimPrefix(res.Target, rules.RedirectScheme)]
	if !ok {
		return newBlockedResponse(r, res)
	}

	resp = proxyutil.NewResponse(http.StatusOK, bytes.NewReader(rsc.body), r)
	resp.Header.Set(httphdr.ContentType, rsc.contentType)

	return resp
}
