// Package ufnet contains utilities for hostname extraction and validation on
// the request matching path.
package ufnet

import (
	"strings"

	"github.com/miekg/dns"
)

// ExtractHostname quickly retrieves hostname from the given URL.  It strips
// the userinfo and the port, and returns an empty string for URLs that have no
// authority part.
//
// NOTE: ExtractHostname is an optimized, best-effort function, the interceptor
// validates URLs with net/url before the engine sees them.  IPv6 literals are
// returned with their brackets.
func ExtractHostname(url string) (hostname string) {
	start := strings.Index(url, "//")
	if start == -1 {
		// This is a non-hierarchical structured URL (e.g. stun: or data:),
		// which has no hostname.
		return ""
	}

	start += len("//")
	end := strings.IndexAny(url[start:], "/?#")
	if end == -1 {
		end = len(url)
	} else {
		end += start
	}

	authority := url[start:end]
	if at := strings.LastIndexByte(authority, '@'); at != -1 {
		authority = authority[at+1:]
	}

	if strings.HasPrefix(authority, "[") {
		if closing := strings.IndexByte(authority, ']'); closing != -1 {
			return authority[:closing+1]
		}

		return ""
	}

	if colon := strings.IndexByte(authority, ':'); colon != -1 {
		authority = authority[:colon]
	}

	return authority
}

// Subdomains returns hostname and all its parent domains, starting from the
// top-level one.  For "a.b.example" it returns ["example", "b.example",
// "a.b.example"].
func Subdomains(hostname string) (subdomains []string) {
	if hostname == "" {
		return nil
	}

	for i := len(hostname) - 1; i > 0; i-- {
		if hostname[i] == '.' {
			subdomains = append(subdomains, hostname[i+1:])
		}
	}

	return append(subdomains, hostname)
}

// IsDomainName returns true if name is a syntactically valid domain name that
// may be used in the $domain and $denyallow modifiers.  Names with a wildcard
// top-level domain, such as "example.*", are accepted as well.
func IsDomainName(name string) (ok bool) {
	if name == "" || name == "*" || len(name) > 253 {
		return false
	}

	name = strings.TrimSuffix(name, ".*")
	if strings.ContainsAny(name, "*/ ") || strings.HasPrefix(name, ".") {
		return false
	}

	_, ok = dns.IsDomainName(name)

	return ok
}
