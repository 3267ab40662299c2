package rules

import (
	"strings"

	"github.com/abrw/reqfilter/internal/ufnet"
	"golang.org/x/net/publicsuffix"
)

// splitWithEscapeCharacter splits string by the specified separator if it is
// not escaped.
func splitWithEscapeCharacter(str string, sep, escapeCharacter byte, preserveAllTokens bool) []string {
	parts := make([]string, 0)

	if str == "" {
		return parts
	}

	var sb strings.Builder
	escaped := false
	for i := range len(str) {
		c := str[i]

		switch {
		case c == escapeCharacter:
			escaped = true
		case c == sep && escaped:
			sb.WriteByte(c)
			escaped = false
		case c == sep:
			if preserveAllTokens || sb.Len() > 0 {
				parts = append(parts, sb.String())
				sb.Reset()
			}
		default:
			if escaped {
				escaped = false
				sb.WriteByte(escapeCharacter)
			}
			sb.WriteByte(c)
		}
	}

	if preserveAllTokens || sb.Len() > 0 {
		parts = append(parts, sb.String())
	}

	return parts
}

// loadDomains parses the value of a $domain or $denyallow modifier.  Domains
// are separated by sep, the restricted ones are prefixed with "~".
func loadDomains(domains, sep string) (permitted, restricted []string, err error) {
	if domains == "" {
		return nil, nil, newSyntaxError(domains, "no domains specified")
	}

	for _, d := range strings.Split(domains, sep) {
		isRestricted := strings.HasPrefix(d, "~")
		if isRestricted {
			d = d[1:]
		}

		d = strings.ToLower(d)
		if !ufnet.IsDomainName(d) {
			return nil, nil, newSyntaxError(domains, "invalid domain specified: %q", d)
		}

		if isRestricted {
			restricted = append(restricted, d)
		} else {
			permitted = append(permitted, d)
		}
	}

	return permitted, restricted, nil
}

// isDomainOrSubdomainOfAny checks if domain is one of domains or a subdomain of
// any of them.  A pattern like "example.*" matches "example" under any public
// suffix.
func isDomainOrSubdomainOfAny(domain string, domains []string) (ok bool) {
	for _, d := range domains {
		if strings.HasSuffix(d, ".*") {
			if matchWildcardTLD(domain, d[:len(d)-1]) {
				return true
			}

			continue
		}

		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}

	return false
}

// matchWildcardTLD returns true if domain is prefix followed by a public suffix
// or a subdomain of such domain.  prefix ends with a dot, e.g. "example.".
func matchWildcardTLD(domain, prefix string) (ok bool) {
	tld, icann := publicsuffix.PublicSuffix(domain)
	if tld == "" || !icann {
		return false
	}

	name := prefix + tld

	return domain == name || strings.HasSuffix(domain, "."+name)
}
