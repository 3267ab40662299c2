package rules

import (
	"net/netip"
	"strings"

	"github.com/abrw/reqfilter/internal/ufnet"
)

// HostRule is a structure for simple host-level rules (i.e. /etc/hosts syntax)
// that many block lists are distributed in.  The engine treats it as a
// blocking rule for exactly the listed hostnames.
// http://man7.org/linux/man-pages/man5/hosts.5.html
type HostRule struct {
	// IP is the address of the rule.  It is usually a null or a loopback
	// address and is not used for matching.
	IP netip.Addr

	// RuleText is the original text of the rule.
	RuleText string

	// Hostnames is the slice of hostnames associated with IP.
	Hostnames []string

	// FilterListID is the identifier of the filter, containing the rule.
	FilterListID int
}

// type check
var _ Rule = (*HostRule)(nil)

// localHostnames are the hostnames that hosts files map to loopback addresses
// for the system itself.  They are never blocked.
var localHostnames = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"local":                 {},
	"broadcasthost":         {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
	"ip6-localnet":          {},
	"ip6-mcastprefix":       {},
	"ip6-allnodes":          {},
	"ip6-allrouters":        {},
	"ip6-allhosts":          {},
	"0.0.0.0":               {},
}

// NewHostRule parses the rule and creates a new HostRule instance.  The format
// is:
//
//	IP_address canonical_hostname [aliases...] [# comment]
func NewHostRule(ruleText string, filterListID int) (h *HostRule, err error) {
	text := ruleText
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}

	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil, newSyntaxError(ruleText, "not a hosts file entry")
	}

	ip, err := netip.ParseAddr(fields[0])
	if err != nil {
		return nil, newSyntaxError(ruleText, "cannot parse ip: %s", err)
	}

	h = &HostRule{
		IP:           ip,
		RuleText:     ruleText,
		FilterListID: filterListID,
	}

	for _, host := range fields[1:] {
		host = strings.ToLower(host)
		if _, ok := localHostnames[host]; ok {
			continue
		}

		if !ufnet.IsDomainName(host) || strings.HasSuffix(host, ".*") {
			return nil, newSyntaxError(ruleText, "invalid hostname %q", host)
		}

		h.Hostnames = append(h.Hostnames, host)
	}

	if len(h.Hostnames) == 0 {
		return nil, newSyntaxError(ruleText, "no hostnames to block")
	}

	return h, nil
}

// Text implements the [Rule] interface for *HostRule.
func (f *HostRule) Text() (s string) {
	return f.RuleText
}

// GetFilterListID implements the [Rule] interface for *HostRule.
func (f *HostRule) GetFilterListID() (id int) {
	return f.FilterListID
}

// String returns original rule text.
func (f *HostRule) String() (s string) {
	return f.RuleText
}

// Match checks if this filtering rule matches the specified hostname.
func (f *HostRule) Match(hostname string) (ok bool) {
	for _, h := range f.Hostnames {
		if h == hostname {
			return true
		}
	}

	return false
}
