package lookup

import (
	"github.com/abrw/reqfilter/internal/ufnet"
	"github.com/abrw/reqfilter/rules"
)

// HostnameTable is a lookup table for the "||hostname^" rules, which are the
// majority of rules in the common blocklists.  The request hostname and its
// parent domains are looked up directly.
type HostnameTable struct {
	lookupTable map[string][]*rules.NetworkRule
}

// type check
var _ Table = (*HostnameTable)(nil)

// NewHostnameTable creates a new instance of the HostnameTable.
func NewHostnameTable() (h *HostnameTable) {
	return &HostnameTable{
		lookupTable: map[string][]*rules.NetworkRule{},
	}
}

// TryAdd implements the [Table] interface for *HostnameTable.
func (h *HostnameTable) TryAdd(f *rules.NetworkRule) (ok bool) {
	host, ok := f.HostnameAnchor()
	if !ok {
		return false
	}

	h.lookupTable[host] = append(h.lookupTable[host], f)

	return true
}

// MatchAll implements the [Table] interface for *HostnameTable.
func (h *HostnameTable) MatchAll(r *rules.Request) (result []*rules.NetworkRule) {
	for _, domain := range ufnet.Subdomains(r.Hostname) {
		for _, rule := range h.lookupTable[domain] {
			if rule.Match(r) {
				result = append(result, rule)
			}
		}
	}

	return result
}
