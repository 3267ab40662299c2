package lookup

import (
	"strings"

	"github.com/abrw/reqfilter/internal/ufnet"
	"github.com/abrw/reqfilter/rules"
)

// DomainsTable is a lookup table that uses domains from the $domain modifier
// to speed up the rules search.  Only the rules with $domain modifier are
// eligible for this lookup table.
type DomainsTable struct {
	// lookupTable is the domain lookup table.  Key is the domain name hash.
	lookupTable map[uint32][]*rules.NetworkRule
}

// type check
var _ Table = (*DomainsTable)(nil)

// NewDomainsTable creates a new instance of the DomainsTable.
func NewDomainsTable() (d *DomainsTable) {
	return &DomainsTable{
		lookupTable: map[uint32][]*rules.NetworkRule{},
	}
}

// TryAdd implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) TryAdd(f *rules.NetworkRule) (ok bool) {
	if f.IsGeneric() {
		return false
	}

	permittedDomains := f.GetPermittedDomains()

	for _, domain := range permittedDomains {
		if strings.HasSuffix(domain, ".*") {
			// Wildcard TLDs can't be looked up by hash.
			return false
		}
	}

	for _, domain := range permittedDomains {
		hash := hashString(domain)
		d.lookupTable[hash] = append(d.lookupTable[hash], f)
	}

	return true
}

// MatchAll implements the [Table] interface for *DomainsTable.
func (d *DomainsTable) MatchAll(r *rules.Request) (result []*rules.NetworkRule) {
	if r.SourceHostname == "" {
		return nil
	}

	for _, domain := range ufnet.Subdomains(r.SourceHostname) {
		for _, rule := range d.lookupTable[hashString(domain)] {
			if !ruleIn(rule, result) && rule.Match(r) {
				result = append(result, rule)
			}
		}
	}

	return result
}
