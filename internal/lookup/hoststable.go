package lookup

import "github.com/abrw/reqfilter/rules"

// HostsTable is the lookup table for the hosts file rules.  A hosts rule
// blocks exactly the hostnames it lists.
type HostsTable struct {
	lookupTable map[string][]*rules.HostRule
}

// NewHostsTable creates a new instance of the HostsTable.
func NewHostsTable() (h *HostsTable) {
	return &HostsTable{
		lookupTable: map[string][]*rules.HostRule{},
	}
}

// Add adds the rule to the table.
func (h *HostsTable) Add(f *rules.HostRule) {
	for _, host := range f.Hostnames {
		h.lookupTable[host] = append(h.lookupTable[host], f)
	}
}

// Match returns the first rule blocking hostname or nil.
func (h *HostsTable) Match(hostname string) (f *rules.HostRule) {
	rs := h.lookupTable[hostname]
	if len(rs) == 0 {
		return nil
	}

	return rs[0]
}
