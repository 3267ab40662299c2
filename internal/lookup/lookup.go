// Package lookup implements index structures that we use to improve matching
// speed in the engines.
package lookup

import "github.com/abrw/reqfilter/rules"

// Table is a common interface for all lookup tables.
type Table interface {
	// TryAdd attempts to add the rule to the lookup table.  It returns
	// true/false depending on whether the rule is eligible for this lookup
	// table.
	TryAdd(f *rules.NetworkRule) (ok bool)

	// MatchAll finds all matching rules from this lookup table.
	MatchAll(r *rules.Request) (result []*rules.NetworkRule)
}

// ScanTable is the last resort table for the rules no other table accepts.
// Generic rules are checked for every request, the rules limited to source
// domains only for requests with a source.
type ScanTable struct {
	generic []*rules.NetworkRule
	sourced []*rules.NetworkRule
}

// type check
var _ Table = (*ScanTable)(nil)

// TryAdd implements the [Table] interface for *ScanTable.  All rules are
// eligible.
func (s *ScanTable) TryAdd(f *rules.NetworkRule) (ok bool) {
	if f.IsGeneric() {
		s.generic = append(s.generic, f)
	} else {
		s.sourced = append(s.sourced, f)
	}

	return true
}

// MatchAll implements the [Table] interface for *ScanTable.
func (s *ScanTable) MatchAll(r *rules.Request) (result []*rules.NetworkRule) {
	result = appendMatching(result, s.generic, r)
	if r.SourceHostname != "" {
		result = appendMatching(result, s.sourced, r)
	}

	return result
}

// appendMatching appends the rules from rs matching r to result.
func appendMatching(result, rs []*rules.NetworkRule, r *rules.Request) (res []*rules.NetworkRule) {
	for _, rule := range rs {
		if rule.Match(r) {
			result = append(result, rule)
		}
	}

	return result
}

// hashString implements the djb2 hash algorithm for a string.
func hashString(str string) (hash uint32) {
	return hashBetween(str, 0, len(str))
}

// hashBetween implements the djb2 hash algorithm for the str[begin:end]
// substring without allocating it.
func hashBetween(str string, begin, end int) (hash uint32) {
	if begin >= end {
		return 0
	}

	hash = uint32(5381)
	for i := begin; i < end; i++ {
		hash = (hash * 33) ^ uint32(str[i])
	}

	return hash
}

// ruleIn checks if the particular rule instance is contained by the slice of
// pointers.
func ruleIn(rule *rules.NetworkRule, rs []*rules.NetworkRule) (ok bool) {
	for _, r := range rs {
		if r == rule {
			return true
		}
	}

	return false
}
