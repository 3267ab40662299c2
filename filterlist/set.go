package filterlist

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/abrw/reqfilter/rules"
)

// Set is the accumulated set of the filtering rules from all the filter lists.
// Rules are keyed by their text, so neither the order of merging nor the
// duplicated lines change the set.  A Set is safe for concurrent use.
type Set struct {
	logger *slog.Logger

	// mu protects rules.
	mu *sync.Mutex

	// rules maps the rule text to the parsed rule.
	rules map[string]rules.Rule
}

// NewSet returns a new empty set.  logger must not be nil.
func NewSet(logger *slog.Logger) (s *Set) {
	return &Set{
		logger: logger,
		mu:     &sync.Mutex{},
		rules:  map[string]rules.Rule{},
	}
}

// AddFilters parses lines and merges the valid rules into s using
// [Set.AddRules].  Malformed lines are skipped individually.
func (s *Set) AddFilters(lines []string) (added int) {
	parsed := make([]rules.Rule, 0, len(lines))
	unsupported, invalid := 0, 0
	for i, line := range lines {
		r, err := rules.NewRule(line, 0)
		switch {
		case errors.Is(err, rules.ErrUnsupportedRule):
			unsupported++
		case err != nil:
			invalid++
			s.logger.Debug("skipping line", "idx", i, slogutil.KeyError, err)
		case r != nil:
			parsed = append(parsed, r)
		}
	}

	s.logger.Debug(
		"parsed filters",
		"rules", len(parsed),
		"unsupported", unsupported,
		"invalid", invalid,
	)

	return s.AddRules(parsed)
}

// AddRules merges rs into s.  Rules with a multiline text are skipped, since
// the persisted set is line-oriented.  added is the number of rules not yet
// present in the set.
func (s *Set) AddRules(rs []rules.Rule) (added int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rs {
		text := r.Text()
		if strings.ContainsAny(text, "\r\n") {
			s.logger.Debug("skipping multiline rule", "text", text)

			continue
		} else if _, ok := s.rules[text]; ok {
			continue
		}

		s.rules[text] = r
		added++
	}

	return added
}

// Len returns the number of rules in s.
func (s *Set) Len() (n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.rules)
}

// Snapshot returns a frozen copy of s with the rules sorted by their text.
// Later changes of s don't affect the snapshot.
func (s *Set) Snapshot() (snap *Snapshot) {
	s.mu.Lock()
	rs := make([]rules.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		rs = append(rs, r)
	}
	s.mu.Unlock()

	slices.SortFunc(rs, func(a, b rules.Rule) (res int) {
		return strings.Compare(a.Text(), b.Text())
	})

	return &Snapshot{rules: rs}
}

// Snapshot is an immutable sorted list of rules.
type Snapshot struct {
	rules []rules.Rule
}

// NewSnapshot returns a snapshot of the rules parsed from lines.  It is a
// shorthand for building a one-off [Set].
func NewSnapshot(lines []string) (snap *Snapshot) {
	s := NewSet(slogutil.NewDiscardLogger())
	s.AddFilters(lines)

	return s.Snapshot()
}

// Len returns the number of rules in snap.
func (snap *Snapshot) Len() (n int) {
	return len(snap.rules)
}

// Rules returns a copy of the sorted rules.
func (snap *Snapshot) Rules() (rs []rules.Rule) {
	return slices.Clone(snap.rules)
}

// Texts returns the sorted texts of the rules.
func (snap *Snapshot) Texts() (texts []string) {
	texts = make([]string, 0, len(snap.rules))
	for _, r := range snap.rules {
		texts = append(texts, r.Text())
	}

	return texts
}
