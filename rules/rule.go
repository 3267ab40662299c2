// Package rules contains the network filtering rules and the request they are
// matched against.
package rules

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// RuleSyntaxError represents an error while parsing a filtering rule.
type RuleSyntaxError struct {
	msg      string
	ruleText string
}

// type check
var _ error = (*RuleSyntaxError)(nil)

// Error implements the error interface for *RuleSyntaxError.
func (e *RuleSyntaxError) Error() (msg string) {
	return fmt.Sprintf("syntax error: %s, rule: %s", e.msg, e.ruleText)
}

// newSyntaxError returns a *RuleSyntaxError for ruleText using a formatted
// message.
func newSyntaxError(ruleText, format string, args ...any) (err *RuleSyntaxError) {
	return &RuleSyntaxError{
		msg:      fmt.Sprintf(format, args...),
		ruleText: ruleText,
	}
}

const (
	// ErrUnsupportedRule signals that this might be a valid rule type, but it
	// is not supported on the network level, e.g. a cosmetic rule.
	ErrUnsupportedRule errors.Error = "this type of rules is unsupported"

	// ErrTooWideRule is returned if the rule matches all URLs but has no
	// domain or denyallow restrictions.
	ErrTooWideRule errors.Error = "the rule is too wide, add domain or denyallow " +
		"restrictions or make it more specific"
)

// Rule is a base interface for all filtering rules.
type Rule interface {
	// Text returns the original rule text.
	Text() (s string)

	// GetFilterListID returns ID of the filter list this rule belongs to.
	GetFilterListID() (id int)
}

// cosmeticRulesMarkers are the markers of element hiding, CSS, scriptlet and
// HTML filtering rules.  They are sorted by length in descending order, which
// is important for findRuleMarker.
var cosmeticRulesMarkers = []string{
	"#@$?#", "#$?#",
	"#@%#", "#@$#", "#@?#", "$@$",
	"#%#", "#$#", "#?#", "#@#",
	"##", "$$",
}

// NewRule creates a new filtering rule from the specified line.  It returns
// nil and no error if the line is empty or if it is a comment.  Cosmetic rules
// are reported with [ErrUnsupportedRule].
func NewRule(line string, filterListID int) (r Rule, err error) {
	line = strings.TrimSpace(line)

	if line == "" || isComment(line) {
		return nil, nil
	}

	if isCosmetic(line) {
		return nil, ErrUnsupportedRule
	}

	if h, hErr := NewHostRule(line, filterListID); hErr == nil {
		return h, nil
	}

	return NewNetworkRule(line, filterListID)
}

// isComment checks if the line is a comment or a list header such as
// "[Adblock Plus 2.0]".
func isComment(line string) (ok bool) {
	switch line[0] {
	case '!':
		return true
	case '[':
		return strings.HasSuffix(line, "]")
	case '#':
		if len(line) == 1 {
			return true
		}

		for _, marker := range cosmeticRulesMarkers {
			if strings.HasPrefix(line, marker) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// isCosmetic checks if this is a cosmetic filtering rule.
func isCosmetic(line string) (ok bool) {
	return findRuleMarker(line, '#') != "" || findRuleMarker(line, '$') != ""
}

// findRuleMarker looks for the first cosmetic rule marker which starts with
// firstMarkerChar in the rule text and returns it or an empty string.
func findRuleMarker(ruleText string, firstMarkerChar byte) (marker string) {
	startIndex := strings.IndexByte(ruleText, firstMarkerChar)
	if startIndex == -1 {
		return ""
	}

	for _, m := range cosmeticRulesMarkers {
		if strings.HasPrefix(ruleText[startIndex:], m) {
			return m
		}
	}

	return ""
}
