// Package filterlist contains the accumulated set of filtering rules and the
// scanner of the filter list texts.
package filterlist

import (
	"bufio"
	"io"

	"github.com/abrw/reqfilter/rules"
)

// maxLineLength is the maximum length of a filter list line.  Longer lines
// stop the scanner with [bufio.ErrTooLong].
const maxLineLength = 256 * 1024

// RuleScanner implements an interface for reading filtering rules.
type RuleScanner struct {
	// OnError, if not nil, is called for every line that is not a valid
	// rule, comments and empty lines excluded.  lineIdx is zero-based.
	OnError func(lineIdx int, line string, err error)

	// reader is the underlying line scanner.
	reader *bufio.Scanner

	// currentRule is the rule found by the last Scan call.
	currentRule rules.Rule

	// listID is the filter list identifier.
	listID int

	// currentLine is the index of the line being scanned.
	currentLine int
}

// NewRuleScanner returns a new RuleScanner to read from r.  listID is the
// filter list identifier of the parsed rules.
func NewRuleScanner(r io.Reader, listID int) (s *RuleScanner) {
	reader := bufio.NewScanner(r)
	reader.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	return &RuleScanner{
		reader:      reader,
		listID:      listID,
		currentLine: -1,
	}
}

// Scan advances the RuleScanner to the next rule, which will then be available
// through the Rule method.  It returns false when the scan stops, either by
// reaching the end of the input or an error.
func (s *RuleScanner) Scan() (ok bool) {
	for s.reader.Scan() {
		s.currentLine++

		line := s.reader.Text()
		r, err := rules.NewRule(line, s.listID)
		if err != nil {
			if s.OnError != nil {
				s.OnError(s.currentLine, line, err)
			}

			continue
		} else if r == nil {
			continue
		}

		s.currentRule = r

		return true
	}

	return false
}

// Rule returns the most recent rule generated by a call to Scan, and the index
// of the line it was found on.
func (s *RuleScanner) Rule() (r rules.Rule, lineIdx int) {
	return s.currentRule, s.currentLine
}

// LineCount returns the number of lines read so far.
func (s *RuleScanner) LineCount() (n int) {
	return s.currentLine + 1
}

// Err returns the first non-EOF error that was encountered by the scanner.
func (s *RuleScanner) Err() (err error) {
	return s.reader.Err()
}
