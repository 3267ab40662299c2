// Package reqfilter contains the compiled request filtering engine which
// decides whether a request should be blocked, redirected, rewritten or
// allowed.
package reqfilter

import (
	"slices"

	"github.com/abrw/reqfilter/filterlist"
	"github.com/abrw/reqfilter/internal/lookup"
	"github.com/abrw/reqfilter/rules"
	"github.com/google/uuid"
)

// Engine is the compiled, match-ready representation of a filter set.  It is
// never modified after [Compile] returns and is safe for concurrent use.
type Engine struct {
	// hosts is the table of the hosts file rules.
	hosts *lookup.HostsTable

	// lookupTables is the array of lookup tables which we need to speed up
	// the matching speed.  Note, that the order of lookup tables is very
	// important, we'll try to add rules to the faster table first.  If it's
	// not eligible for that lookup table, we'll then proceed to a slower one.
	lookupTables []lookup.Table

	// texts are the sorted texts of all rules of the source snapshot.
	texts []string

	// id is the identity tag of the engine.
	id uuid.UUID

	// rulesCount is the count of rules added to the engine.
	rulesCount int
}

// Compile builds the engine from snap with a new random identity.  snap is
// not modified, compiling the same snapshot twice gives engines producing the
// same results.
func Compile(snap *filterlist.Snapshot) (e *Engine) {
	return NewEngine(snap, uuid.New())
}

// NewEngine builds the engine from snap with the given identity tag.  It is
// used to restore a persisted engine.
func NewEngine(snap *filterlist.Snapshot, id uuid.UUID) (e *Engine) {
	e = &Engine{
		hosts: lookup.NewHostsTable(),
		lookupTables: []lookup.Table{
			lookup.NewHostnameTable(),
			lookup.NewShortcutsTable(),
			lookup.NewDomainsTable(),
			&lookup.ScanTable{},
		},
		texts: snap.Texts(),
		id:    id,
	}

	rs := snap.Rules()

	var badfilters []*rules.NetworkRule
	for _, r := range rs {
		if nr, ok := r.(*rules.NetworkRule); ok && nr.IsBadfilter() {
			badfilters = append(badfilters, nr)
		}
	}

	for _, r := range rs {
		switch r := r.(type) {
		case *rules.HostRule:
			e.hosts.Add(r)
			e.rulesCount++
		case *rules.NetworkRule:
			if r.IsBadfilter() || isNegated(r, badfilters) {
				continue
			}

			e.addRule(r)
		}
	}

	return e
}

// isNegated returns true if any of badfilters disables r.
func isNegated(r *rules.NetworkRule, badfilters []*rules.NetworkRule) (ok bool) {
	for _, bf := range badfilters {
		if bf.Negates(r) {
			return true
		}
	}

	return false
}

// addRule adds rule to the first eligible lookup table.
func (e *Engine) addRule(f *rules.NetworkRule) {
	for _, table := range e.lookupTables {
		if table.TryAdd(f) {
			e.rulesCount++

			return
		}
	}
}

// ID returns the identity tag of the engine.
func (e *Engine) ID() (id uuid.UUID) {
	return e.id
}

// RulesCount returns the number of rules the engine matches against.
func (e *Engine) RulesCount() (n int) {
	return e.rulesCount
}

// RuleTexts returns the sorted texts of the rules the engine was compiled
// from.
func (e *Engine) RuleTexts() (texts []string) {
	return slices.Clone(e.texts)
}

// CheckURL is a helper that builds the request and checks it.
func (e *Engine) CheckURL(url, sourceURL string, typ rules.RequestType) (res MatchResult) {
	return e.Check(rules.NewRequest(url, sourceURL, typ))
}

// candidates are the best matching rules of each result category.
type candidates struct {
	importantException *rules.NetworkRule
	exception          *rules.NetworkRule

	// important are the $important rules, they override exceptions.
	important tier

	// regular are the rules without $important.
	regular tier

	// rewriteAllowed is false if an exception disables $removeparam rules.
	rewriteAllowed bool

	// importantRewriteAllowed is false if an important exception disables
	// $removeparam rules.
	importantRewriteAllowed bool
}

// tier are the best matching non-exception rules of the same importance.
type tier struct {
	redirect     *rules.NetworkRule
	redirectRule *rules.NetworkRule
	rewrite      *rules.NetworkRule
	block        rules.Rule
}

// Check evaluates req against the engine.  Precedence of the categories, from
// the highest to the lowest: an important exception, an important redirect,
// rewrite or block, an exception, a redirect, a rewrite, a block.  req must
// not be nil.
func (e *Engine) Check(req *rules.Request) (res MatchResult) {
	c := &candidates{
		rewriteAllowed:          true,
		importantRewriteAllowed: true,
	}
	for _, table := range e.lookupTables {
		for _, r := range table.MatchAll(req) {
			c.add(r)
		}
	}

	if hr := e.hosts.Match(req.Hostname); hr != nil {
		c.regular.block = pickRule(c.regular.block, hr)
	}

	return c.result(req)
}

// add puts r into its category.
func (c *candidates) add(r *rules.NetworkRule) {
	switch {
	case r.Whitelist && r.IsOptionEnabled(rules.OptionRemoveParam):
		c.rewriteAllowed = false
		c.importantRewriteAllowed = c.importantRewriteAllowed && !r.IsImportant()
	case r.Whitelist && r.IsImportant():
		c.importantException = pick(c.importantException, r)
	case r.Whitelist:
		c.exception = pick(c.exception, r)
	case r.IsImportant():
		c.important.add(r)
	default:
		c.regular.add(r)
	}
}

// result returns the match result of the highest category.
func (c *candidates) result(req *rules.Request) (res MatchResult) {
	if c.importantException != nil {
		return &Exception{Rule: c.importantException}
	}

	// An exception cancels the regular block for the important
	// $redirect-rule as well.
	blocked := c.important.block != nil || (c.regular.block != nil && c.exception == nil)
	res = c.important.result(req, blocked, c.importantRewriteAllowed, true)
	if res != nil {
		return res
	}

	if c.exception != nil {
		return &Exception{Rule: c.exception}
	}

	res = c.regular.result(req, c.regular.block != nil, c.rewriteAllowed, false)
	if res != nil {
		return res
	}

	return NoMatch{}
}

// add puts the non-exception rule r into its category.
func (t *tier) add(r *rules.NetworkRule) {
	switch {
	case r.IsRedirect() && r.IsOptionEnabled(rules.OptionRedirectRule):
		t.redirectRule = pick(t.redirectRule, r)
	case r.IsRedirect():
		t.redirect = pick(t.redirect, r)
	case r.IsRewrite():
		t.rewrite = pick(t.rewrite, r)
	default:
		t.block = pickRule(t.block, r)
	}
}

// result returns the match result of the highest category of t or nil if t
// has no matching rules.  blocked tells if the request is blocked by some
// rule, which enables $redirect-rule.
func (t *tier) result(
	req *rules.Request,
	blocked bool,
	rewriteAllowed bool,
	important bool,
) (res MatchResult) {
	switch {
	case t.redirect != nil:
		return &Redirect{Rule: t.redirect, Target: t.redirect.RedirectTarget()}
	case t.redirectRule != nil && blocked:
		return &Redirect{Rule: t.redirectRule, Target: t.redirectRule.RedirectTarget()}
	case t.rewrite != nil && rewriteAllowed:
		u, _ := t.rewrite.RewriteURL(req.URL)

		return &Rewrite{Rule: t.rewrite, URL: u}
	case t.block != nil:
		return &Block{Rule: t.block, Important: important}
	default:
		return nil
	}
}

// pick returns the one of cur and r with the lesser rule text, so that the
// result doesn't depend on the order of the lookup.  cur may be nil.
func pick(cur, r *rules.NetworkRule) (res *rules.NetworkRule) {
	if cur == nil || r.RuleText < cur.RuleText {
		return r
	}

	return cur
}

// pickRule is the [pick] for rules of any type.
func pickRule(cur, r rules.Rule) (res rules.Rule) {
	if cur == nil || r.Text() < cur.Text() {
		return r
	}

	return cur
}
