package reqfilter

import "github.com/abrw/reqfilter/rules"

// Verdict is the category of a [MatchResult].
type Verdict string

// Verdict values.
const (
	VerdictNoMatch   Verdict = "no_match"
	VerdictBlock     Verdict = "block"
	VerdictRedirect  Verdict = "redirect"
	VerdictRewrite   Verdict = "rewrite"
	VerdictException Verdict = "exception"
)

// MatchResult is the outcome of checking one request.  It is one of
// [NoMatch], [*Block], [*Redirect], [*Rewrite] or [*Exception].
type MatchResult interface {
	// Verdict returns the category of the result.
	Verdict() (v Verdict)

	// RuleText returns the text of the rule which produced the result.  It
	// is empty for [NoMatch].
	RuleText() (text string)

	// isMatchResult prevents other implementations.
	isMatchResult()
}

// type check
var (
	_ MatchResult = NoMatch{}
	_ MatchResult = (*Block)(nil)
	_ MatchResult = (*Redirect)(nil)
	_ MatchResult = (*Rewrite)(nil)
	_ MatchResult = (*Exception)(nil)
)

// NoMatch means that no rule matches the request.
type NoMatch struct{}

// Verdict implements the [MatchResult] interface for NoMatch.
func (NoMatch) Verdict() (v Verdict) { return VerdictNoMatch }

// RuleText implements the [MatchResult] interface for NoMatch.
func (NoMatch) RuleText() (text string) { return "" }

// isMatchResult implements the [MatchResult] interface for NoMatch.
func (NoMatch) isMatchResult() {}

// Block means that the request must not be loaded.
type Block struct {
	// Rule is the blocking rule, a [*rules.NetworkRule] or a
	// [*rules.HostRule].
	Rule rules.Rule

	// Important is true if the rule overrides the exceptions.
	Important bool
}

// Verdict implements the [MatchResult] interface for *Block.
func (b *Block) Verdict() (v Verdict) { return VerdictBlock }

// RuleText implements the [MatchResult] interface for *Block.
func (b *Block) RuleText() (text string) { return b.Rule.Text() }

// isMatchResult implements the [MatchResult] interface for *Block.
func (b *Block) isMatchResult() {}

// Redirect means that the request must be replaced with the resource named by
// Target.
type Redirect struct {
	// Rule is the $redirect rule.
	Rule *rules.NetworkRule

	// Target is the redirect resource, see [rules.RedirectScheme].
	Target string
}

// Verdict implements the [MatchResult] interface for *Redirect.
func (r *Redirect) Verdict() (v Verdict) { return VerdictRedirect }

// RuleText implements the [MatchResult] interface for *Redirect.
func (r *Redirect) RuleText() (text string) { return r.Rule.Text() }

// isMatchResult implements the [MatchResult] interface for *Redirect.
func (r *Redirect) isMatchResult() {}

// Rewrite means that the request must be replaced with the request to URL.
type Rewrite struct {
	// Rule is the $removeparam rule.
	Rule *rules.NetworkRule

	// URL is the rewritten URL.
	URL string
}

// Verdict implements the [MatchResult] interface for *Rewrite.
func (r *Rewrite) Verdict() (v Verdict) { return VerdictRewrite }

// RuleText implements the [MatchResult] interface for *Rewrite.
func (r *Rewrite) RuleText() (text string) { return r.Rule.Text() }

// isMatchResult implements the [MatchResult] interface for *Rewrite.
func (r *Rewrite) isMatchResult() {}

// Exception means that an exception rule allows the request.
type Exception struct {
	// Rule is the exception rule.
	Rule *rules.NetworkRule
}

// Verdict implements the [MatchResult] interface for *Exception.
func (e *Exception) Verdict() (v Verdict) { return VerdictException }

// RuleText implements the [MatchResult] interface for *Exception.
func (e *Exception) RuleText() (text string) { return e.Rule.Text() }

// isMatchResult implements the [MatchResult] interface for *Exception.
func (e *Exception) isMatchResult() {}

// ShouldStop returns true if the load of the request must be stopped.
// Redirects and rewrites can't be followed at the network level, so they stop
// the load as well.
func ShouldStop(res MatchResult) (ok bool) {
	switch res.(type) {
	case *Block, *Redirect, *Rewrite:
		return true
	default:
		return false
	}
}
