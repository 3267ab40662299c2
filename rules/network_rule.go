package rules

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
)

const (
	maskWhiteList    = "@@"
	maskRegexRule    = "/"
	optionsDelimiter = '$'
	escapeCharacter  = '\\'
)

// RedirectScheme is the scheme of the targets of $redirect rules.  Redirect
// resources are not resolvable at the network level, the target only names
// the resource for the host engine.
const RedirectScheme = "reqfilter-resource:"

var reEscapedOptionsDelimiter = regexp.MustCompile(regexp.QuoteMeta(`\$`))

// NetworkRuleOption is the enumeration of various rule options.  In order to
// save memory, we store some options as a flag.
type NetworkRuleOption uint32

// NetworkRuleOption enumeration
const (
	OptionThirdParty   NetworkRuleOption = 1 << iota // $third-party modifier
	OptionMatchCase                                  // $match-case modifier
	OptionImportant                                  // $important modifier
	OptionBadfilter                                  // $badfilter modifier
	OptionRedirect                                   // $redirect modifier
	OptionRedirectRule                               // $redirect-rule modifier
	OptionRemoveParam                                // $removeparam modifier
	OptionPopup                                      // $popup modifier

	// Blacklist-only options
	OptionBlacklistOnly = OptionPopup | OptionRedirect | OptionRedirectRule
)

// Count returns the count of enabled options.
func (o NetworkRuleOption) Count() (n int) {
	return RequestType(o).Count()
}

// unsupportedOptions are the modifiers of the rules which only make sense for
// cosmetic filtering or response modification.
var unsupportedOptions = map[string]struct{}{
	"elemhide":      {},
	"ehide":         {},
	"generichide":   {},
	"ghide":         {},
	"specifichide":  {},
	"shide":         {},
	"jsinject":      {},
	"content":       {},
	"extension":     {},
	"stealth":       {},
	"genericblock":  {},
	"urlblock":      {},
	"csp":           {},
	"cookie":        {},
	"replace":       {},
	"header":        {},
	"permissions":   {},
	"hls":           {},
	"jsonprune":     {},
	"urltransform":  {},
	"inline-font":   {},
	"inline-script": {},
}

// NetworkRule is a basic filtering rule.  It is immutable once parsed, the
// regular expression of the pattern is compiled on the first use.
//
// See https://adguard.com/kb/general/ad-filtering/create-own-filters/#basic-rules.
type NetworkRule struct {
	// regex returns the regular expression compiled from the pattern.  A nil
	// expression with nil error means that the pattern matches any URL.
	regex func() (re *regexp.Regexp, err error)

	// RuleText is the original rule text.
	RuleText string

	// Shortcut is the longest substring of the rule pattern with no special
	// characters in lower case.
	Shortcut string

	// pattern is the basic rule pattern ready to be compiled to regex.
	pattern string

	// redirect is the name of the $redirect resource.
	redirect string

	// removeParam is the name of the query parameter to remove.  An empty
	// value with OptionRemoveParam set means removing the whole query.
	removeParam string

	// permittedDomains is a list of permitted domains from the $domain
	// modifier.
	permittedDomains []string

	// restrictedDomains is a list of restricted domains from the $domain
	// modifier.
	restrictedDomains []string

	// denyAllowDomains is a list of excluded domains from the $denyallow
	// modifier.
	denyAllowDomains []string

	// FilterListID is the filter list identifier.
	FilterListID int

	// enabledOptions is the flag with all enabled rule options.
	enabledOptions NetworkRuleOption

	// disabledOptions is the flag with all disabled rule options.
	disabledOptions NetworkRuleOption

	// permittedRequestTypes is the flag with all permitted request types.  0
	// means all.
	permittedRequestTypes RequestType

	// restrictedRequestTypes is the flag with all restricted request types.
	// 0 means none.
	restrictedRequestTypes RequestType

	// Whitelist is true if this is an exception rule.
	Whitelist bool
}

// type check
var _ Rule = (*NetworkRule)(nil)

// NewNetworkRule parses the rule text and returns a filter rule.
func NewNetworkRule(ruleText string, filterListID int) (r *NetworkRule, err error) {
	pattern, options, whitelist, err := parseRuleText(ruleText)
	if err != nil {
		return nil, err
	}

	r = &NetworkRule{
		RuleText:     ruleText,
		Whitelist:    whitelist,
		FilterListID: filterListID,
		pattern:      pattern,
	}

	err = r.loadOptions(options)
	if err != nil {
		return nil, err
	}

	// example.org/* -> example.org^
	if strings.HasSuffix(r.pattern, "/*") {
		r.pattern = r.pattern[:len(r.pattern)-len("/*")] + MaskSeparator
	}

	if r.isTooWide() {
		return nil, ErrTooWideRule
	}

	r.loadShortcut()
	r.regex = sync.OnceValues(r.compilePattern)

	return r, nil
}

// isTooWide returns true if the rule pattern matches too much and the rule
// does not have any restrictions.
func (f *NetworkRule) isTooWide() (ok bool) {
	p := f.pattern
	if p != MaskStartURL && p != MaskPipe && p != MaskAnyCharacter && p != "" && len(p) >= 3 {
		return false
	}

	return len(f.permittedDomains) == 0 &&
		len(f.denyAllowDomains) == 0 &&
		f.permittedRequestTypes == 0 &&
		!f.IsOptionEnabled(OptionRemoveParam)
}

// Text implements the [Rule] interface for *NetworkRule.
func (f *NetworkRule) Text() (s string) {
	return f.RuleText
}

// GetFilterListID implements the [Rule] interface for *NetworkRule.
func (f *NetworkRule) GetFilterListID() (id int) {
	return f.FilterListID
}

// String returns original rule text.
func (f *NetworkRule) String() (s string) {
	return f.RuleText
}

// Match checks if this filtering rule matches the specified request.
func (f *NetworkRule) Match(r *Request) (ok bool) {
	switch {
	case
		!f.matchShortcut(r),
		f.IsOptionEnabled(OptionThirdParty) && !r.ThirdParty,
		f.IsOptionDisabled(OptionThirdParty) && r.ThirdParty,
		!f.matchRequestType(r.RequestType),
		!f.matchRequestDomain(r.Hostname),
		!f.matchSourceDomain(r.SourceHostname),
		!f.matchRemoveParam(r),
		!f.matchPattern(r):
		return false
	}

	return true
}

// IsOptionEnabled returns true if the specified option is enabled.
func (f *NetworkRule) IsOptionEnabled(option NetworkRuleOption) (ok bool) {
	return (f.enabledOptions & option) == option
}

// IsOptionDisabled returns true if the specified option is disabled.
func (f *NetworkRule) IsOptionDisabled(option NetworkRuleOption) (ok bool) {
	return (f.disabledOptions & option) == option
}

// IsImportant returns true if the rule has the $important modifier.
func (f *NetworkRule) IsImportant() (ok bool) {
	return f.IsOptionEnabled(OptionImportant)
}

// IsRedirect returns true if the rule is a $redirect or $redirect-rule rule.
func (f *NetworkRule) IsRedirect() (ok bool) {
	return f.redirect != "" && !f.Whitelist
}

// IsRewrite returns true if the rule modifies the request URL instead of
// blocking it.
func (f *NetworkRule) IsRewrite() (ok bool) {
	return f.IsOptionEnabled(OptionRemoveParam) && !f.Whitelist
}

// IsBadfilter returns true if the rule disables other rules instead of
// matching requests.
func (f *NetworkRule) IsBadfilter() (ok bool) {
	return f.IsOptionEnabled(OptionBadfilter)
}

// RedirectTarget returns the target of a $redirect rule or an empty string.
func (f *NetworkRule) RedirectTarget() (target string) {
	if f.redirect == "" {
		return ""
	}

	return RedirectScheme + f.redirect
}

// GetPermittedDomains returns the domains this rule is allowed on.
func (f *NetworkRule) GetPermittedDomains() (domains []string) {
	return f.permittedDomains
}

// IsRegexRule returns true if rule's pattern is a regular expression.
func (f *NetworkRule) IsRegexRule() (ok bool) {
	return len(f.pattern) > 1 &&
		strings.HasPrefix(f.pattern, maskRegexRule) &&
		strings.HasSuffix(f.pattern, maskRegexRule)
}

// IsGeneric returns true if the rule is considered "generic", which means
// that the rule is not restricted to a limited set of domains.  Please note
// that it might be forbidden on some domains, though.
func (f *NetworkRule) IsGeneric() (ok bool) {
	return len(f.permittedDomains) == 0
}

// HostnameAnchor returns the hostname if the rule is a plain "||hostname^"
// rule without any modifiers affecting the match.  Such rules match all the
// requests to the hostname and its subdomains.
func (f *NetworkRule) HostnameAnchor() (host string, ok bool) {
	if f.enabledOptions&^OptionImportant != 0 ||
		f.disabledOptions != 0 ||
		f.permittedRequestTypes != 0 ||
		f.restrictedRequestTypes != 0 ||
		len(f.permittedDomains) != 0 ||
		len(f.restrictedDomains) != 0 ||
		len(f.denyAllowDomains) != 0 {
		return "", false
	}

	host, ok = hostnameFromAnchor(f.pattern)

	return host, ok
}

// hostnameFromAnchor returns the hostname from a "||hostname^" pattern.
// Without the trailing separator the pattern may match a prefix of a longer
// hostname, so it isn't a hostname anchor.
func hostnameFromAnchor(pattern string) (host string, ok bool) {
	if !strings.HasPrefix(pattern, MaskStartURL) {
		return "", false
	}

	host = strings.TrimPrefix(pattern, MaskStartURL)
	host, ok = strings.CutSuffix(host, MaskSeparator)
	if !ok || host == "" || strings.ContainsAny(host, "*^|/:?#=&") || strings.HasSuffix(host, ".") {
		return "", false
	}

	return strings.ToLower(host), true
}

// negatesBadfilter only makes sense when the "f" rule has a $badfilter
// modifier.  It returns true if the "f" rule negates the specified "r" rule.
func (f *NetworkRule) negatesBadfilter(r *NetworkRule) (ok bool) {
	switch {
	case
		!f.IsOptionEnabled(OptionBadfilter),
		f.Whitelist != r.Whitelist,
		f.pattern != r.pattern,
		f.permittedRequestTypes != r.permittedRequestTypes,
		f.restrictedRequestTypes != r.restrictedRequestTypes,
		(f.enabledOptions ^ OptionBadfilter) != r.enabledOptions,
		f.disabledOptions != r.disabledOptions,
		f.redirect != r.redirect,
		f.removeParam != r.removeParam,
		!slices.Equal(f.permittedDomains, r.permittedDomains),
		!slices.Equal(f.restrictedDomains, r.restrictedDomains),
		!slices.Equal(f.denyAllowDomains, r.denyAllowDomains):
		return false
	}

	return true
}

// Negates returns true if f is a $badfilter rule that disables r.
func (f *NetworkRule) Negates(r *NetworkRule) (ok bool) {
	return f.negatesBadfilter(r)
}

// compilePattern compiles the regular expression of the rule pattern.
func (f *NetworkRule) compilePattern() (re *regexp.Regexp, err error) {
	pattern := patternToRegexp(f.pattern)
	if pattern == RegexAnyCharacter || pattern == "" {
		return nil, nil
	}

	if !f.IsOptionEnabled(OptionMatchCase) {
		pattern = "(?i)" + pattern
	}

	return regexp.Compile(pattern)
}

// matchPattern matches the request URL against the rule pattern.  Plain
// hostname anchors and patterns without special characters are matched
// without the regular expression.
func (f *NetworkRule) matchPattern(r *Request) (ok bool) {
	if host, isAnchor := hostnameFromAnchor(f.pattern); isAnchor {
		return r.Hostname == host || strings.HasSuffix(r.Hostname, "."+host)
	}

	if f.isPlainPattern() {
		if f.IsOptionEnabled(OptionMatchCase) {
			return strings.Contains(r.URL, f.pattern)
		}

		return strings.Contains(r.URLLowerCase, strings.ToLower(f.pattern))
	}

	re, err := f.regex()
	if err != nil {
		// Rules with invalid regular expressions never match.
		return false
	} else if re == nil {
		return true
	}

	return re.MatchString(r.URL)
}

// isPlainPattern returns true if the pattern has no special characters and
// could be matched as a substring.
func (f *NetworkRule) isPlainPattern() (ok bool) {
	return f.pattern != "" && !f.IsRegexRule() && !strings.ContainsAny(f.pattern, "*^|")
}

// matchShortcut simply checks if shortcut is a substring of the URL.
func (f *NetworkRule) matchShortcut(r *Request) (ok bool) {
	return strings.Contains(r.URLLowerCase, f.Shortcut)
}

// matchRequestDomain checks if the filtering rule is allowed to match this
// request hostname, e.g. it checks it against the $denyallow modifier.  The
// rule works if the request hostname **does not** belong to $denyallow
// domains.
func (f *NetworkRule) matchRequestDomain(hostname string) (ok bool) {
	if len(f.denyAllowDomains) == 0 {
		return true
	}

	return !isDomainOrSubdomainOfAny(hostname, f.denyAllowDomains)
}

// matchSourceDomain checks if the specified filtering rule is allowed on this
// domain e.g. it checks the domain against what's specified in the $domain
// modifier.
func (f *NetworkRule) matchSourceDomain(domain string) (ok bool) {
	if len(f.restrictedDomains) > 0 && isDomainOrSubdomainOfAny(domain, f.restrictedDomains) {
		// Domain or host is restricted, i.e. $domain=~example.org.
		return false
	}

	if len(f.permittedDomains) > 0 && !isDomainOrSubdomainOfAny(domain, f.permittedDomains) {
		// Domain is not among permitted, i.e. $domain=example.org and we're
		// checking example.com.
		return false
	}

	return true
}

// matchRemoveParam returns true if the rule is not a $removeparam rule or if
// the request URL has the parameter to remove.
func (f *NetworkRule) matchRemoveParam(r *Request) (ok bool) {
	if !f.IsOptionEnabled(OptionRemoveParam) {
		return true
	}

	_, changed := f.RewriteURL(r.URL)

	return changed
}

// RewriteURL returns the URL with the query parameter of a $removeparam rule
// removed.  changed is false if the rule wouldn't modify rawURL.
func (f *NetworkRule) RewriteURL(rawURL string) (rewritten string, changed bool) {
	if !f.IsOptionEnabled(OptionRemoveParam) {
		return rawURL, false
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL, false
	}

	if f.removeParam == "" {
		u.RawQuery = ""

		return u.String(), true
	}

	q := u.Query()
	if !q.Has(f.removeParam) {
		return rawURL, false
	}

	q.Del(f.removeParam)
	u.RawQuery = q.Encode()

	return u.String(), true
}

// matchRequestType checks if the specified request type matches the rule
// properties.
func (f *NetworkRule) matchRequestType(requestType RequestType) (ok bool) {
	if f.permittedRequestTypes != 0 && (f.permittedRequestTypes&requestType) != requestType {
		return false
	}

	if f.restrictedRequestTypes != 0 && (f.restrictedRequestTypes&requestType) == requestType {
		return false
	}

	return true
}

// setRequestType permits or forbids the specified request type.
func (f *NetworkRule) setRequestType(requestType RequestType, permitted bool) {
	if permitted {
		f.permittedRequestTypes |= requestType
	} else {
		f.restrictedRequestTypes |= requestType
	}
}

// setOptionEnabled enables or disables the specified option.  It returns an
// error if this option cannot be used with this type of rules.
func (f *NetworkRule) setOptionEnabled(option NetworkRuleOption, enabled bool) (err error) {
	if f.Whitelist && (option&OptionBlacklistOnly) == option {
		return newSyntaxError(f.RuleText, "modifier cannot be used in an exception rule")
	}

	if enabled {
		f.enabledOptions |= option
	} else {
		f.disabledOptions |= option
	}

	return nil
}

// loadOptions loads all the filtering rule options.
func (f *NetworkRule) loadOptions(options string) (err error) {
	if options == "" {
		return nil
	}

	for _, option := range splitWithEscapeCharacter(options, ',', escapeCharacter, false) {
		name, value, _ := strings.Cut(option, "=")

		err = f.loadOption(strings.TrimSpace(name), value)
		if err != nil {
			return err
		}
	}

	if f.IsOptionEnabled(OptionPopup) {
		f.permittedRequestTypes = TypeDocument
	}

	return nil
}

// loadOption loads specified option with its value (optional).
//
//nolint:gocyclo
func (f *NetworkRule) loadOption(name, value string) (err error) {
	if _, ok := unsupportedOptions[strings.TrimPrefix(name, "~")]; ok {
		return ErrUnsupportedRule
	}

	switch name {
	case "third-party", "3p", "~first-party", "~1p":
		return f.setOptionEnabled(OptionThirdParty, true)
	case "~third-party", "~3p", "first-party", "1p":
		return f.setOptionEnabled(OptionThirdParty, false)
	case "match-case":
		return f.setOptionEnabled(OptionMatchCase, true)
	case "~match-case":
		return f.setOptionEnabled(OptionMatchCase, false)
	case "important":
		return f.setOptionEnabled(OptionImportant, true)
	case "badfilter":
		return f.setOptionEnabled(OptionBadfilter, true)
	case "popup":
		return f.setOptionEnabled(OptionPopup, true)
	case "all":
		return nil
	case "domain", "from":
		f.permittedDomains, f.restrictedDomains, err = loadDomains(value, "|")

		return err
	case "denyallow":
		return f.loadDenyAllow(value)
	case "redirect", "redirect-rule":
		return f.loadRedirect(name, value)
	case "rewrite":
		resource, ok := strings.CutPrefix(value, "abp-resource:")
		if !ok || resource == "" {
			return newSyntaxError(f.RuleText, "invalid $rewrite value %q", value)
		}

		return f.loadRedirect("redirect", resource)
	case "removeparam", "queryprune":
		if strings.HasPrefix(value, "/") || strings.HasPrefix(value, "~") {
			// Regular expression and inverted parameters are not supported.
			return ErrUnsupportedRule
		}

		f.removeParam = value

		return f.setOptionEnabled(OptionRemoveParam, true)
	}

	negated := strings.HasPrefix(name, "~")
	if t, ok := requestTypeNames[strings.TrimPrefix(name, "~")]; ok {
		f.setRequestType(t, !negated)

		return nil
	}

	return newSyntaxError(f.RuleText, "unknown filter modifier: %s=%s", name, value)
}

// loadDenyAllow loads the value of the $denyallow modifier.
func (f *NetworkRule) loadDenyAllow(value string) (err error) {
	permitted, restricted, err := loadDomains(value, "|")
	if err != nil {
		return err
	}

	if len(restricted) > 0 || len(permitted) == 0 {
		return newSyntaxError(f.RuleText, "invalid $denyallow value: %s", value)
	}

	f.denyAllowDomains = permitted

	return nil
}

// loadRedirect loads the value of the $redirect and $redirect-rule modifiers.
// Priority suffixes, like in "noopjs:10", are dropped.
func (f *NetworkRule) loadRedirect(name, value string) (err error) {
	if f.Whitelist {
		// Exceptions for redirects disable the redirect, for us they are
		// ordinary exceptions.
		return nil
	}

	resource, _, _ := strings.Cut(value, ":")
	if resource == "" {
		return newSyntaxError(f.RuleText, "empty $%s value", name)
	}

	f.redirect = resource
	if name == "redirect-rule" {
		return f.setOptionEnabled(OptionRedirectRule, true)
	}

	return f.setOptionEnabled(OptionRedirect, true)
}

// loadShortcut extracts a shortcut from the pattern.  Shortcut is the longest
// substring of the pattern that does not contain any special characters.
func (f *NetworkRule) loadShortcut() {
	var shortcut string
	if f.IsRegexRule() {
		shortcut = findRegexpShortcut(f.pattern)
	} else {
		shortcut = findShortcut(f.pattern)
	}

	// Shortcut needs to be at least longer than 1 character.
	if len(shortcut) > 1 {
		f.Shortcut = strings.ToLower(shortcut)
	}
}

// findShortcut searches for the longest substring of the pattern that does not
// contain any of the special characters which are:
//
//	*
//	^
//	|
func findShortcut(pattern string) (shortcut string) {
	for pattern != "" {
		i := strings.IndexAny(pattern, "*^|")
		if i == -1 {
			if len(pattern) > len(shortcut) {
				return pattern
			}

			break
		}

		if i > len(shortcut) {
			shortcut = pattern[:i]
		}
		pattern = pattern[i+1:]
	}

	return shortcut
}

// regexpSpecials are the special characters of regular expressions.
const regexpSpecials = `\^$*+?.()|[]{}`

// findRegexpShortcut searches for a shortcut inside of a regexp pattern.
// Shortcut in this case is the longest string with no special characters.
// Expressions with groups, classes, escapes or quantifiers that may make a
// part optional are discarded right away.
func findRegexpShortcut(pattern string) (shortcut string) {
	pattern = pattern[1 : len(pattern)-1]
	if strings.ContainsAny(pattern, `?\|([{`) {
		return ""
	}

	for _, part := range strings.FieldsFunc(pattern, func(r rune) bool {
		return strings.ContainsRune(regexpSpecials, r)
	}) {
		if len(part) > len(shortcut) {
			shortcut = part
		}
	}

	// The character before "*" or "+" is optional or repeated.
	if i := strings.Index(pattern, shortcut); i >= 0 {
		end := i + len(shortcut)
		if end < len(pattern) && (pattern[end] == '*' || pattern[end] == '+') {
			shortcut = shortcut[:len(shortcut)-1]
		}
	}

	return shortcut
}

// parseRuleText splits the rule text in multiple parts:
//
//   - pattern is a basic rule pattern, which can be easily converted into a
//     regex;
//   - options is a string with all rule options;
//   - whitelist indicates if rule is an exception, e.g. it should unblock
//     requests, not block them.
func parseRuleText(ruleText string) (pattern, options string, whitelist bool, err error) {
	startIndex := 0
	if strings.HasPrefix(ruleText, maskWhiteList) {
		whitelist = true
		startIndex = len(maskWhiteList)
	}

	if len(ruleText) <= startIndex {
		return "", "", false, newSyntaxError(ruleText, "the rule is too short")
	}

	// Setting pattern to rule text for the case of empty options.
	pattern = ruleText[startIndex:]

	// Avoid parsing options inside of a regex rule.
	if strings.HasPrefix(pattern, maskRegexRule) && strings.HasSuffix(pattern, maskRegexRule) {
		return pattern, "", whitelist, nil
	}

	foundEscaped := false
	for i := len(ruleText) - 2; i >= startIndex; i-- {
		if ruleText[i] != optionsDelimiter {
			continue
		}

		if i > startIndex && ruleText[i-1] == escapeCharacter {
			foundEscaped = true

			continue
		}

		pattern = ruleText[startIndex:i]
		options = ruleText[i+1:]

		if foundEscaped {
			options = reEscapedOptionsDelimiter.ReplaceAllString(options, string(optionsDelimiter))
		}

		break
	}

	return pattern, options, whitelist, nil
}
