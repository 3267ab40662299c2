package rules

import "strings"

// Special characters of the basic rule pattern syntax.
const (
	// MaskStartURL matches the beginning of the hostname, which means any
	// scheme followed by any number of subdomains.
	MaskStartURL = "||"

	// MaskPipe is the anchor of the beginning or the end of the URL.
	MaskPipe = "|"

	// MaskSeparator matches a separator character or the end of the URL.  A
	// separator is anything but a letter, a digit, or one of "_-.%".
	MaskSeparator = "^"

	// MaskAnyCharacter is a wildcard matching any set of characters.
	MaskAnyCharacter = "*"
)

// Regular expressions the pattern masks are converted to.
const (
	RegexStartURL     = `^[a-z][a-z0-9+.-]*://([^/?#@]*@)?([a-z0-9_-]+\.)*`
	RegexAnyCharacter = ".*"
	RegexSeparator    = `([^ a-zA-Z0-9.%_-]|$)`
	RegexStartString  = "^"
	RegexEndString    = "$"
)

// regexSpecials are the characters that must be escaped when the basic pattern
// is converted to a regular expression.  Pattern masks are handled separately.
const regexSpecials = `.+?${}()[]/\`

// patternToRegexp converts a basic rule pattern into a regular expression.
// Regexp rules ("/.../") are returned without the slashes.  An empty string
// means that the pattern matches any URL.
func patternToRegexp(pattern string) (re string) {
	switch pattern {
	case MaskStartURL, MaskAnyCharacter, MaskPipe, "":
		return RegexAnyCharacter
	}

	if len(pattern) >= 2 && pattern[0] == '/' && pattern[len(pattern)-1] == '/' {
		return pattern[1 : len(pattern)-1]
	}

	var sb strings.Builder
	sb.Grow(len(pattern) * 2)

	rest := pattern
	switch {
	case strings.HasPrefix(rest, MaskStartURL):
		sb.WriteString(RegexStartURL)
		rest = rest[len(MaskStartURL):]
	case strings.HasPrefix(rest, MaskPipe):
		sb.WriteString(RegexStartString)
		rest = rest[len(MaskPipe):]
	}

	endAnchor := false
	if strings.HasSuffix(rest, MaskPipe) && !strings.HasSuffix(rest, `\|`) {
		endAnchor = true
		rest = rest[:len(rest)-len(MaskPipe)]
	}

	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case c == '*':
			sb.WriteString(RegexAnyCharacter)
		case c == '^':
			sb.WriteString(RegexSeparator)
		case c == '|':
			sb.WriteString(`\|`)
		case strings.IndexByte(regexSpecials, c) != -1:
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}

	if endAnchor {
		sb.WriteString(RegexEndString)
	}

	return sb.String()
}
