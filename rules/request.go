package rules

import (
	"math/bits"
	"strings"

	"github.com/abrw/reqfilter/internal/ufnet"
	"golang.org/x/net/publicsuffix"
)

// maxURLLength limits the URL length by 4 KiB.  It appears that there can be
// URLs longer than a megabyte, and it makes no sense to go through the whole
// URL.
const maxURLLength = 4 * 1024

// RequestType is the request types enumeration.
type RequestType uint32

const (
	// TypeDocument (main frame)
	TypeDocument RequestType = 1 << iota
	// TypeSubdocument (iframe) $subdocument
	TypeSubdocument
	// TypeScript (javascript, etc) $script
	TypeScript
	// TypeStylesheet (css) $stylesheet
	TypeStylesheet
	// TypeObject (flash, etc) $object
	TypeObject
	// TypeImage (any image) $image
	TypeImage
	// TypeXmlhttprequest (ajax/fetch) $xmlhttprequest
	TypeXmlhttprequest
	// TypeMedia (video/music) $media
	TypeMedia
	// TypeFont (any custom font) $font
	TypeFont
	// TypeWebsocket (a websocket connection) $websocket
	TypeWebsocket
	// TypePing (navigator.sendBeacon() or ping attribute on links) $ping
	TypePing
	// TypeOther - any other request type
	TypeOther

	// typeAll is the set of all request types.
	typeAll = TypeOther<<1 - 1
)

// Count returns the count of the enabled flags.
func (t RequestType) Count() (n int) {
	return bits.OnesCount32(uint32(t))
}

// requestTypeNames maps the modifier names and their aliases to request types.
var requestTypeNames = map[string]RequestType{
	"document":       TypeDocument,
	"doc":            TypeDocument,
	"subdocument":    TypeSubdocument,
	"frame":          TypeSubdocument,
	"script":         TypeScript,
	"stylesheet":     TypeStylesheet,
	"css":            TypeStylesheet,
	"object":         TypeObject,
	"image":          TypeImage,
	"xmlhttprequest": TypeXmlhttprequest,
	"xhr":            TypeXmlhttprequest,
	"fetch":          TypeXmlhttprequest,
	"media":          TypeMedia,
	"font":           TypeFont,
	"websocket":      TypeWebsocket,
	"ping":           TypePing,
	"beacon":         TypePing,
	"other":          TypeOther,
}

// RequestTypeFromString returns the request type for the name of a resource
// type as reported by the host engine or used in a rule modifier.  Empty and
// unknown names are considered [TypeOther].
func RequestTypeFromString(name string) (t RequestType) {
	t, ok := requestTypeNames[strings.ToLower(name)]
	if !ok {
		return TypeOther
	}

	return t
}

// Request represents a web filtering request with all its necessary
// properties.
type Request struct {
	// URL is the full request URL.
	URL string

	// URLLowerCase is the full request URL in lower case.
	URLLowerCase string

	// Hostname is the hostname to filter.
	Hostname string

	// Domain is the effective top-level domain of the request with an
	// additional label.
	Domain string

	// SourceURL is the full URL of the source.
	SourceURL string

	// SourceHostname is the hostname of the source, the originating domain
	// of the request.
	SourceHostname string

	// SourceDomain is the effective top-level domain of the source with an
	// additional label.
	SourceDomain string

	// RequestType is the type of the filtering request.
	RequestType RequestType

	// ThirdParty is true if the filtering request should consider
	// $third-party modifier.
	ThirdParty bool
}

// NewRequest creates a new instance of "Request" and populates its fields.
// sourceURL may be a full URL or just the originating hostname.
func NewRequest(url, sourceURL string, requestType RequestType) (r *Request) {
	if len(url) > maxURLLength {
		url = url[:maxURLLength]
	}
	if len(sourceURL) > maxURLLength {
		sourceURL = sourceURL[:maxURLLength]
	}

	r = &Request{
		RequestType: requestType,

		URL:          url,
		URLLowerCase: strings.ToLower(url),
		Hostname:     strings.ToLower(ufnet.ExtractHostname(url)),

		SourceURL:      sourceURL,
		SourceHostname: strings.ToLower(sourceHostname(sourceURL)),
	}

	r.Domain = domainOf(r.Hostname)
	r.SourceDomain = domainOf(r.SourceHostname)

	if r.SourceDomain != "" && r.SourceDomain != r.Domain {
		r.ThirdParty = true
	}

	return r
}

// sourceHostname returns the hostname of the source, which may be given as a
// plain hostname.
func sourceHostname(sourceURL string) (host string) {
	if sourceURL == "" {
		return ""
	}

	if !strings.Contains(sourceURL, "/") && !strings.Contains(sourceURL, ":") {
		return sourceURL
	}

	return ufnet.ExtractHostname(sourceURL)
}

// domainOf returns the eTLD+1 of hostname or hostname itself if it has none.
func domainOf(hostname string) (domain string) {
	if d := effectiveTLDPlusOne(hostname); d != "" {
		return d
	}

	return hostname
}

// effectiveTLDPlusOne is a faster version of publicsuffix.EffectiveTLDPlusOne
// that avoids using fmt.Errorf when the domain is less or equal the suffix.
func effectiveTLDPlusOne(hostname string) (domain string) {
	hostnameLen := len(hostname)
	if hostnameLen < 1 {
		return ""
	}

	if hostname[0] == '.' || hostname[hostnameLen-1] == '.' {
		return ""
	}

	suffix, _ := publicsuffix.PublicSuffix(hostname)

	i := hostnameLen - len(suffix) - 1
	if i < 0 || hostname[i] != '.' {
		return ""
	}

	return hostname[1+strings.LastIndex(hostname[:i], "."):]
}
