package proxy

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/abrw/reqfilter/rules"
)

// assumeRequestType assumes the request type from what is known at this point.
// res is nil if the response headers haven't been received yet.
func assumeRequestType(req *http.Request, res *http.Response) (typ rules.RequestType) {
	if res != nil {
		mediaType, _, _ := mime.ParseMediaType(res.Header.Get(httphdr.ContentType))

		return typeFromMediaType(mediaType)
	}

	typ = typeFromFetchDest(req.Header.Get(secFetchDest))
	if typ != rules.TypeOther {
		return typ
	}

	typ = typeFromMediaType(req.Header.Get(httphdr.Accept))
	if typ != rules.TypeOther {
		return typ
	}

	return typeFromURL(req.URL)
}

// secFetchDest is the request header with the destination of the request set
// by the browsers.
const secFetchDest = "Sec-Fetch-Dest"

// fetchDests maps the values of the Sec-Fetch-Dest header to request types.
var fetchDests = map[string]rules.RequestType{
	"document":      rules.TypeDocument,
	"iframe":        rules.TypeSubdocument,
	"frame":         rules.TypeSubdocument,
	"script":        rules.TypeScript,
	"worker":        rules.TypeScript,
	"sharedworker":  rules.TypeScript,
	"serviceworker": rules.TypeScript,
	"style":         rules.TypeStylesheet,
	"image":         rules.TypeImage,
	"font":          rules.TypeFont,
	"audio":         rules.TypeMedia,
	"video":         rules.TypeMedia,
	"track":         rules.TypeMedia,
	"object":        rules.TypeObject,
	"embed":         rules.TypeObject,
}

// typeFromFetchDest returns the request type for the value of the
// Sec-Fetch-Dest header.
func typeFromFetchDest(dest string) (typ rules.RequestType) {
	if typ, ok := fetchDests[strings.ToLower(dest)]; ok {
		return typ
	}

	return rules.TypeOther
}

// mediaTypePrefix is a prefix of media types of a request type.
type mediaTypePrefix struct {
	prefix string
	typ    rules.RequestType
}

// mediaTypePrefixes are checked in order, so that in an Accept header of a
// document "text/html" wins over "image/webp".
var mediaTypePrefixes = []mediaTypePrefix{
	{prefix: "text/html", typ: rules.TypeDocument},
	{prefix: "application/xhtml", typ: rules.TypeDocument},
	{prefix: "text/css", typ: rules.TypeStylesheet},
	{prefix: "application/javascript", typ: rules.TypeScript},
	{prefix: "application/x-javascript", typ: rules.TypeScript},
	{prefix: "text/javascript", typ: rules.TypeScript},
	{prefix: "image/", typ: rules.TypeImage},
	{prefix: "application/x-shockwave-flash", typ: rules.TypeObject},
	{prefix: "application/font", typ: rules.TypeFont},
	{prefix: "application/vnd.ms-fontobject", typ: rules.TypeFont},
	{prefix: "application/x-font-", typ: rules.TypeFont},
	{prefix: "font/", typ: rules.TypeFont},
	{prefix: "audio/", typ: rules.TypeMedia},
	{prefix: "video/", typ: rules.TypeMedia},
	{prefix: "application/json", typ: rules.TypeXmlhttprequest},
}

// typeFromMediaType detects the request type from the media type or from the
// value of an Accept header.
func typeFromMediaType(mediaType string) (typ rules.RequestType) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	for _, p := range mediaTypePrefixes {
		if strings.HasPrefix(mediaType, p.prefix) {
			return p.typ
		}
	}

	return rules.TypeOther
}

// fileExtensions maps the file extensions to request types.
var fileExtensions = map[string]rules.RequestType{
	".js":    rules.TypeScript,
	".mjs":   rules.TypeScript,
	".vbs":   rules.TypeScript,
	".jpg":   rules.TypeImage,
	".jpeg":  rules.TypeImage,
	".gif":   rules.TypeImage,
	".png":   rules.TypeImage,
	".webp":  rules.TypeImage,
	".svg":   rules.TypeImage,
	".ico":   rules.TypeImage,
	".css":   rules.TypeStylesheet,
	".swf":   rules.TypeObject,
	".jar":   rules.TypeObject,
	".mp3":   rules.TypeMedia,
	".mp4":   rules.TypeMedia,
	".webm":  rules.TypeMedia,
	".ogg":   rules.TypeMedia,
	".m3u8":  rules.TypeMedia,
	".wav":   rules.TypeMedia,
	".ttf":   rules.TypeFont,
	".otf":   rules.TypeFont,
	".woff":  rules.TypeFont,
	".woff2": rules.TypeFont,
	".eot":   rules.TypeFont,
	".json":  rules.TypeXmlhttprequest,
}

// typeFromURL assumes the request type from the file extension.
func typeFromURL(u *url.URL) (typ rules.RequestType) {
	if typ, ok := fileExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
		return typ
	}

	return rules.TypeOther
}
