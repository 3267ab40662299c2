package proxy

import "encoding/base64"

// resource is a stub served instead of a redirected request.
type resource struct {
	contentType string
	body        []byte
}

// transparentGIF is a 1x1 transparent GIF image.
const transparentGIF = "R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"

// redirectResources are the stub resources by their names in $redirect rules.
var redirectResources = map[string]*resource{
	"noopjs": {
		contentType: "application/javascript",
		body:        []byte("(function() {})();\n"),
	},
	"noopcss": {
		contentType: "text/css",
		body:        []byte{},
	},
	"nooptext": {
		contentType: "text/plain",
		body:        []byte{},
	},
	"noopframe": {
		contentType: "text/html; charset=utf-8",
		body:        []byte("<!DOCTYPE html><html><head></head><body></body></html>\n"),
	},
	"noopjson": {
		contentType: "application/json",
		body:        []byte("{}"),
	},
	"1x1-transparent.gif": {
		contentType: "image/gif",
		body:        mustDecodeBase64(transparentGIF),
	},
}

// mustDecodeBase64 decodes s and panics on errors.
func mustDecodeBase64(s string) (b []byte) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}

	return b
}
