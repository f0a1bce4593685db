// Package media maps declared content types and filenames to the coarse
// kinds the capture pipeline branches on.
package media

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Kind is the closed set of media kinds.
type Kind string

const (
	KindHTML   Kind = "html"
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindBinary Kind = "binary"
	KindNone   Kind = "none"
)

// IsImage reports whether k is KindImage.
func (k Kind) IsImage() bool { return k == KindImage }

// KindFromContentType classifies a Content-Type header value. Parameters
// such as charset are ignored. An empty value yields KindNone.
func KindFromContentType(contentType string) Kind {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return KindNone
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}

	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return KindHTML
	case strings.HasPrefix(mediaType, "image/"):
		return KindImage
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/json",
		mediaType == "application/xml":
		return KindText
	}
	return KindBinary
}

// DetectContentType returns a content type for an uploaded file, preferring
// the filename extension and falling back to sniffing the bytes.
func DetectContentType(name string, data []byte) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}

// KindForUpload classifies an uploaded file by name and content.
func KindForUpload(name string, data []byte) Kind {
	k := KindFromContentType(DetectContentType(name, data))
	if k == KindNone {
		return KindBinary
	}
	return k
}
