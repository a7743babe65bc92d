package form

import (
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

const ContentTypeMultipart = "multipart/form-data"

// BoundaryOf reports the boundary of a multipart/form-data content type.
func BoundaryOf(contentType string) (string, bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.EqualFold(mediaType, ContentTypeMultipart) {
		return "", false
	}

	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return "", false
	}

	return boundary, true
}

// ParseMultipart maps every part name to its content. Parsing stops at
// the first malformed or truncated part; parts read before it are kept.
func ParseMultipart(body, boundary string) *Params {
	p := NewParams()
	if boundary == "" {
		return p
	}

	mr := multipart.NewReader(strings.NewReader(body), boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF on the closing delimiter, anything else is a broken body.
			return p
		}

		value, err := io.ReadAll(part)
		if err != nil {
			return p
		}

		if name := part.FormName(); name != "" {
			p.Set(name, string(value))
		}
	}
}
