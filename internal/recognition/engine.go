package recognition

import (
	"context"
	"io"
	"strings"
)

// Image is a base64 payload with the data-URI prefix removed
type Image struct {
	Data     string
	MIMEType string
}

// DataURI rebuilds the data URI form some providers expect
func (img Image) DataURI() string {
	return "data:" + img.MIMEType + ";base64," + img.Data
}

// Engine performs one recognition call against a provider.
// Every provider-level problem is reported as a *Failure.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img Image) (string, error)
}

const defaultMIMEType = "image/png"

// parseImage strips a leading "data:<mime>;base64," prefix
func parseImage(raw string) Image {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		return Image{Data: raw, MIMEType: defaultMIMEType}
	}

	idx := strings.Index(raw, ";base64,")
	if idx == -1 {
		return Image{Data: raw, MIMEType: defaultMIMEType}
	}

	mime := raw[len("data:"):idx]
	if mime == "" {
		mime = defaultMIMEType
	}
	return Image{Data: raw[idx+len(";base64,"):], MIMEType: mime}
}

// readDetail: short excerpt of an error body for logs and key detection
func readDetail(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(body))
}
