package pagedata

import (
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
)

// isoLayout matches the millisecond precision ISO-8601 stamps the API consumers expect.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the JSON object returned by the content API. It is never nil; an
// empty Payload means the fetch failed or the API had nothing to say.
type Payload map[string]any

// PageContent is the typed view over the fields the renderer and metadata
// generator read. Nil pointers mean the field was absent, falsy or not a
// scalar.
type PageContent struct {
	Title       *string
	Description *string
	CSS         *string
	HTML        *string
	Markdown    *string
	Metadata    map[string]any
}

// Result is what one fetch produced. It is created per render and not shared.
type Result struct {
	Payload   Payload
	Endpoint  string
	FetchedAt time.Time
}

// MarshalJSON encodes the result in the shape the content API tooling prints.
func (r Result) MarshalJSON() ([]byte, error) {
	payload := r.Payload
	if payload == nil {
		payload = Payload{}
	}
	return json.Marshal(struct {
		Payload   Payload `json:"apiData"`
		Endpoint  string  `json:"endpoint"`
		Timestamp string  `json:"timestamp"`
	}{payload, r.Endpoint, r.FetchedAtISO()})
}

// FetchedAtISO formats the fetch time as an ISO-8601 UTC timestamp.
func (r Result) FetchedAtISO() string {
	return FormatISO(r.FetchedAt)
}

// FormatISO renders t the way every timestamp in this service is rendered.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// Empty reports whether the payload carries no keys.
func (p Payload) Empty() bool {
	return len(p) == 0
}

// String returns the value under key when it is a string.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Object returns the value under key when it is a JSON object.
func (p Payload) Object(key string) (map[string]any, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Content extracts the known page fields.
func (p Payload) Content() PageContent {
	content := PageContent{
		Title:       p.stringPtr("title"),
		Description: p.stringPtr("description"),
		CSS:         p.stringPtr("css"),
		HTML:        p.stringPtr("html"),
		Markdown:    p.stringPtr("markdown"),
	}
	if m, ok := p.Object("metadata"); ok {
		content.Metadata = m
	}
	return content
}

// stringPtr reads key as text. Strings are taken as-is; truthy numbers and
// true are formatted; every other value counts as absent.
func (p Payload) stringPtr(key string) *string {
	var s string
	switch v := p[key].(type) {
	case string:
		s = v
	case float64:
		if v == 0 {
			return nil
		}
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if !v {
			return nil
		}
		s = "true"
	default:
		return nil
	}
	return &s
}
