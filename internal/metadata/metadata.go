// Package metadata derives the <head> record for a page from its API payload
// and caller supplied fallbacks.
package metadata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"finitefield.org/apifront/internal/apiconfig"
	"finitefield.org/apifront/internal/pagedata"
	"finitefield.org/apifront/internal/seo"
)

const defaultTitle = "Server Rendered Page"

// Record is the generated metadata. Keys other than title and description are
// passed through from the fallback and the API metadata object.
type Record map[string]any

// Source loads page payloads. *pagedata.Fetcher satisfies it.
type Source interface {
	Fetch(ctx context.Context, endpointPath string, override apiconfig.FetchOptions) pagedata.Result
}

// Generator builds Records.
type Generator struct {
	source Source
	now    func() time.Time
}

// NewGenerator wraps source.
func NewGenerator(source Source) *Generator {
	return &Generator{source: source, now: time.Now}
}

// WithClock returns a copy of g using now as its time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	cp := *g
	if now != nil {
		cp.now = now
	}
	return &cp
}

// Generate fetches endpointPath on its own round trip and resolves the record.
//
// title and description come from the API, then the fallback, then a default.
// The fallback is laid over that result and the API metadata object is laid
// over everything, so both can override the resolved title and description.
func (g *Generator) Generate(ctx context.Context, endpointPath string, fallback Record) Record {
	res := g.source.Fetch(ctx, endpointPath, apiconfig.FetchOptions{})
	return Resolve(res.Payload, fallback, g.now())
}

// Resolve applies the precedence rules to an already fetched payload.
func Resolve(payload pagedata.Payload, fallback Record, renderedAt time.Time) Record {
	out := Record{
		"title": firstTruthy(payload["title"], fallback["title"], defaultTitle),
		"description": firstTruthy(payload["description"], fallback["description"],
			"This page was rendered on the server at "+pagedata.FormatISO(renderedAt)),
	}
	for k, v := range fallback {
		out[k] = v
	}
	if extra, ok := payload.Object("metadata"); ok {
		for k, v := range extra {
			out[k] = v
		}
	}
	return out
}

// Title returns the title as text.
func (r Record) Title() string { return r.String("title") }

// Description returns the description as text.
func (r Record) Description() string { return r.String("description") }

// String formats the value under key as text. Missing keys yield "".
func (r Record) String(key string) string {
	return stringify(r[key])
}

// SEO maps the record onto head tags. Well-known keys (robots,
// openGraph, twitter) land on their dedicated fields; other scalar keys
// become plain meta tags.
func (r Record) SEO(canonical string) seo.Meta {
	m := seo.Meta{
		Title:       r.Title(),
		Description: r.Description(),
		Canonical:   canonical,
		Robots:      r.String("robots"),
	}
	if og, ok := r["openGraph"].(map[string]any); ok {
		m.OG = seo.OpenGraph{
			Title:       stringify(og["title"]),
			Description: stringify(og["description"]),
			Type:        stringify(og["type"]),
			URL:         stringify(og["url"]),
			SiteName:    stringify(og["siteName"]),
			Image:       imageURL(og),
		}
	}
	if tw, ok := r["twitter"].(map[string]any); ok {
		m.Twitter = seo.Twitter{
			Card:  stringify(tw["card"]),
			Site:  stringify(tw["site"]),
			Image: imageURL(tw),
		}
	}

	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch k {
		case "title", "description", "robots", "openGraph", "twitter":
			continue
		}
		content := ""
		switch v := r[k].(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				if s := stringify(item); s != "" {
					parts = append(parts, s)
				}
			}
			content = strings.Join(parts, ", ")
		case map[string]any:
			continue
		default:
			content = stringify(v)
		}
		if content != "" {
			m.Tags = append(m.Tags, seo.Tag{Name: k, Content: content})
		}
	}
	return m
}

func imageURL(m map[string]any) string {
	if s := stringify(m["image"]); s != "" {
		return s
	}
	images, ok := m["images"].([]any)
	if !ok || len(images) == 0 {
		return ""
	}
	switch first := images[0].(type) {
	case string:
		return first
	case map[string]any:
		return stringify(first["url"])
	}
	return ""
}

// firstTruthy returns the first value that a JSON consumer would treat as set.
func firstTruthy(values ...any) any {
	for _, v := range values {
		if truthy(v) {
			return v
		}
	}
	return values[len(values)-1]
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
