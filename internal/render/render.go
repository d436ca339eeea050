// Package render turns a fetched payload into the page body.
//
// The css and html fields are written without escaping. The content API is a
// trusted collaborator; sanitization only happens when a sanitizer is
// configured explicitly.
package render

import (
	"bytes"
	"context"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"finitefield.org/apifront/internal/nav"
	"finitefield.org/apifront/internal/pagedata"
)

// NoContentMessage is shown when the API returned nothing for a page.
const NoContentMessage = "No API content available for this page"

// Input is what a route hands to the renderer.
type Input struct {
	Result        pagedata.Result
	FallbackTitle string
	// Links is accepted for callers that list related pages; the body
	// component does not render it.
	Links []nav.Link
}

// Renderer builds body components.
type Renderer struct {
	sanitizer *bluemonday.Policy
	markdown  goldmark.Markdown
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithSanitizer filters html and markdown output through policy and drops the
// API stylesheet. Off by default.
func WithSanitizer(policy *bluemonday.Policy) Option {
	return func(r *Renderer) { r.sanitizer = policy }
}

// WithMarkdown replaces the markdown converter.
func WithMarkdown(md goldmark.Markdown) Option {
	return func(r *Renderer) {
		if md != nil {
			r.markdown = md
		}
	}
}

// New builds a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{markdown: NewMarkdown()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the body component for in.
func (r *Renderer) Render(in Input) templ.Component {
	payload := in.Result.Payload
	if payload.Empty() {
		return fallbackBlock(in.FallbackTitle)
	}
	content := payload.Content()
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		css := ""
		if content.CSS != nil {
			css = *content.CSS
		}
		markup, err := r.markup(content, in.FallbackTitle)
		if err != nil {
			return err
		}
		if r.sanitizer != nil {
			css = ""
			markup = r.sanitizer.Sanitize(markup)
		}
		var b strings.Builder
		b.WriteString("<style>")
		b.WriteString(css)
		b.WriteString("</style><div>")
		b.WriteString(markup)
		b.WriteString("</div>")
		_, err = io.WriteString(w, b.String())
		return err
	})
}

// RenderString renders in to a string.
func (r *Renderer) RenderString(ctx context.Context, in Input) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(in).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Renderer) markup(content pagedata.PageContent, fallbackTitle string) (string, error) {
	if content.HTML != nil && *content.HTML != "" {
		return *content.HTML, nil
	}
	if content.Markdown != nil && *content.Markdown != "" {
		var buf bytes.Buffer
		if err := r.markdown.Convert([]byte(*content.Markdown), &buf); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	return Placeholder(fallbackTitle), nil
}

// Placeholder is the markup used when the payload has no html of its own.
func Placeholder(fallbackTitle string) string {
	return "<p>No content available for " + html.EscapeString(fallbackTitle) + "</p>"
}

func fallbackBlock(title string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<div><h1>"+html.EscapeString(title)+"</h1><p>"+NoContentMessage+"</p></div>")
		return err
	})
}
