// Package layout wraps rendered page bodies in the shared HTML document.
package layout

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/Masterminds/sprig/v3"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"

	"finitefield.org/apifront/internal/nav"
	"finitefield.org/apifront/internal/seo"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// PageData is the view model for the base layout.
type PageData struct {
	Lang       string
	SiteName   string
	Path       string
	Endpoint   string
	RenderedAt string
	SEO        seo.Meta
	Nav        []nav.RenderedItem
	Body       template.HTML
}

// Layout executes the embedded "base" template.
type Layout struct {
	tmpl     *template.Template
	minifier *minify.M
}

// Option customises a Layout.
type Option func(*Layout)

// WithMinify minifies every rendered document.
func WithMinify() Option {
	return func(l *Layout) {
		m := minify.New()
		m.AddFunc("text/css", css.Minify)
		m.Add("text/html", &mhtml.Minifier{KeepDocumentTags: true, KeepEndTags: true, KeepQuotes: true})
		l.minifier = m
	}
}

// New parses the embedded templates.
func New(opts ...Option) (*Layout, error) {
	funcs := sprig.FuncMap()
	funcs["jsonld"] = func(s string) template.JS { return template.JS(s) }

	tmpl, err := template.New("_root").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("layout: parse templates: %w", err)
	}
	l := &Layout{tmpl: tmpl}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Render writes the full document for data to w. Nothing is written when
// template execution fails.
func (l *Layout) Render(w io.Writer, data PageData) error {
	var buf bytes.Buffer
	if err := l.tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("layout: execute base: %w", err)
	}
	out := buf.Bytes()
	if l.minifier != nil {
		minified, err := l.minifier.Bytes("text/html", out)
		if err != nil {
			return fmt.Errorf("layout: minify: %w", err)
		}
		out = minified
	}
	_, err := w.Write(out)
	return err
}
