// Package handlers wires pages to the fetch, metadata and render pipeline.
package handlers

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finitefield.org/apifront/internal/apiconfig"
	"finitefield.org/apifront/internal/layout"
	"finitefield.org/apifront/internal/metadata"
	"finitefield.org/apifront/internal/middleware"
	"finitefield.org/apifront/internal/nav"
	"finitefield.org/apifront/internal/observability"
	"finitefield.org/apifront/internal/pagedata"
	"finitefield.org/apifront/internal/render"
	"finitefield.org/apifront/internal/seo"
)

// Fetcher loads page payloads.
type Fetcher interface {
	Fetch(ctx context.Context, endpointPath string, override apiconfig.FetchOptions) pagedata.Result
}

// Site carries presentation settings shared by every page.
type Site struct {
	Name          string
	Lang          string
	CanonicalBase string
}

// Dependencies groups what the handlers need.
type Dependencies struct {
	Fetcher  Fetcher
	Renderer *render.Renderer
	Layout   *layout.Layout
	Site     Site
	Logger   *zap.Logger
}

// Handlers serves API-driven pages.
type Handlers struct {
	fetcher   Fetcher
	generator *metadata.Generator
	renderer  *render.Renderer
	layout    *layout.Layout
	site      Site
	logger    *zap.Logger
	navItems  []nav.Item
}

// New builds the handler set. Renderer defaults to render.New().
func New(deps Dependencies) *Handlers {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = render.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		fetcher:   deps.Fetcher,
		generator: metadata.NewGenerator(deps.Fetcher),
		renderer:  renderer,
		layout:    deps.Layout,
		site:      deps.Site,
		logger:    logger,
	}
}

// Mount registers every page plus the health check on r.
func (h *Handlers) Mount(r chi.Router, pages []Page) {
	h.navItems = NavItems(pages)
	r.Get("/healthz", h.Healthz)
	for _, p := range pages {
		r.Get(p.Path, h.Page(p))
	}
}

// Healthz answers liveness probes.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

// Page renders p. Metadata and body are fetched independently; the two calls
// share nothing and may observe different upstream states.
func (h *Handlers) Page(p Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Outbound fetches keep request values for logging but are not
		// cancelled by client disconnects or the request deadline.
		ctx := context.WithoutCancel(r.Context())
		if rid, ok := middleware.RequestID(ctx); ok {
			w.Header().Set("X-Request-ID", rid)
		}

		if middleware.IsHTMX(ctx) {
			res := h.fetcher.Fetch(ctx, p.Endpoint, apiconfig.FetchOptions{})
			templ.Handler(h.body(p, res)).ServeHTTP(w, r)
			return
		}

		var (
			meta metadata.Record
			res  pagedata.Result
			g    errgroup.Group
		)
		g.Go(func() error {
			meta = h.generator.Generate(ctx, p.Endpoint, p.Metadata)
			return nil
		})
		g.Go(func() error {
			res = h.fetcher.Fetch(ctx, p.Endpoint, apiconfig.FetchOptions{})
			return nil
		})
		_ = g.Wait()

		h.writeDocument(w, r, p, meta, res)
	}
}

func (h *Handlers) body(p Page, res pagedata.Result) templ.Component {
	return h.renderer.Render(render.Input{
		Result:        res,
		FallbackTitle: p.FallbackTitle,
		Links:         p.Links,
	})
}

func (h *Handlers) breadcrumbs(path string) []seo.BreadcrumbItem {
	crumbs := nav.Breadcrumbs(h.navItems, path)
	items := make([]seo.BreadcrumbItem, 0, len(crumbs))
	for _, c := range crumbs {
		items = append(items, seo.BreadcrumbItem{Name: c.Label, Item: seo.Canonical(h.site.CanonicalBase, c.Href)})
	}
	return items
}

func (h *Handlers) writeDocument(w http.ResponseWriter, r *http.Request, p Page, meta metadata.Record, res pagedata.Result) {
	ctx := r.Context()
	logger := observability.Logger(ctx)
	if logger == observability.NoopLogger() {
		logger = h.logger
	}

	var body bytes.Buffer
	if err := h.body(p, res).Render(ctx, &body); err != nil {
		logger.Error("render page body failed", zap.String("page", p.Name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	canonical := seo.Canonical(h.site.CanonicalBase, p.Path)
	head := meta.SEO(canonical)
	head.JSONLD = append(head.JSONLD, seo.JSON(seo.WebPage(head.Title, head.Description, canonical)))
	if p.Path == "/" {
		head.JSONLD = append(head.JSONLD, seo.JSON(seo.WebSite(h.site.Name, canonical)))
	} else if canonical != "" {
		head.JSONLD = append(head.JSONLD, seo.JSON(seo.BreadcrumbList(h.breadcrumbs(p.Path))))
	}
	head.Fill(h.site.Name)

	data := layout.PageData{
		Lang:       h.site.Lang,
		SiteName:   h.site.Name,
		Path:       p.Path,
		Endpoint:   res.Endpoint,
		RenderedAt: pagedata.FormatISO(time.Now()),
		SEO:        head,
		Nav:        nav.Build(h.navItems, r.URL.Path),
		// trusted upstream markup, see package render
		Body: template.HTML(body.String()),
	}

	var doc bytes.Buffer
	if err := h.layout.Render(&doc, data); err != nil {
		logger.Error("render layout failed", zap.String("page", p.Name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(doc.Bytes())
}
