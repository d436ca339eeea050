package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"finitefield.org/apifront/internal/config"
	"finitefield.org/apifront/internal/handlers"
	"finitefield.org/apifront/internal/pagedata"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/home", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Home from API","css":"p{margin:0}","html":"<p class=\"lead\">Hello</p>","metadata":{"robots":"noindex"}}`))
	})
	mux.HandleFunc("/api/about", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestRouter builds the router main() serves against a fake content API.
func newTestRouter(t *testing.T, env map[string]string) http.Handler {
	t.Helper()
	api := newUpstream(t)
	values := map[string]string{"WEB_API_BASE_URL": api.URL}
	for k, v := range env {
		values[k] = v
	}
	cfg, err := config.Load(config.WithEnvFile(""), config.WithoutSystemEnv(), config.WithEnvMap(values))
	require.NoError(t, err)

	endpoints := cfg.Endpoints()
	pages, err := handlers.LoadPages(cfg.Site.PagesFile, handlers.DefaultPages(endpoints))
	require.NoError(t, err)

	router, err := newRouter(&runtime{
		cfg:     cfg,
		logger:  zap.NewNop(),
		fetcher: pagedata.NewFetcher(endpoints, pagedata.WithHTTPClient(api.Client())),
		pages:   pages,
	})
	require.NoError(t, err)
	return router
}

func doGet(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := doGet(t, r, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestHomePage(t *testing.T) {
	r := newTestRouter(t, map[string]string{"WEB_SITE_NAME": "Acme"})
	rec := doGet(t, r, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	require.Equal(t, "Hello", doc.Find("main p.lead").Text())
	require.Equal(t, "p{margin:0}", doc.Find("main style").Text())
	require.Equal(t, "Home Page - Server Rendered", doc.Find("title").Text())
	require.Equal(t, "noindex", doc.Find(`meta[name="robots"]`).AttrOr("content", ""))
	require.Equal(t, "Acme", doc.Find(`meta[property="og:site_name"]`).AttrOr("content", ""))
	require.Equal(t, "/api/home", doc.Find("body").AttrOr("data-endpoint", ""))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAboutPageFallsBack(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := doGet(t, r, "/about", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	require.Equal(t, "About Us", doc.Find("main h1").Text())
	require.Equal(t, "Learn more about our company and team", doc.Find(`meta[name="description"]`).AttrOr("content", ""))
}

func TestHTMXFragment(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := doGet(t, r, "/", http.Header{"Hx-Request": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Values("Vary"), "HX-Request")
	require.Equal(t, `<style>p{margin:0}</style><div><p class="lead">Hello</p></div>`, rec.Body.String())
}

func TestSanitizeMarkupDropsStyles(t *testing.T) {
	r := newTestRouter(t, map[string]string{"WEB_SANITIZE_MARKUP": "true"})
	rec := doGet(t, r, "/", http.Header{"Hx-Request": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "<style></style><div>"))
	require.Contains(t, rec.Body.String(), "Hello")
}

func TestMinifiedDocument(t *testing.T) {
	r := newTestRouter(t, map[string]string{"WEB_MINIFY": "true"})
	rec := doGet(t, r, "/about", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "\n  <meta")
	require.Contains(t, rec.Body.String(), "About Us")
}

func TestGzipWhenAccepted(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := doGet(t, r, "/about", http.Header{"Accept-Encoding": {"gzip"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestAssetsServedWhenPresent(t *testing.T) {
	public := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(public, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(public, "assets", "site.css"), []byte("body{}"), 0o644))

	r := newTestRouter(t, map[string]string{"WEB_PUBLIC_DIR": public})
	rec := doGet(t, r, "/assets/site.css", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "body{}", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("ETag"))
	require.Contains(t, rec.Header().Get("Cache-Control"), "max-age")
}

func TestPagesFileAddsRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pages:\n  - name: team\n    path: /team\n"), 0o644))

	r := newTestRouter(t, map[string]string{"WEB_PAGES_FILE": path})
	rec := doGet(t, r, "/team", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "No API content available for this page")
}

func TestFetchCommandPrintsPageData(t *testing.T) {
	api := newUpstream(t)
	t.Setenv("WEB_API_BASE_URL", api.URL)
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run([]string{"apifront", "--env-file", filepath.Join(t.TempDir(), "none.env"), "fetch", "/api/home"})
	require.NoError(t, err)

	var got struct {
		APIData   map[string]any `json:"apiData"`
		Endpoint  string         `json:"endpoint"`
		Timestamp string         `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "/api/home", got.Endpoint)
	require.Equal(t, "Home from API", got.APIData["title"])
	require.NotEmpty(t, got.Timestamp)
}

func TestMetadataCommandUsesPageFallback(t *testing.T) {
	api := newUpstream(t)
	t.Setenv("WEB_API_BASE_URL", api.URL)
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run([]string{"apifront", "--env-file", filepath.Join(t.TempDir(), "none.env"), "metadata", "/api/about"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "About Us - Server Rendered", got["title"])
	require.Equal(t, "Learn more about our company and team", got["description"])
}

func TestCommandsRequireEndpoint(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run([]string{"apifront", "fetch"})
	require.Error(t, err)
}
