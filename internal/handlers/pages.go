package handlers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"finitefield.org/apifront/internal/apiconfig"
	"finitefield.org/apifront/internal/metadata"
	"finitefield.org/apifront/internal/nav"
)

// Page binds a route to the API endpoint that feeds it and the text shown when
// the API has nothing.
type Page struct {
	Name          string
	Path          string
	Endpoint      string
	Metadata      metadata.Record
	FallbackTitle string
	Links         []nav.Link
}

// DefaultPages returns the home and about pages.
func DefaultPages(cfg apiconfig.Config) []Page {
	home, _ := cfg.Endpoint(apiconfig.EndpointHome)
	about, _ := cfg.Endpoint(apiconfig.EndpointAbout)
	return []Page{
		{
			Name:     apiconfig.EndpointHome,
			Path:     "/",
			Endpoint: home,
			Metadata: metadata.Record{
				"title":       "Home Page - Server Rendered",
				"description": "This is the home page with server-side rendering",
			},
			FallbackTitle: "Home Page",
			Links: []nav.Link{
				{Href: "/about", Title: "About Us →", Description: "Learn more about our company"},
			},
		},
		{
			Name:     apiconfig.EndpointAbout,
			Path:     "/about",
			Endpoint: about,
			Metadata: metadata.Record{
				"title":       "About Us - Server Rendered",
				"description": "Learn more about our company and team",
			},
			FallbackTitle: "About Us",
		},
	}
}

// NavItems lists pages for the primary navigation.
func NavItems(pages []Page) []nav.Item {
	items := make([]nav.Item, 0, len(pages))
	for _, p := range pages {
		items = append(items, nav.Item{Path: p.Path, Label: p.FallbackTitle})
	}
	return items
}

// ErrInvalidPages is wrapped by every pages file validation failure.
var ErrInvalidPages = errors.New("handlers: invalid pages file")

type pagesFile struct {
	Pages []pageEntry `yaml:"pages"`
}

type pageEntry struct {
	Name          string         `yaml:"name"`
	Path          string         `yaml:"path"`
	Endpoint      string         `yaml:"endpoint"`
	FallbackTitle string         `yaml:"fallback_title"`
	Metadata      map[string]any `yaml:"metadata"`
	Links         []nav.Link     `yaml:"links"`
}

// LoadPages reads additional pages from a YAML file and appends them to base.
// An empty path returns base unchanged.
func LoadPages(path string, base []Page) ([]Page, error) {
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("handlers: read pages file %s: %w", path, err)
	}
	return ParsePages(data, base)
}

// ParsePages decodes a pages document and appends its entries to base.
func ParsePages(data []byte, base []Page) ([]Page, error) {
	var doc pagesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPages, err)
	}

	out := append([]Page(nil), base...)
	seen := make(map[string]bool, len(out)+len(doc.Pages))
	for _, p := range out {
		seen[p.Path] = true
	}
	for i, entry := range doc.Pages {
		name := strings.TrimSpace(entry.Name)
		path := strings.TrimSpace(entry.Path)
		if name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidPages, i)
		}
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("%w: page %q needs an absolute path", ErrInvalidPages, name)
		}
		if seen[path] {
			return nil, fmt.Errorf("%w: duplicate path %s", ErrInvalidPages, path)
		}
		seen[path] = true

		endpoint := strings.TrimSpace(entry.Endpoint)
		if endpoint == "" {
			endpoint = "/api/" + name
		}
		title := strings.TrimSpace(entry.FallbackTitle)
		if title == "" {
			title = nav.TitleFromSegment(name)
		}
		out = append(out, Page{
			Name:          name,
			Path:          path,
			Endpoint:      endpoint,
			Metadata:      metadata.Record(entry.Metadata),
			FallbackTitle: title,
			Links:         entry.Links,
		})
	}
	return out, nil
}
