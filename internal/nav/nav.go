package nav

import (
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Link is a navigation entry a page hands to the renderer.
type Link struct {
	Href        string `yaml:"href"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Item represents a top-level navigation item.
type Item struct {
	Path  string // e.g. "/about"
	Label string
}

// RenderedItem is a view model for templates.
type RenderedItem struct {
	Href   string
	Label  string
	Active bool
}

// Crumb represents a breadcrumb entry.
type Crumb struct {
	Href   string
	Label  string
	Active bool
}

// Build renders navigation items with active state given the current path.
func Build(items []Item, currentPath string) []RenderedItem {
	if currentPath == "" {
		currentPath = "/"
	}
	out := make([]RenderedItem, 0, len(items))
	for _, it := range items {
		out = append(out, RenderedItem{
			Href:   it.Path,
			Label:  it.Label,
			Active: isActive(it.Path, currentPath),
		})
	}
	return out
}

func isActive(itemPath, currentPath string) bool {
	if itemPath == "/" {
		return currentPath == "/"
	}
	// exact or prefix boundary: "/about" or "/about/..."
	if currentPath == itemPath {
		return true
	}
	return strings.HasPrefix(currentPath, itemPath+"/")
}

// Breadcrumbs builds breadcrumb entries from the current path, starting at
// Home. Segments that match an item use its label.
func Breadcrumbs(items []Item, currentPath string) []Crumb {
	if currentPath == "" {
		currentPath = "/"
	}
	crumbs := []Crumb{{Href: "/", Label: labelFor(items, "/", "Home"), Active: currentPath == "/"}}
	if currentPath == "/" {
		return crumbs
	}

	clean := path.Clean(currentPath)
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	href := ""
	for i, part := range parts {
		if part == "" {
			continue
		}
		href += "/" + part
		crumbs = append(crumbs, Crumb{
			Href:   href,
			Label:  labelFor(items, href, TitleFromSegment(part)),
			Active: i == len(parts)-1,
		})
	}
	return crumbs
}

func labelFor(items []Item, href, fallback string) string {
	for _, it := range items {
		if it.Path == href && it.Label != "" {
			return it.Label
		}
	}
	return fallback
}

// TitleFromSegment turns a slug such as "our-team" into "Our Team".
func TitleFromSegment(seg string) string {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return seg
	}
	s := strings.ReplaceAll(seg, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	// Casers carry state; build one per call.
	return cases.Title(language.English).String(s)
}
