package seo

import (
	"net/url"
	"sort"
	"strings"
)

// OpenGraph holds og:* tags.
type OpenGraph struct {
	Title       string
	Description string
	Image       string
	Type        string
	URL         string
	SiteName    string
}

// Twitter holds twitter:* card tags.
type Twitter struct {
	Card  string
	Site  string
	Image string
}

// Tag is an arbitrary <meta name=... content=...> pair.
type Tag struct {
	Name    string
	Content string
}

// Meta is everything the layout writes into <head>.
type Meta struct {
	Title       string
	Description string
	Canonical   string
	Robots      string
	OG          OpenGraph
	Twitter     Twitter
	Tags        []Tag
	JSONLD      []string
}

// Canonical joins base and path into an absolute URL. It returns an empty
// string when base is empty or not absolute.
func Canonical(base, path string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	joined, err := url.JoinPath(base, path)
	if err != nil {
		return ""
	}
	if path == "/" || path == "" {
		return strings.TrimRight(joined, "/") + "/"
	}
	return joined
}

// Fill copies Title/Description into the OpenGraph block where it is unset
// and picks a default card type.
func (m *Meta) Fill(siteName string) {
	if m.OG.Title == "" {
		m.OG.Title = m.Title
	}
	if m.OG.Description == "" {
		m.OG.Description = m.Description
	}
	if m.OG.Type == "" {
		m.OG.Type = "website"
	}
	if m.OG.URL == "" {
		m.OG.URL = m.Canonical
	}
	if m.OG.SiteName == "" {
		m.OG.SiteName = siteName
	}
	if m.Twitter.Card == "" {
		if m.OG.Image != "" || m.Twitter.Image != "" {
			m.Twitter.Card = "summary_large_image"
		} else {
			m.Twitter.Card = "summary"
		}
	}
	sort.SliceStable(m.Tags, func(i, j int) bool { return m.Tags[i].Name < m.Tags[j].Name })
}
