// Package sitemap renders sitemap.xml for the blog from its static pages and
// published posts.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/folio-blog/folioctl/internal/models"
)

// Namespace is the sitemaps.org schema namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// URLSet is the root element of a sitemap.
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// URL is one sitemap entry.
type URL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// Build lists staticPaths followed by one /blog/{slug} entry per post.
// Duplicate locations are emitted once.
func Build(siteURL string, staticPaths []string, posts []models.Post) (URLSet, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(siteURL), "/"))
	if err != nil {
		return URLSet{}, fmt.Errorf("parse site URL %q: %w", siteURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return URLSet{}, fmt.Errorf("site URL %q must be absolute", siteURL)
	}

	set := URLSet{Xmlns: Namespace}
	seen := make(map[string]struct{})
	add := func(u URL) {
		if _, ok := seen[u.Loc]; ok {
			return
		}
		seen[u.Loc] = struct{}{}
		set.URLs = append(set.URLs, u)
	}

	for _, p := range staticPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		priority := "0.8"
		if p == "/" {
			priority = "1.0"
		}
		add(URL{Loc: base.String() + p, ChangeFreq: "weekly", Priority: priority})
	}

	for _, post := range posts {
		slug := strings.TrimSpace(post.Slug)
		if slug == "" {
			continue
		}
		add(URL{
			Loc:        base.String() + "/blog/" + url.PathEscape(slug),
			LastMod:    formatDate(post.LastModified()),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}
	return set, nil
}

// Write renders set as an indented XML document with the standard header.
func Write(w io.Writer, set URLSet) error {
	if set.Xmlns == "" {
		set.Xmlns = Namespace
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return fmt.Errorf("encode sitemap: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
