package pipeline

import (
	"bytes"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

type linkKind int

const (
	linkSkip linkKind = iota
	linkInternal
	linkExternal
)

// ExtractLinks returns the href of every element in an HTML document, in
// document order. Canonical and alternate links point at the deployed site
// and are left out.
func ExtractLinks(content []byte) []string {
	z := html.NewTokenizer(bytes.NewReader(content))
	var links []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			_, hasAttr := z.TagName()
			var href, rel string
			var hasHref bool
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch string(key) {
				case "href":
					href, hasHref = string(val), true
				case "rel":
					rel = strings.ToLower(string(val))
				}
			}
			if !hasHref || href == "" {
				continue
			}
			if rel == "canonical" || rel == "alternate" {
				continue
			}
			links = append(links, href)
		}
	}
}

func classifyLink(link string) linkKind {
	lower := strings.ToLower(strings.TrimSpace(link))
	switch {
	case lower == "", strings.HasPrefix(lower, "#"):
		return linkSkip
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "//"):
		return linkExternal
	case strings.HasPrefix(lower, "mailto:"), strings.HasPrefix(lower, "tel:"),
		strings.HasPrefix(lower, "javascript:"), strings.HasPrefix(lower, "data:"):
		return linkSkip
	}
	return linkInternal
}

// stripQueryAndFragment removes everything from the first '?' or '#'.
func stripQueryAndFragment(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		return link[:i]
	}
	return link
}

// resolveInternal maps an internal link in source to a filesystem path.
// Root-relative links resolve against root, all others against the
// directory of source. Like a browser, ".." never climbs above root.
// ok is false when nothing remains to check.
func resolveInternal(root, source, link string) (string, bool) {
	clean := stripQueryAndFragment(strings.TrimSpace(link))
	if clean == "" {
		return "", false
	}
	if !strings.HasPrefix(clean, "/") {
		dir, err := filepath.Rel(root, filepath.Dir(source))
		if err != nil || dir == ".." || strings.HasPrefix(dir, ".."+string(filepath.Separator)) {
			dir = "."
		}
		clean = path.Join(filepath.ToSlash(dir), clean)
	}
	return filepath.Join(root, filepath.FromSlash(path.Clean("/"+clean))), true
}

func externalURL(link string) string {
	if strings.HasPrefix(link, "//") {
		return "https:" + link
	}
	return link
}
