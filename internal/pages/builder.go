// Package pages renders school records into static HTML pages.
package pages

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
)

// Well-known files at the output root.
const (
	HomepageFile   = "index.html"
	StylesheetFile = "styles.css"
)

// Page is a rendered page and its path relative to the output root,
// slash-separated.
type Page struct {
	RelativePath string
	Content      []byte
}

// Builder renders pages. It is safe for concurrent use.
type Builder struct {
	slugger *schools.Slugger
	siteURL string
	now     func() time.Time
}

// NewBuilder creates a Builder. siteURL, when set, is used for canonical links.
func NewBuilder(slugger *schools.Slugger, siteURL string) *Builder {
	if slugger == nil {
		slugger = schools.NewSlugger(0)
	}
	return &Builder{
		slugger: slugger,
		siteURL: strings.TrimRight(siteURL, "/"),
		now:     time.Now,
	}
}

// Directory returns the directory of s's page:
// provinsi/<p>/kabupaten/<k>/kecamatan/<c>.
func (b *Builder) Directory(s schools.School) string {
	return path.Join(
		"provinsi", b.slugger.Slug(s.Provinsi),
		"kabupaten", b.slugger.Slug(s.KabKota),
		"kecamatan", b.slugger.Slug(s.Kecamatan),
	)
}

// RelativePath returns the path of s's page: <dir>/<npsn>-<nama-slug>.html.
func (b *Builder) RelativePath(s schools.School) string {
	return path.Join(b.Directory(s), fmt.Sprintf("%s-%s.html", s.NPSN, b.slugger.Slug(s.Nama)))
}

// UniqueDirectories returns the distinct page directories of records in
// first-seen order.
func (b *Builder) UniqueDirectories(records []schools.School) []string {
	seen := make(map[string]struct{}, len(records))
	dirs := make([]string, 0)
	for i := range records {
		dir := b.Directory(records[i])
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

type schoolView struct {
	School    schools.School
	Canonical string
	JSONLD    map[string]any
	Year      int
}

// Build validates s and renders its page.
func (b *Builder) Build(s schools.School) (Page, error) {
	if err := s.Validate(); err != nil {
		return Page{}, err
	}

	rel := b.RelativePath(s)
	view := schoolView{
		School: s,
		JSONLD: map[string]any{
			"@context":   "https://schema.org",
			"@type":      "School",
			"name":       s.Nama,
			"identifier": s.NPSN,
			"address": map[string]any{
				"@type":           "PostalAddress",
				"streetAddress":   s.Alamat,
				"addressLocality": s.Kecamatan,
				"addressRegion":   s.KabKota,
				"addressCountry":  "ID",
			},
			"educationalLevel": s.BentukPendidikan,
		},
		Year: b.now().Year(),
	}
	if b.siteURL != "" {
		view.Canonical = b.siteURL + "/" + rel
	}

	var buf bytes.Buffer
	if err := schoolTemplate.Execute(&buf, view); err != nil {
		return Page{}, fmt.Errorf("failed to render page for %s: %w", s.NPSN, err)
	}
	return Page{RelativePath: rel, Content: buf.Bytes()}, nil
}

// ProvinceSummary is one province on the homepage.
type ProvinceSummary struct {
	Name  string
	Slug  string
	Count int
}

// Provinces aggregates valid records by province, sorted by name in
// Indonesian collation order. Invalid records have no page and are skipped.
func (b *Builder) Provinces(records []schools.School) []ProvinceSummary {
	index := make(map[string]int)
	var out []ProvinceSummary
	for i := range records {
		if records[i].Validate() != nil {
			continue
		}
		name := records[i].Provinsi
		if j, ok := index[name]; ok {
			out[j].Count++
			continue
		}
		index[name] = len(out)
		out = append(out, ProvinceSummary{Name: name, Slug: b.slugger.Slug(name), Count: 1})
	}

	col := collate.New(language.Indonesian)
	sort.SliceStable(out, func(i, j int) bool {
		return col.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out
}

// Homepage renders index.html for the full record set.
func (b *Builder) Homepage(records []schools.School) (Page, error) {
	view := struct {
		Total     int
		Provinces []ProvinceSummary
		Year      int
	}{
		Total:     len(records),
		Provinces: b.Provinces(records),
		Year:      b.now().Year(),
	}

	var buf bytes.Buffer
	if err := homepageTemplate.Execute(&buf, view); err != nil {
		return Page{}, fmt.Errorf("failed to render homepage: %w", err)
	}
	return Page{RelativePath: HomepageFile, Content: buf.Bytes()}, nil
}

// Stylesheet returns the shared styles.css page.
func (b *Builder) Stylesheet() Page {
	return Page{RelativePath: StylesheetFile, Content: []byte(stylesheet)}
}
