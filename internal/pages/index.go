package pages

import (
	"bytes"
	"fmt"
	"path"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
)

// IndexFile is the page a static host serves for a directory URL.
const IndexFile = "index.html"

// Crumb is one breadcrumb entry. The current page has no Href.
type Crumb struct {
	Name string
	Href string
}

// Entry is one line of an index page listing.
type Entry struct {
	Name   string
	Href   string
	Detail string
}

type indexView struct {
	Title     string
	Heading   string
	Crumbs    []Crumb
	Entries   []Entry
	Canonical string
	Year      int
}

type area struct {
	name     string
	slug     string
	count    int
	children map[string]*area
	schools  []schools.School
}

func (a *area) child(name, slug string) *area {
	if a.children == nil {
		a.children = make(map[string]*area)
	}
	c, ok := a.children[slug]
	if !ok {
		c = &area{name: name, slug: slug}
		a.children[slug] = c
	}
	c.count++
	return c
}

func (a *area) sorted(col *collate.Collator) []*area {
	out := make([]*area, 0, len(a.children))
	for _, c := range a.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := col.CompareString(out[i].name, out[j].name); c != 0 {
			return c < 0
		}
		return out[i].slug < out[j].slug
	})
	return out
}

// IndexPages renders one index.html per province, regency and district
// directory so every directory linked from the homepage resolves to a page.
// Only valid records are listed, matching the pages that get built.
func (b *Builder) IndexPages(records []schools.School) ([]Page, error) {
	var root area
	for i := range records {
		s := records[i]
		if s.Validate() != nil {
			continue
		}
		prov := root.child(s.Provinsi, b.slugger.Slug(s.Provinsi))
		kab := prov.child(s.KabKota, b.slugger.Slug(s.KabKota))
		kec := kab.child(s.Kecamatan, b.slugger.Slug(s.Kecamatan))
		kec.schools = append(kec.schools, s)
	}

	col := collate.New(language.Indonesian)
	year := b.now().Year()
	home := Crumb{Name: "Beranda", Href: "/" + HomepageFile}
	var out []Page

	for _, prov := range root.sorted(col) {
		provDir := path.Join("provinsi", prov.slug)
		kabs := prov.sorted(col)

		entries := make([]Entry, 0, len(kabs))
		for _, kab := range kabs {
			entries = append(entries, areaEntry(path.Join(provDir, "kabupaten", kab.slug), kab))
		}
		page, err := b.renderIndex(provDir, indexView{
			Title:   "Sekolah di " + prov.name,
			Heading: "Kabupaten/Kota",
			Crumbs:  []Crumb{home, {Name: prov.name}},
			Entries: entries,
			Year:    year,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page)

		for _, kab := range kabs {
			kabDir := path.Join(provDir, "kabupaten", kab.slug)
			kecs := kab.sorted(col)

			entries := make([]Entry, 0, len(kecs))
			for _, kec := range kecs {
				entries = append(entries, areaEntry(path.Join(kabDir, "kecamatan", kec.slug), kec))
			}
			page, err := b.renderIndex(kabDir, indexView{
				Title:   "Sekolah di " + kab.name + ", " + prov.name,
				Heading: "Kecamatan",
				Crumbs:  []Crumb{home, {Name: prov.name, Href: "/" + provDir + "/"}, {Name: kab.name}},
				Entries: entries,
				Year:    year,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, page)

			for _, kec := range kecs {
				kecDir := path.Join(kabDir, "kecamatan", kec.slug)
				list := kec.schools
				sort.SliceStable(list, func(i, j int) bool {
					return col.CompareString(list[i].Nama, list[j].Nama) < 0
				})

				entries := make([]Entry, 0, len(list))
				for _, s := range list {
					entries = append(entries, Entry{
						Name:   s.Nama,
						Href:   "/" + b.RelativePath(s),
						Detail: s.BentukPendidikan + " " + s.StatusLabel(),
					})
				}
				page, err := b.renderIndex(kecDir, indexView{
					Title:   "Sekolah di Kecamatan " + kec.name + ", " + kab.name,
					Heading: "Sekolah",
					Crumbs: []Crumb{
						home,
						{Name: prov.name, Href: "/" + provDir + "/"},
						{Name: kab.name, Href: "/" + kabDir + "/"},
						{Name: kec.name},
					},
					Entries: entries,
					Year:    year,
				})
				if err != nil {
					return nil, err
				}
				out = append(out, page)
			}
		}
	}
	return out, nil
}

func areaEntry(dir string, a *area) Entry {
	return Entry{Name: a.name, Href: "/" + dir + "/", Detail: fmt.Sprintf("%d sekolah", a.count)}
}

func (b *Builder) renderIndex(dir string, view indexView) (Page, error) {
	if b.siteURL != "" {
		view.Canonical = b.siteURL + "/" + dir + "/"
	}
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, view); err != nil {
		return Page{}, fmt.Errorf("failed to render index for %s: %w", dir, err)
	}
	return Page{RelativePath: path.Join(dir, IndexFile), Content: buf.Bytes()}, nil
}
