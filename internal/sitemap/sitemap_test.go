package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
)

func seed(t *testing.T, mem afero.Fs, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, afero.WriteFile(mem, "/dist/"+p, []byte("<html></html>"), 0o644))
	}
}

func TestGenerate(t *testing.T) {
	mem := afero.NewMemMapFs()
	seed(t, mem,
		"index.html",
		"provinsi/bali/kabupaten/badung/kecamatan/kuta/50100001-sd-a.html",
		"provinsi/aceh/kabupaten/aceh-besar/kecamatan/darul-imarah/10100001-sd-b.html",
		"styles.css",
	)

	res, err := Generate(context.Background(), Options{
		FS:      storage.New(storage.Options{Fs: mem, RetryDelay: time.Millisecond}),
		RootDir: "/dist",
		BaseURL: "https://sekolah.example.id/",
		MaxURLs: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.URLs)
	assert.Equal(t, []string{"sitemap-001.xml", "sitemap-002.xml"}, res.Files)

	data, err := afero.ReadFile(mem, "/dist/sitemap-001.xml")
	require.NoError(t, err)
	var first urlSet
	require.NoError(t, xml.Unmarshal(data, &first))
	require.Len(t, first.URLs, 2)
	assert.Equal(t, "https://sekolah.example.id/index.html", first.URLs[0].Loc)
	assert.Equal(t, "https://sekolah.example.id/provinsi/aceh/kabupaten/aceh-besar/kecamatan/darul-imarah/10100001-sd-b.html", first.URLs[1].Loc)

	data, err = afero.ReadFile(mem, "/dist/"+IndexFile)
	require.NoError(t, err)
	var index sitemapIndex
	require.NoError(t, xml.Unmarshal(data, &index))
	require.Len(t, index.Sitemaps, 2)
	assert.Equal(t, "https://sekolah.example.id/sitemap-002.xml", index.Sitemaps[1].Loc)
	assert.Contains(t, string(data), `xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`)
}

func TestGenerate_EscapesURLs(t *testing.T) {
	mem := afero.NewMemMapFs()
	seed(t, mem, "a&b.html")

	_, err := Generate(context.Background(), Options{
		FS:      storage.New(storage.Options{Fs: mem}),
		RootDir: "/dist",
		BaseURL: "https://x.id",
	})
	require.NoError(t, err)

	data, err := afero.ReadFile(mem, "/dist/sitemap-001.xml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "a&amp;b.html")
}

func TestGenerate_MissingRoot(t *testing.T) {
	_, err := Generate(context.Background(), Options{
		FS:      storage.New(storage.Options{Fs: afero.NewMemMapFs(), RetryDelay: time.Millisecond}),
		RootDir: "/dist",
	})
	require.Error(t, err)
}

func TestChunk(t *testing.T) {
	urls := make([]string, 5)
	for i := range urls {
		urls[i] = fmt.Sprint(i)
	}
	chunks := Chunk(urls, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"4"}, chunks[2])
	assert.Empty(t, Chunk(nil, 2))
	assert.Equal(t, "sitemap-012.xml", FileName(12))
}

func TestGenerate_RemovesStaleChunks(t *testing.T) {
	ctx := context.Background()
	mem := afero.NewMemMapFs()
	seed(t, mem, "index.html", "a.html", "b.html")
	require.NoError(t, afero.WriteFile(mem, "/dist/sitemap-extra.xml", []byte("<x/>"), 0o644))
	gfs := storage.New(storage.Options{Fs: mem, RetryDelay: time.Millisecond})

	first, err := Generate(ctx, Options{FS: gfs, RootDir: "/dist", BaseURL: "https://x.id", MaxURLs: 1})
	require.NoError(t, err)
	require.Len(t, first.Files, 3)
	assert.Empty(t, first.Removed)

	second, err := Generate(ctx, Options{FS: gfs, RootDir: "/dist", BaseURL: "https://x.id", MaxURLs: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"sitemap-001.xml", "sitemap-002.xml"}, second.Files)
	assert.Equal(t, []string{"sitemap-003.xml"}, second.Removed)

	for name, want := range map[string]bool{
		"sitemap-002.xml":   true,
		"sitemap-003.xml":   false,
		"sitemap-extra.xml": true,
		IndexFile:           true,
	} {
		exists, err := afero.Exists(mem, "/dist/"+name)
		require.NoError(t, err)
		assert.Equal(t, want, exists, name)
	}
}
