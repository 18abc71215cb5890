package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
)

func newValidator(t *testing.T, raw afero.Fs, opts ValidatorOptions) *Validator {
	t.Helper()
	opts.FS = storage.New(storage.Options{Fs: raw, RetryDelay: time.Millisecond})
	opts.RootDir = outputDir
	if opts.Concurrency == 0 {
		opts.Concurrency = 4
	}
	return NewValidator(opts)
}

func writeFile(t *testing.T, raw afero.Fs, rel, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(raw, filepath.Join(outputDir, filepath.FromSlash(rel)), []byte(content), 0o644))
}

func TestValidateOutputTree_BrokenSiblingLink(t *testing.T) {
	raw := afero.NewMemMapFs()
	writeFile(t, raw, "provinsi/bali/index.html", `<html><body>
		<a href="ada.html">Ada</a>
		<a href="hilang.html">Hilang</a>
	</body></html>`)
	writeFile(t, raw, "provinsi/bali/ada.html", `<html><body><a href="index.html">Kembali</a></body></html>`)

	v := newValidator(t, raw, ValidatorOptions{})
	res, err := v.ValidateOutputTree(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Equal(t, 2, res.TotalFiles)
	assert.Equal(t, 3, res.InternalChecked)
	require.Len(t, res.BrokenInternal, 1)
	assert.Equal(t, "provinsi/bali/index.html", res.BrokenInternal[0].Source)
	assert.Equal(t, "hilang.html", res.BrokenInternal[0].Link)
	assert.Empty(t, res.BrokenExternal)
}

func TestValidateOutputTree_Resolution(t *testing.T) {
	raw := afero.NewMemMapFs()
	writeFile(t, raw, "index.html", `<html><head>
		<link rel="stylesheet" href="/styles.css">
		<link rel="canonical" href="https://sekolah.example.id/">
	</head><body>
		<a href="/provinsi/bali/">Bali</a>
		<a href="provinsi/bali/kuta.html?ref=home#top">Kuta</a>
		<a href="#main">Skip</a>
		<a href="mailto:info@example.id">Mail</a>
		<a href="https://example.invalid/">External</a>
	</body></html>`)
	writeFile(t, raw, "styles.css", "body{}")
	writeFile(t, raw, "provinsi/bali/kuta.html", `<a href="../../index.html">Home</a>`)
	writeFile(t, raw, "provinsi/bali/index.html", `<a href="/index.html">Home</a>`)

	v := newValidator(t, raw, ValidatorOptions{})
	res, err := v.ValidateOutputTree(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Passed, "broken: %v", res.BrokenInternal)
	assert.Equal(t, 5, res.InternalChecked)
	assert.Equal(t, 0, res.ExternalChecked, "external checks are disabled")
}

func TestValidateOutputTree_ParentSegmentsStayInRoot(t *testing.T) {
	raw := afero.NewMemMapFs()
	writeFile(t, raw, "index.html", `<a href="/../styles.css">CSS</a><a href="../../hilang.html">Hilang</a>`)
	writeFile(t, raw, "styles.css", "body{}")
	// Sits next to the output root and must not satisfy a link from inside it.
	require.NoError(t, afero.WriteFile(raw, filepath.Join(filepath.Dir(outputDir), "hilang.html"), []byte("x"), 0o644))

	v := newValidator(t, raw, ValidatorOptions{})
	res, err := v.ValidateOutputTree(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Passed)
	require.Len(t, res.BrokenInternal, 1)
	assert.Equal(t, "../../hilang.html", res.BrokenInternal[0].Link)
}

func TestValidateOutputTree_MissingRootPasses(t *testing.T) {
	v := newValidator(t, afero.NewMemMapFs(), ValidatorOptions{})
	res, err := v.ValidateOutputTree(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Zero(t, res.TotalFiles)
}

func TestValidateOutputTree_ExternalLinks(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	raw := afero.NewMemMapFs()
	writeFile(t, raw, "a.html", `<a href="`+srv.URL+`/ok">ok</a><a href="`+srv.URL+`/gone">gone</a>`)
	writeFile(t, raw, "b.html", `<a href="`+srv.URL+`/gone">gone again</a>`)

	tests := []struct {
		name   string
		strict bool
		passed bool
	}{
		{"lenient", false, true},
		{"strict", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			v := newValidator(t, raw, ValidatorOptions{
				CheckExternal:   true,
				Strict:          tt.strict,
				ExternalTimeout: time.Second,
				HTTPClient:      srv.Client(),
			})

			res, err := v.ValidateOutputTree(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, 3, res.ExternalChecked)
			assert.Len(t, res.BrokenExternal, 2)
			assert.Empty(t, res.BrokenInternal)
			assert.Equal(t, int32(2), hits.Load(), "each URL is fetched once")
		})
	}
}

func TestValidateOutputTree_ExternalRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	raw := afero.NewMemMapFs()
	writeFile(t, raw, "a.html", `<a href="`+srv.URL+`/flaky">flaky</a>`)

	v := newValidator(t, raw, ValidatorOptions{
		CheckExternal:   true,
		Strict:          true,
		ExternalRetries: 1,
		HTTPClient:      srv.Client(),
	})
	res, err := v.ValidateOutputTree(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, int32(2), hits.Load())
}

func TestWriteReport(t *testing.T) {
	raw := afero.NewMemMapFs()
	writeFile(t, raw, "index.html", `<a href="nope.html">x</a>`)

	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	v := newValidator(t, raw, ValidatorOptions{Now: func() time.Time { return now }})
	res, err := v.ValidateOutputTree(context.Background())
	require.NoError(t, err)

	path, err := v.WriteReport(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outputDir, ReportFile), path)

	data, err := afero.ReadFile(raw, path)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "Link Validation Report")
	assert.Contains(t, report, "Generated: 2024-06-01T08:00:00Z")
	assert.Contains(t, report, "Build status: FAILED")
	assert.Contains(t, report, "Broken Internal Links (CRITICAL)")
	assert.Contains(t, report, "index.html -> nope.html")
	assert.NotContains(t, report, "Broken External Links")
}

func TestExtractLinks(t *testing.T) {
	links := ExtractLinks([]byte(`<html><head>
		<link rel="stylesheet" href="/styles.css">
		<link rel="canonical" href="https://x.id/">
	</head><body>
		<a href="a.html?x=1&amp;y=2">A</a>
		<a>no href</a>
		<a href="">empty</a>
		<area href="/map.html"/>
	</body></html>`))
	assert.Equal(t, []string{"/styles.css", "a.html?x=1&y=2", "/map.html"}, links)
}

func TestClassifyAndResolve(t *testing.T) {
	tests := []struct {
		link string
		kind linkKind
	}{
		{"#top", linkSkip},
		{"mailto:a@b.id", linkSkip},
		{"tel:+62", linkSkip},
		{"https://example.id", linkExternal},
		{"HTTP://EXAMPLE.ID", linkExternal},
		{"//cdn.example.id/x.js", linkExternal},
		{"/index.html", linkInternal},
		{"../a.html", linkInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, classifyLink(tt.link), tt.link)
	}

	target, ok := resolveInternal("/site", "/site/a/b/page.html", "/x/y.html#frag")
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/site/x/y.html"), target)

	target, ok = resolveInternal("/site", "/site/a/b/page.html", "../c.html?q=1")
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/site/a/c.html"), target)

	target, ok = resolveInternal("/site", "/site/a/page.html", "/../styles.css")
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/site/styles.css"), target)

	target, ok = resolveInternal("/site", "/site/page.html", "../secret.txt")
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/site/secret.txt"), target)

	target, ok = resolveInternal("/site", "/site/a/b/page.html", "../../../../c.html")
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/site/c.html"), target)

	_, ok = resolveInternal("/site", "/site/page.html", "?only=query")
	assert.False(t, ok)

	assert.Equal(t, "https://cdn.example.id/x.js", externalURL("//cdn.example.id/x.js"))
}
