package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawDump = "NPSN;Nama Sekolah;Bentuk Pendidikan;Status Sekolah;Alamat;Kecamatan;Kabupaten/Kota;Provinsi\n" +
	"20100001;SD Negeri 1 Coblong;SD;NEGERI;Jl. Dago 1;Coblong;Kota Bandung;Jawa Barat\n" +
	"20100002;SD Negeri 2 Coblong;SD;NEGERI;Jl. Dago 2;Coblong;Kota Bandung;Jawa Barat\n" +
	"50100001;SMP Swasta Kuta;SMP;SWASTA;Jl. Pantai;Kuta;Badung;Bali\n" +
	"bukan-npsn;Sekolah Tanpa NPSN;SD;NEGERI;;Kuta;Badung;Bali\n"

func setupProject(t *testing.T) (root, configPath string) {
	t.Helper()
	root = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "external"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "external", "raw.csv"), []byte(rawDump), 0o644))

	configPath = filepath.Join(root, "config.yaml")
	body := "paths:\n  root: " + root + "\nbuild:\n  concurrency: 4\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o644))
	return root, configPath
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return Execute(context.Background())
}

func TestCLI_EndToEnd(t *testing.T) {
	root, configPath := setupProject(t)

	require.NoError(t, execute(t, "--config", configPath, "etl"))
	assert.FileExists(t, filepath.Join(root, "data", "schools.csv"))

	require.NoError(t, execute(t, "--config", configPath, "build"))
	assert.FileExists(t, filepath.Join(root, "dist", "index.html"))
	assert.FileExists(t, filepath.Join(root, "dist", "styles.css"))
	assert.FileExists(t, filepath.Join(root, "dist", "provinsi", "bali", "index.html"))
	assert.FileExists(t, filepath.Join(root, ".build-manifest.json"))

	pages, err := filepath.Glob(filepath.Join(root, "dist", "provinsi", "*", "kabupaten", "*", "kecamatan", "*", "[0-9]*.html"))
	require.NoError(t, err)
	assert.Len(t, pages, 3)

	require.NoError(t, execute(t, "--config", configPath, "validate"))
	assert.FileExists(t, filepath.Join(root, "dist", "link-validation-report.txt"))

	require.NoError(t, execute(t, "--config", configPath, "sitemap"))
	assert.FileExists(t, filepath.Join(root, "dist", "sitemap-index.xml"))

	require.NoError(t, execute(t, "--config", configPath, "freshness"))

	require.NoError(t, execute(t, "--config", configPath, "manifest", "clear"))
	assert.NoFileExists(t, filepath.Join(root, ".build-manifest.json"))
}

func TestCLI_ValidateFailsOnBrokenLink(t *testing.T) {
	root, configPath := setupProject(t)
	dist := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(dist, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"),
		[]byte(`<html><body><a href="hilang.html">hilang</a></body></html>`), 0o644))

	err := execute(t, "--config", configPath, "validate")
	assert.ErrorIs(t, err, errExitCode)
}

func TestCLI_BuildWithoutSchoolsFails(t *testing.T) {
	_, configPath := setupProject(t)

	err := execute(t, "--config", configPath, "build")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errExitCode)
}

func TestCLI_FreshnessMissingFile(t *testing.T) {
	_, configPath := setupProject(t)

	err := execute(t, "--config", configPath, "freshness")
	assert.ErrorIs(t, err, errExitCode)
}
