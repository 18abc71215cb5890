package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/manifest"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/pages"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
)

const (
	projectDir = "/project"
	outputDir  = "/project/dist"
	schoolsCSV = "/project/data/schools.csv"
)

// failWriteFs rejects writes to any path containing match.
type failWriteFs struct {
	afero.Fs
	match string
}

func (f *failWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if strings.Contains(name, f.match) && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.EACCES}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func school(npsn, nama, prov, kab, kec string) schools.School {
	return schools.School{
		NPSN:             npsn,
		Nama:             nama,
		BentukPendidikan: "SD",
		Status:           "N",
		Alamat:           "Jl. Pendidikan",
		Kecamatan:        kec,
		KabKota:          kab,
		Provinsi:         prov,
	}
}

func fiveSchools() []schools.School {
	return []schools.School{
		school("20100001", "SD Negeri 1 Coblong", "Jawa Barat", "Kota Bandung", "Coblong"),
		school("20100002", "SD Negeri 2 Coblong", "Jawa Barat", "Kota Bandung", "Coblong"),
		school("20100003", "SMP Negeri 1 Coblong", "Jawa Barat", "Kota Bandung", "Coblong"),
		school("50100001", "SD Negeri 1 Kuta", "Bali", "Badung", "Kuta"),
		school("50100002", "SD Negeri 2 Kuta", "Bali", "Badung", "Kuta"),
	}
}

func newPipeline(t *testing.T, raw afero.Fs, incremental bool) *Pipeline {
	t.Helper()
	gfs := storage.New(storage.Options{Fs: raw, RetryDelay: time.Millisecond})
	return New(Options{
		FS:          gfs,
		Builder:     pages.NewBuilder(schools.NewSlugger(64), ""),
		OutputDir:   outputDir,
		SchoolsCSV:  schoolsCSV,
		Concurrency: 2,
		Incremental: incremental,
	})
}

func writeSchools(t *testing.T, raw afero.Fs, records []schools.School) {
	t.Helper()
	data, err := schools.MarshalCSV(records)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(raw, schoolsCSV, data, 0o644))
}

func TestWriteRecordsConcurrently_AllSucceed(t *testing.T) {
	raw := afero.NewMemMapFs()
	p := newPipeline(t, raw, false)
	records := fiveSchools()

	summary := p.WriteRecordsConcurrently(context.Background(), records, 2)

	assert.Equal(t, 5, summary.Successful)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Directories)
	assert.Len(t, summary.Written, 5)

	for _, s := range records {
		path := filepath.Join(outputDir, filepath.FromSlash(p.builder.RelativePath(s)))
		exists, err := afero.Exists(raw, path)
		require.NoError(t, err)
		assert.True(t, exists, "page for %s", s.NPSN)
		assert.Equal(t, manifest.ComputeHash(s), summary.Written[s.NPSN].Hash)
	}

	dirs, err := afero.ReadDir(raw, filepath.Join(outputDir, "provinsi"))
	require.NoError(t, err)
	assert.Len(t, dirs, 2)
}

func TestWriteRecordsConcurrently_InvalidRecordDoesNotAbort(t *testing.T) {
	raw := afero.NewMemMapFs()
	p := newPipeline(t, raw, false)

	valid := school("20100001", "SD Negeri 1 Coblong", "Jawa Barat", "Kota Bandung", "Coblong")
	invalid := school("20100002", "SD Tanpa Kabupaten", "Jawa Barat", "", "Coblong")

	summary := p.WriteRecordsConcurrently(context.Background(), []schools.School{invalid, valid}, 2)

	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "20100002", summary.Failures[0].NPSN)
	assert.ErrorIs(t, summary.Failures[0].Err, resilience.ErrValidation)
	assert.Contains(t, summary.Written, "20100001")
}

func TestWriteRecordsConcurrently_WriteFailureCounted(t *testing.T) {
	raw := &failWriteFs{Fs: afero.NewMemMapFs(), match: "50100001"}
	p := newPipeline(t, raw, false)

	summary := p.WriteRecordsConcurrently(context.Background(), fiveSchools(), 3)

	assert.Equal(t, 4, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.ErrorIs(t, summary.Failures[0].Err, resilience.ErrFileWrite)
	assert.Contains(t, summary.Failures[0].Path, "50100001-sd-negeri-1-kuta.html")
}

func TestWriteRecordsConcurrently_Empty(t *testing.T) {
	p := newPipeline(t, afero.NewMemMapFs(), false)
	summary := p.WriteRecordsConcurrently(context.Background(), nil, 4)
	assert.Zero(t, summary.Successful)
	assert.Zero(t, summary.Failed)
	assert.NotNil(t, summary.Written)
}

func TestWriteRecordsConcurrently_CancelledContext(t *testing.T) {
	p := newPipeline(t, afero.NewMemMapFs(), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := p.WriteRecordsConcurrently(ctx, fiveSchools(), 2)
	assert.Equal(t, 0, summary.Successful)
	assert.Equal(t, 5, summary.Failed)
}

func TestLoadSchools_MissingFileIsSystemic(t *testing.T) {
	p := newPipeline(t, afero.NewMemMapFs(), false)
	_, err := p.LoadSchools(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrFileRead)
}

func TestRun_MissingSchoolsFails(t *testing.T) {
	p := newPipeline(t, afero.NewMemMapFs(), true)
	_, err := p.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), schoolsCSV)
}

func TestRun_OutputRootFailureIsSystemic(t *testing.T) {
	raw := afero.NewReadOnlyFs(afero.NewMemMapFs())
	p := newPipeline(t, raw, false)
	_, err := p.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrFileWrite)
}

func TestRun_Incremental(t *testing.T) {
	ctx := context.Background()
	raw := afero.NewMemMapFs()
	records := fiveSchools()
	writeSchools(t, raw, records)
	p := newPipeline(t, raw, true)

	first, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, first.Total)
	assert.Equal(t, 0, first.Skipped)
	assert.Equal(t, 5, first.Successful)
	assert.True(t, strings.HasPrefix(first.BuildID, "bld_"))

	for _, name := range []string{pages.HomepageFile, pages.StylesheetFile} {
		exists, err := afero.Exists(raw, filepath.Join(outputDir, name))
		require.NoError(t, err)
		assert.True(t, exists, name)
	}

	second, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, second.Skipped)
	assert.Equal(t, 0, second.Successful)

	records[0].Alamat = "Jl. Baru"
	writeSchools(t, raw, records)
	third, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, third.Skipped)
	assert.Equal(t, 1, third.Successful)

	full, err := p.Run(ctx, RunOptions{Full: true})
	require.NoError(t, err)
	assert.Equal(t, 0, full.Skipped)
	assert.Equal(t, 5, full.Successful)

	m := manifest.NewStore(storage.New(storage.Options{Fs: raw}), projectDir, nil).Load(ctx)
	require.NotNil(t, m)
	assert.Len(t, m.Records, 5)
	assert.Equal(t, full.BuildID, m.BuildID)
}

func TestRun_FailedRecordsRebuiltNextTime(t *testing.T) {
	ctx := context.Background()
	records := fiveSchools()
	records[1].KabKota = ""

	raw := afero.NewMemMapFs()
	writeSchools(t, raw, records)
	p := newPipeline(t, raw, true)

	first, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, first.Successful)
	assert.Equal(t, 1, first.Failed)

	second, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, second.Skipped)
	assert.Equal(t, 1, second.Failed)
}

func TestRun_NonIncrementalWritesNoManifest(t *testing.T) {
	raw := afero.NewMemMapFs()
	writeSchools(t, raw, fiveSchools())
	p := newPipeline(t, raw, false)

	res, err := p.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Successful)

	exists, err := afero.Exists(raw, filepath.Join(projectDir, manifest.FileName))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_IndexPagesMakeTreeBrowsable(t *testing.T) {
	ctx := context.Background()
	raw := afero.NewMemMapFs()
	writeSchools(t, raw, fiveSchools())
	p := newPipeline(t, raw, true)

	res, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	// Two provinces, two regencies, two districts.
	assert.Equal(t, 6, res.Indexes)

	for _, rel := range []string{
		"provinsi/bali/index.html",
		"provinsi/bali/kabupaten/badung/index.html",
		"provinsi/jawa-barat/kabupaten/kota-bandung/kecamatan/coblong/index.html",
	} {
		exists, err := afero.Exists(raw, filepath.Join(outputDir, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.True(t, exists, rel)
	}

	v := newValidator(t, raw, ValidatorOptions{})
	report, err := v.ValidateOutputTree(ctx)
	require.NoError(t, err)
	assert.True(t, report.Passed, "broken: %v", report.BrokenInternal)

	second, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, second.Skipped)
	assert.Equal(t, 6, second.Indexes)
}
