// Package etl turns a raw school dump into the canonical schools CSV.
package etl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/resilience"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
)

// ErrNoValidRecords is returned when a dump yields nothing to write.
var ErrNoValidRecords = errors.New("no valid records found after processing")

// aliases lists the accepted raw headers of each canonical column, in
// priority order. The first non-empty value wins.
var aliases = map[string][]string{
	"npsn":              {"npsn"},
	"nama":              {"nama", "nama_sekolah", "sekolah"},
	"bentuk_pendidikan": {"bentuk_pendidikan", "jenjang", "bentuk"},
	"status":            {"status", "status_sekolah"},
	"alamat":            {"alamat", "alamat_jalan"},
	"kelurahan":         {"kelurahan", "desa", "desa_kelurahan"},
	"kecamatan":         {"kecamatan"},
	"kab_kota":          {"kab_kota", "kabupaten", "kota", "kabupaten_kota"},
	"provinsi":          {"provinsi", "propinsi"},
	"lat":               {"lat", "latitude", "lintang"},
	"lon":               {"lon", "lng", "longitude", "bujur"},
	"telepon":           {"telepon", "no_telepon", "telp"},
	"email":             {"email"},
}

// Options configures an ETL run.
type Options struct {
	FS *storage.GuardedFS

	// RawPath is the raw CSV or XLSX dump.
	RawPath string
	// OutputPath is the canonical schools CSV to write.
	OutputPath string
	// Sheet selects an XLSX worksheet. Defaults to the first.
	Sheet string

	Now    func() time.Time
	Logger *zerolog.Logger
}

// Rejection describes a raw row that did not make it into the output.
type Rejection struct {
	Row    int    `json:"row"`
	NPSN   string `json:"npsn,omitempty"`
	Reason string `json:"reason"`
}

// Report summarises an ETL run.
type Report struct {
	Format     Format      `json:"format"`
	Encoding   Encoding    `json:"encoding"`
	Loaded     int         `json:"loaded"`
	Valid      int         `json:"valid"`
	Rejected   int         `json:"rejected"`
	Rejections []Rejection `json:"rejections,omitempty"`
	OutputPath string      `json:"outputPath"`
}

// Run reads the raw dump, normalises, sanitises and validates every row,
// stamps updated_at and writes the valid records to the output CSV. A run
// that yields no valid records fails with ErrNoValidRecords and writes
// nothing.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	logger := opts.Logger.With().Str("component", "etl").Logger()
	if opts.FS == nil {
		opts.FS = storage.New(storage.Options{Logger: opts.Logger})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	exists, err := opts.FS.Exists(ctx, opts.RawPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check raw data %s: %w", opts.RawPath, err)
	}
	if !exists {
		return nil, resilience.NewError(resilience.CodeFileRead, "etl",
			fmt.Sprintf("raw data file not found: %s", opts.RawPath), nil,
			map[string]any{"path": opts.RawPath})
	}

	data, err := opts.FS.ReadFile(ctx, opts.RawPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw data: %w", err)
	}
	table, err := ReadRaw(opts.RawPath, data, opts.Sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to parse raw data %s: %w", opts.RawPath, err)
	}

	report := &Report{
		Format:     table.Format,
		Encoding:   table.Encoding,
		Loaded:     len(table.Rows),
		Rejections: make([]Rejection, 0),
		OutputPath: opts.OutputPath,
	}
	logger.Info().
		Str("path", opts.RawPath).
		Str("format", string(table.Format)).
		Str("encoding", string(table.Encoding)).
		Int("records", report.Loaded).
		Msg("Loaded raw records")

	records := Transform(table, opts.Now(), report)
	report.Valid = len(records)
	report.Rejected = len(report.Rejections)
	logger.Info().Int("valid", report.Valid).Int("rejected", report.Rejected).Msg("Processed raw records")

	if len(records) == 0 {
		return report, ErrNoValidRecords
	}

	out, err := schools.MarshalCSV(records)
	if err != nil {
		return report, fmt.Errorf("failed to encode schools CSV: %w", err)
	}
	if err := opts.FS.MkdirAll(ctx, filepath.Dir(opts.OutputPath)); err != nil {
		return report, err
	}
	if err := opts.FS.WriteFile(ctx, opts.OutputPath, out); err != nil {
		return report, err
	}
	logger.Info().Str("path", opts.OutputPath).Int("records", len(records)).Msg("Wrote schools CSV")
	return report, nil
}

// Transform normalises every row of table and returns the valid records in
// input order. Rejected rows, including repeated NPSNs, are appended to
// report.Rejections.
func Transform(table *RawTable, now time.Time, report *Report) []schools.School {
	index := headerIndex(table.Header)
	stamp := now.Format("2006-01-02")
	seen := make(map[string]bool, len(table.Rows))

	records := make([]schools.School, 0, len(table.Rows))
	for i, row := range table.Rows {
		rowNumber := i + 2 // header is row 1
		s := Normalise(row, index)
		s.UpdatedAt = stamp

		if err := s.Validate(); err != nil {
			report.Rejections = append(report.Rejections, Rejection{Row: rowNumber, NPSN: s.NPSN, Reason: reason(err)})
			continue
		}
		if seen[s.NPSN] {
			report.Rejections = append(report.Rejections, Rejection{Row: rowNumber, NPSN: s.NPSN, Reason: "duplicate npsn"})
			continue
		}
		seen[s.NPSN] = true
		records = append(records, s)
	}
	return records
}

func reason(err error) string {
	var ie *resilience.IntegrationError
	if errors.As(err, &ie) {
		if fields, ok := ie.Details["fields"].([]string); ok && len(fields) > 0 {
			return ie.Message + " (" + strings.Join(fields, ", ") + ")"
		}
		return ie.Message
	}
	return err.Error()
}

// headerIndex maps each canonical column to the raw column indices of its
// aliases, in alias priority order.
func headerIndex(header []string) map[string][]int {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normaliseHeader(h)
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}

	index := make(map[string][]int, len(aliases))
	for column, names := range aliases {
		for _, name := range names {
			if pos, ok := positions[name]; ok {
				index[column] = append(index[column], pos)
			}
		}
	}
	return index
}

func normaliseHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/' || r == '.'
	}), "_")
}

// Normalise maps a raw row onto the canonical record.
func Normalise(row []string, index map[string][]int) schools.School {
	var s schools.School
	for column, positions := range index {
		for _, pos := range positions {
			if pos >= len(row) {
				continue
			}
			if v := Sanitize(row[pos]); v != "" {
				s.Set(column, v)
				break
			}
		}
	}
	s.Status = normaliseStatus(s.Status)
	s.Lat = strings.ReplaceAll(s.Lat, ",", ".")
	s.Lon = strings.ReplaceAll(s.Lon, ",", ".")
	return s
}

func normaliseStatus(status string) string {
	switch strings.ToUpper(status) {
	case "N", "NEGERI":
		return "N"
	case "S", "SWASTA":
		return "S"
	default:
		return status
	}
}

var stripControl = runes.Remove(runes.In(unicode.Cc))

// Sanitize composes v to NFC, collapses whitespace runs to one space,
// drops control characters and trims.
func Sanitize(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	out, _, err := transform.String(transform.Chain(norm.NFC, stripControl), v)
	if err != nil {
		return v
	}
	return strings.TrimSpace(out)
}
