// Package freshness reports how current the schools CSV is and how
// complete its records are.
package freshness

import (
	"context"
	"fmt"
	"io"
	"math"
	"regexp"
	"time"

	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/schools"
	"github.com/sulhimaskom/sekolah-pseo-sub000/internal/storage"
)

// DefaultMaxAgeDays is the age after which data is stale.
const DefaultMaxAgeDays = 7

const dateLayout = "2006-01-02"

var (
	datePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	numericPattern = regexp.MustCompile(`^\d+$`)
)

// Metric is a count and its share of all records, in percent.
type Metric struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Quality counts records carrying each kind of data.
type Quality struct {
	TotalRecords int    `json:"totalRecords"`
	Coordinates  Metric `json:"coordinates"`
	Address      Metric `json:"address"`
	NPSN         Metric `json:"npsn"`
	Province     Metric `json:"province"`
}

// Result is a freshness report.
type Result struct {
	Exists      bool      `json:"exists"`
	Date        string    `json:"date,omitempty"`
	DaysAgo     *int      `json:"daysAgo"`
	RecordCount int       `json:"recordCount"`
	IsFresh     bool      `json:"isFresh"`
	Quality     *Quality  `json:"quality,omitempty"`
	MaxAgeDays  int       `json:"maxAgeDays"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// Check reads the schools CSV at path. A missing file is reported, not
// returned as an error; read and parse failures are errors.
func Check(ctx context.Context, fs *storage.GuardedFS, path string, maxAgeDays int, now time.Time) (*Result, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	result := &Result{MaxAgeDays: maxAgeDays, CheckedAt: now}

	exists, err := fs.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to check data freshness: %w", err)
	}
	if !exists {
		return result, nil
	}
	result.Exists = true

	data, err := fs.ReadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to check data freshness: %w", err)
	}
	records, err := schools.ParseCSV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to check data freshness: %w", err)
	}

	result.RecordCount = len(records)
	result.Quality = Measure(records)

	latest, ok := MostRecent(records)
	if !ok {
		return result, nil
	}
	days := DaysBetween(latest, now)
	result.Date = latest.Format(dateLayout)
	result.DaysAgo = &days
	result.IsFresh = days <= maxAgeDays
	return result, nil
}

// MostRecent returns the latest well-formed updated_at among records.
func MostRecent(records []schools.School) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, s := range records {
		if !datePattern.MatchString(s.UpdatedAt) {
			continue
		}
		t, err := time.Parse(dateLayout, s.UpdatedAt)
		if err != nil {
			continue
		}
		if !found || t.After(latest) {
			latest, found = t, true
		}
	}
	return latest, found
}

// DaysBetween returns the whole days elapsed from date to now.
func DaysBetween(date, now time.Time) int {
	return int(math.Floor(now.Sub(date).Hours() / 24))
}

// Measure computes quality metrics over records.
func Measure(records []schools.School) *Quality {
	q := &Quality{TotalRecords: len(records)}
	for _, s := range records {
		if s.HasCoordinates() {
			q.Coordinates.Count++
		}
		if s.Alamat != "" {
			q.Address.Count++
		}
		if numericPattern.MatchString(s.NPSN) {
			q.NPSN.Count++
		}
		if s.Provinsi != "" {
			q.Province.Count++
		}
	}
	for _, m := range []*Metric{&q.Coordinates, &q.Address, &q.NPSN, &q.Province} {
		m.Percentage = percentage(m.Count, q.TotalRecords)
	}
	return q
}

func percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}

// WriteText writes the human-readable report.
func (r *Result) WriteText(w io.Writer, verbose bool) {
	if !r.Exists {
		fmt.Fprintln(w, "No schools.csv found. Run ETL first.")
		return
	}

	date, days := "unknown", "unknown"
	if r.Date != "" {
		date = r.Date
	}
	if r.DaysAgo != nil {
		days = fmt.Sprint(*r.DaysAgo)
	}

	fmt.Fprintln(w, "=== Data Freshness Report ===")
	fmt.Fprintf(w, "Last Update: %s (%s days ago)\n", date, days)
	fmt.Fprintf(w, "Record Count: %d\n", r.RecordCount)
	status := "STALE"
	if r.IsFresh {
		status = "FRESH"
	}
	fmt.Fprintf(w, "Status: %s\n", status)

	if verbose && r.Quality != nil {
		q := r.Quality
		fmt.Fprintln(w, "\n=== Data Quality Metrics ===")
		fmt.Fprintf(w, "Total Records: %d\n", q.TotalRecords)
		fmt.Fprintf(w, "With Coordinates: %d (%.2f%%)\n", q.Coordinates.Count, q.Coordinates.Percentage)
		fmt.Fprintf(w, "With Address: %d (%.2f%%)\n", q.Address.Count, q.Address.Percentage)
		fmt.Fprintf(w, "With NPSN: %d (%.2f%%)\n", q.NPSN.Count, q.NPSN.Percentage)
		fmt.Fprintf(w, "With Province: %d (%.2f%%)\n", q.Province.Count, q.Province.Percentage)
	}

	if !r.IsFresh {
		fmt.Fprintf(w, "\nData is stale! Last update was %s days ago (threshold: %d days)\n", days, r.MaxAgeDays)
		return
	}
	fmt.Fprintln(w, "\nData is fresh")
}
