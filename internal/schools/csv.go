package schools

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Columns is the canonical column order of the schools CSV.
var Columns = []string{
	"npsn",
	"nama",
	"bentuk_pendidikan",
	"status",
	"alamat",
	"kelurahan",
	"kecamatan",
	"kab_kota",
	"provinsi",
	"lat",
	"lon",
	"updated_at",
	"telepon",
	"email",
}

// Get returns the value of the named column, or "" for unknown columns.
func (s *School) Get(column string) string {
	if p := s.field(column); p != nil {
		return *p
	}
	return ""
}

// Set assigns the named column. Unknown columns are ignored.
func (s *School) Set(column, value string) {
	if p := s.field(column); p != nil {
		*p = value
	}
}

func (s *School) field(column string) *string {
	switch column {
	case "npsn":
		return &s.NPSN
	case "nama":
		return &s.Nama
	case "bentuk_pendidikan":
		return &s.BentukPendidikan
	case "status":
		return &s.Status
	case "alamat":
		return &s.Alamat
	case "kelurahan":
		return &s.Kelurahan
	case "kecamatan":
		return &s.Kecamatan
	case "kab_kota":
		return &s.KabKota
	case "provinsi":
		return &s.Provinsi
	case "lat":
		return &s.Lat
	case "lon":
		return &s.Lon
	case "updated_at":
		return &s.UpdatedAt
	case "telepon":
		return &s.Telepon
	case "email":
		return &s.Email
	default:
		return nil
	}
}

// ReadCSV parses a header-led schools CSV. Columns are matched by header
// name, unknown columns are ignored, short rows leave the remaining fields
// empty and values are trimmed. Blank lines are skipped.
func ReadCSV(r io.Reader) ([]School, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []School{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records []School
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		var s School
		for i, column := range header {
			if i < len(row) {
				s.Set(column, strings.TrimSpace(row[i]))
			}
		}
		records = append(records, s)
	}

	if records == nil {
		records = []School{}
	}
	return records, nil
}

// ParseCSV parses schools CSV content.
func ParseCSV(data []byte) ([]School, error) {
	return ReadCSV(bytes.NewReader(data))
}

// WriteCSV writes records with the canonical header.
func WriteCSV(w io.Writer, records []School) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	row := make([]string, len(Columns))
	for i := range records {
		for j, column := range Columns {
			row[j] = records[i].Get(column)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// MarshalCSV renders records as CSV bytes.
func MarshalCSV(records []School) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
