package etl

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is the file format of a raw dump.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// RawTable is a raw dump read into a header and string rows.
type RawTable struct {
	Format    Format
	Encoding  Encoding
	Delimiter rune
	Sheet     string
	Header    []string
	Rows      [][]string
}

// DetectFormat returns the format of the file at path, from its extension
// and, failing that, the zip signature excelize workbooks start with.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return FormatXLSX
	}
	return FormatCSV
}

// ReadRaw parses a raw dump. sheet selects an XLSX worksheet by name; the
// first sheet is used when it is empty.
func ReadRaw(path string, data []byte, sheet string) (*RawTable, error) {
	if DetectFormat(path, data) == FormatXLSX {
		return readXLSX(data, sheet)
	}
	return readCSV(data)
}

func readCSV(data []byte) (*RawTable, error) {
	enc := DetectEncoding(data)
	decoded, err := Decode(data, enc)
	if err != nil {
		return nil, err
	}

	table := &RawTable{
		Format:    FormatCSV,
		Encoding:  enc,
		Delimiter: DetectDelimiter(string(decoded)),
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = table.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return table, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	table.Header = header

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func readXLSX(data []byte, sheet string) (*RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Excel file: %w", err)
	}
	defer f.Close()

	name, err := selectSheet(f, sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", name, err)
	}

	table := &RawTable{Format: FormatXLSX, Encoding: EncodingUTF8, Sheet: name}
	if len(rows) == 0 {
		return table, nil
	}
	table.Header = rows[0]
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func selectSheet(f *excelize.File, sheet string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if sheet == "" {
		return sheets[0], nil
	}
	for _, name := range sheets {
		if name == sheet {
			return name, nil
		}
	}
	return "", fmt.Errorf("sheet %q not found. Available sheets: %s", sheet, strings.Join(sheets, ", "))
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
