// Package dataset checks that a local training file can be parsed before it
// is uploaded.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/acolita/train-wizard/internal/adapters/realfs"
	"github.com/acolita/train-wizard/internal/ports"
)

// Format is a supported dataset file type.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatExcel Format = "excel"
)

// ErrorKind categorizes a validation failure.
type ErrorKind int

const (
	UnsupportedFormat ErrorKind = iota
	ParseError
)

func (k ErrorKind) String() string {
	switch k {
	case UnsupportedFormat:
		return "unsupported format"
	case ParseError:
		return "parse error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ValidationError reports why a dataset was rejected.
type ValidationError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dataset %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Hint returns a remediation text.
func (e *ValidationError) Hint() string {
	if e.Kind == UnsupportedFormat {
		return "Choose a .csv, .txt (tab separated), .xlsx or .xls file."
	}
	return "The file could not be read as a table. Check the delimiter, the header row and the encoding (UTF-8)."
}

// Schema summarizes a parsed dataset.
type Schema struct {
	Name    string
	Format  Format
	Columns []string
	Rows    int
}

var errNoHeader = errors.New("file has no header row")

// FormatFor maps a file extension to a format.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, true
	case ".txt":
		return FormatTSV, true
	case ".xlsx", ".xls":
		return FormatExcel, true
	default:
		return "", false
	}
}

// Validate parses the file at path and returns its schema. An optional
// FileSystem replaces the real one.
func Validate(path string, fsys ...ports.FileSystem) (*Schema, error) {
	var f ports.FileSystem = realfs.New()
	if len(fsys) > 0 && fsys[0] != nil {
		f = fsys[0]
	}

	format, ok := FormatFor(path)
	if !ok {
		return nil, &ValidationError{Kind: UnsupportedFormat, Path: path,
			Err: fmt.Errorf("extension %q", filepath.Ext(path))}
	}

	file, err := f.Open(path)
	if err != nil {
		return nil, &ValidationError{Kind: ParseError, Path: path, Err: err}
	}
	defer file.Close()

	var columns []string
	var rows int
	switch format {
	case FormatCSV:
		columns, rows, err = readDelimited(file, ',')
	case FormatTSV:
		columns, rows, err = readDelimited(file, '\t')
	case FormatExcel:
		columns, rows, err = readWorkbook(file)
	}
	if err != nil {
		return nil, &ValidationError{Kind: ParseError, Path: path, Err: err}
	}

	schema := &Schema{Name: filepath.Base(path), Format: format, Columns: columns, Rows: rows}
	slog.Debug("dataset validated",
		slog.String("name", schema.Name),
		slog.Int("columns", len(columns)),
		slog.Int("rows", rows))
	return schema, nil
}

func readDelimited(r io.Reader, comma rune) ([]string, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	if comma == '\t' {
		cr.LazyQuotes = true
	}

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, errNoHeader
	}
	if err != nil {
		return nil, 0, err
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	rows := 0
	for {
		_, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		rows++
	}
	return header, rows, nil
}

// readWorkbook reads the first sheet. Legacy BIFF .xls files are not
// understood by excelize and fail here.
func readWorkbook(r io.Reader) ([]string, int, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, 0, err
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, errors.New("workbook has no sheets")
	}
	data, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, 0, err
	}
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, 0, errNoHeader
	}
	return data[0], len(data) - 1, nil
}
