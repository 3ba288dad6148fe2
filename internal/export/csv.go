package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csv.NewWriter(w))); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteCSVFile writes rows to path, creating missing parent directories.
func WriteCSVFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV parses rows written by WriteCSV. Columns are matched by header
// name, so extra or reordered columns are fine.
func ReadCSV(r io.Reader) ([]Row, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

// table renders rows as a header plus string cells, in CSV column order.
func table(rows []Row) ([][]string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	return csv.NewReader(&buf).ReadAll()
}
