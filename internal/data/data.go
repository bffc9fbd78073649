// Package data loads variable values from files referenced by a flow's
// data_files section, so long identifier lists can live outside the flow
// document.
package data

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmpty is returned for a file that holds no values.
var ErrEmpty = errors.New("data file is empty")

// Load reads a data file and returns its values as a list. Relative paths
// are resolved against baseDir, normally the directory of the flow file.
//
//   - .csv: the first row is the header; each further row becomes an object.
//   - .json: a top-level array; elements are kept as decoded.
//   - .txt: one value per line; blank lines and lines starting with # are
//     skipped.
func Load(path, baseDir string) ([]any, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var values []any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		values, err = parseCSV(raw)
	case ".json":
		values, err = parseJSON(raw)
	case ".txt", "":
		values = parseLines(raw)
	default:
		return nil, fmt.Errorf("unsupported file format %q (use .csv, .json or .txt)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return values, nil
}

func parseCSV(raw []byte) ([]any, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	headers := records[0]
	rows := make([]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseJSON(raw []byte) ([]any, error) {
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("JSON must be an array: %w", err)
	}
	return values, nil
}

func parseLines(raw []byte) []any {
	var values []any
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values = append(values, line)
	}
	return values
}
