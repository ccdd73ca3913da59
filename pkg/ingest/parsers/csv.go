package parsers

import (
	"encoding/csv"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"
)

// CSVOptions tunes ParseCSV.
type CSVOptions struct {
	// DateColumns are converted with ParseTime instead of type inference.
	DateColumns []string
	// Delimiter defaults to ','.
	Delimiter rune
}

// ParseCSV yields each row as a column-name-keyed map. The sequence is
// finite and restartable: every iteration re-opens the file. Values go
// through best-effort type inference (bool, int, float, null tokens),
// date columns through ParseTime.
func ParseCSV(path string, opts CSVOptions) iter.Seq2[map[string]interface{}, error] {
	dateCols := make(map[string]struct{}, len(opts.DateColumns))
	for _, c := range opts.DateColumns {
		dateCols[c] = struct{}{}
	}

	return func(yield func(map[string]interface{}, error) bool) {
		file, err := os.Open(path)
		if err != nil {
			yield(nil, &ParseError{Path: path, Err: err})
			return
		}
		defer file.Close()

		reader := csv.NewReader(file)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.FieldsPerRecord = -1

		header, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(nil, &ParseError{Path: path, Err: err})
			return
		}

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				if !yield(nil, &ParseError{Path: path, Err: err}) {
					return
				}
				continue
			}

			row := make(map[string]interface{}, len(header))
			for i, col := range header {
				if i >= len(record) {
					row[col] = nil
					continue
				}
				if _, isDate := dateCols[col]; isDate {
					if t, ok := ParseTime(record[i]); ok {
						row[col] = t
					} else {
						row[col] = nil
					}
					continue
				}
				row[col] = InferValue(record[i])
			}

			if !yield(row, nil) {
				return
			}
		}
	}
}

// InferValue converts a raw CSV cell to bool, int, float64, or nil for
// empty/null-like tokens, leaving anything else a string.
func InferValue(value string) interface{} {
	lower := strings.ToLower(value)
	switch lower {
	case "", "null", "none", "na", "n/a":
		return nil
	case "true", "yes", "1":
		return true
	case "false", "no", "0":
		return false
	}

	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return value
}
