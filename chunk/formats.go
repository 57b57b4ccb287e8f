// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package chunk

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies how a source file is sliced into chunks.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatCSV
	FormatTSV
	FormatXLSX
	FormatText
)

// ErrUnsupportedFormat is returned for source files the chunker cannot read.
var ErrUnsupportedFormat = errors.New("chunk: unsupported source format")

// ErrNoRecords is returned when a structured source yields no items.
var ErrNoRecords = errors.New("chunk: source contains no records")

// DetectFormat maps a file path to its chunking format. Markup and pdf
// sources are treated as plain text.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".xlsx":
		return FormatXLSX
	case ".txt", ".md", ".html", ".xml", ".pdf":
		return FormatText
	default:
		return FormatUnknown
	}
}

// readJSONRecords extracts the item list from a JSON source: a top-level
// array, or the first array-valued field of a top-level object.
func readJSONRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrNoRecords
	}

	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	// Preserve field order so "first array-valued field" is deterministic
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("chunk: JSON source is neither array nor object")
	}

	for decoder.More() {
		if _, err := decoder.Token(); err != nil {
			return nil, err
		}
		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return nil, err
		}
		valueTrimmed := bytes.TrimSpace(value)
		if len(valueTrimmed) > 0 && valueTrimmed[0] == '[' {
			var records []json.RawMessage
			if err := json.Unmarshal(valueTrimmed, &records); err != nil {
				return nil, err
			}
			return records, nil
		}
	}
	return nil, ErrNoRecords
}

// ArrayField reports the name of the object field a JSON source's records
// were read from. Returns ok=false for top-level arrays and anything that
// is not a JSON object with an array-valued field.
func ArrayField(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := decoder.Token(); err != nil {
		return "", false
	}

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return "", false
		}
		name, ok := token.(string)
		if !ok {
			return "", false
		}
		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return "", false
		}
		valueTrimmed := bytes.TrimSpace(value)
		if len(valueTrimmed) > 0 && valueTrimmed[0] == '[' {
			return name, true
		}
	}
	return "", false
}

// readDelimitedRecords converts csv/tsv rows to JSON objects keyed by the
// header row.
func readDelimitedRecords(data []byte, comma rune) ([]json.RawMessage, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrNoRecords
	}
	return rowsToRecords(rows)
}

// readXLSXRecords converts the first sheet of a workbook to JSON objects
// keyed by the header row.
func readXLSXRecords(data []byte) ([]json.RawMessage, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoRecords
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, ErrNoRecords
	}
	return rowsToRecords(rows)
}

func rowsToRecords(rows [][]string) ([]json.RawMessage, error) {
	header := rows[0]
	records := make([]json.RawMessage, 0, len(rows)-1)

	for _, row := range rows[1:] {
		record := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			} else {
				record[name] = ""
			}
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}
		records = append(records, encoded)
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return records, nil
}
