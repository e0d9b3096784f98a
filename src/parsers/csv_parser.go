// backend/src/parsers/csv_parser.go
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/username/agriarche/backend/src/models"
)

// CSVParser reads comma-separated agent exports.
type CSVParser struct{}

// NewCSVParser creates a new instance of the CSVParser.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads the header row and maps every following row onto it.
// Rows shorter than the header keep the missing cells empty; extra cells
// are dropped. Completely empty rows are skipped.
func (p *CSVParser) Parse(file io.Reader) ([]string, []models.RawRecord, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields per record
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("csv parser: failed to read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv parser: failed to read records: %w", err)
	}

	var rows []models.RawRecord
	for _, record := range records {
		row := make(models.RawRecord, len(columns))
		empty := true
		for i, col := range columns {
			if i < len(record) {
				value := strings.TrimSpace(record[i])
				row[col] = value
				if value != "" {
					empty = false
				}
			} else {
				row[col] = ""
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return columns, rows, nil
}
