// backend/src/parsers/xlsx_parser.go
package parsers

import (
	"fmt"
	"io"
	"strings"

	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
	"github.com/xuri/excelize/v2"
)

// XLSXParser reads Excel workbooks, which is what both the field team and
// the scraping pipeline actually deliver. Only the first sheet is read.
type XLSXParser struct{}

// NewXLSXParser creates a new instance of the XLSXParser.
func NewXLSXParser() *XLSXParser {
	return &XLSXParser{}
}

// Parse reads the first sheet of the workbook. The first non-empty row is
// treated as the header; every following row is mapped onto it the same way
// the CSV parser does.
func (p *XLSXParser) Parse(file io.Reader) ([]string, []models.RawRecord, error) {
	wb, err := excelize.OpenReader(file)
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx parser: failed to open workbook: %w", err)
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil {
			logger.L.Warn("xlsx parser: failed to close workbook", "error", cerr)
		}
	}()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("xlsx parser: workbook has no sheets")
	}

	allRows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx parser: failed to read sheet %s: %w", sheets[0], err)
	}

	var columns []string
	var rows []models.RawRecord
	for _, cells := range allRows {
		if columns == nil {
			if rowEmpty(cells) {
				continue
			}
			columns = make([]string, len(cells))
			for i, cell := range cells {
				columns[i] = strings.TrimSpace(cell)
			}
			continue
		}
		if rowEmpty(cells) {
			continue
		}
		row := make(models.RawRecord, len(columns))
		for i, col := range columns {
			if i < len(cells) {
				row[col] = strings.TrimSpace(cells[i])
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	if columns == nil {
		return nil, nil, fmt.Errorf("xlsx parser: sheet %s has no header row", sheets[0])
	}
	return columns, rows, nil
}

func rowEmpty(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
