// backend/src/parsers/interfaces.go
package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/username/agriarche/backend/src/models"
)

// Parser reads one tabular upload into its column names (in source order)
// and untyped rows. Column order matters downstream: the field normalizer
// resolves header-mapping conflicts first-match-wins.
type Parser interface {
	Parse(file io.Reader) (columns []string, rows []models.RawRecord, err error)
}

// GetParser selects a parser from the uploaded filename's extension.
// CSV is the default for unknown extensions because agent exports are
// frequently renamed text files.
func GetParser(filename string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return NewXLSXParser(), nil
	case ".csv", ".txt", "":
		return NewCSVParser(), nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}
}
