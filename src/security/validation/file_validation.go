package validation

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/username/agriarche/backend/src/logger"
)

// AllowedClientContentTypes is a map for quick lookup of allowed
// client-declared MIME types. Both CSV and XLSX uploads are accepted.
var AllowedClientContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true, // often used for CSV by older Excel
	"text/plain":               true, // CSVs are frequently plain text
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true, // .xlsx
	"application/octet-stream":                                          true, // browsers fall back to this for .xlsx
}

// zipMagic is the local-file-header signature every XLSX (ZIP container)
// starts with.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// ValidateClientContentType checks the Content-Type header provided by the
// client.
func ValidateClientContentType(contentType string) error {
	mime := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if allowed, exists := AllowedClientContentTypes[mime]; !exists || !allowed {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for upload", contentType)
	}
	return nil
}

// isBinaryContent checks if a buffer contains binary control characters (like
// null bytes) which indicate the file is not a valid text-based CSV.
func isBinaryContent(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return true
	}
	if !utf8.Valid(buf) {
		return true
	}
	return false
}

// ValidateFileContentByMagicBytes checks the actual file content signature.
// XLSX files are recognized by the ZIP magic; everything else must look like
// text for the CSV parser. The reader is rewound before returning.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 1024)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	buffer = buffer[:n]

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind file after content check: %w", err)
	}

	if bytes.HasPrefix(buffer, zipMagic) {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
	}

	if isBinaryContent(buffer) {
		logger.L.Warn("Uploaded file contains binary content but is not an XLSX container")
		return "", fmt.Errorf("file content is not a recognized spreadsheet or text format")
	}

	detected := http.DetectContentType(buffer)
	return detected, nil
}
