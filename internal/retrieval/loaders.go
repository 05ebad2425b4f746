package retrieval

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SupportedExtensions lists the document types the knowledge base ingests.
var SupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".html": true,
	".htm":  true,
}

// IsSupported reports whether path has an ingestible extension.
func IsSupported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// LoadFile reads a document and returns its text.
func LoadFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch ext {
	case ".csv":
		return csvToText(f)
	case ".html", ".htm":
		return HTMLToText(f)
	default:
		data, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// csvToText renders each row as "header: value" pairs, one row per
// paragraph, so rows survive splitting intact.
func csvToText(r io.Reader) (string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read csv header: %w", err)
	}

	var sb strings.Builder
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read csv row: %w", err)
		}
		for i, v := range row {
			name := fmt.Sprintf("column_%d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				name = strings.TrimSpace(header[i])
			}
			sb.WriteString(name + ": " + strings.TrimSpace(v) + "\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
