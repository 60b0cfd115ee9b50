package converter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PreflightPDF rejects unreadable or empty PDFs before the external converter
// is invoked, so a corrupt upload fails fast with a useful message instead of
// an opaque converter exit code. Non-PDF inputs pass through untouched.
func PreflightPDF(path string) error {
	if strings.ToLower(filepath.Ext(path)) != ".pdf" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%s is not a readable PDF: %w", filepath.Base(path), err)
	}

	if reader.NumPage() == 0 {
		return fmt.Errorf("%s has no pages", filepath.Base(path))
	}

	return nil
}
