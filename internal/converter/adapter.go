package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jkiprotich/medcase-pipeline/internal/extractor"
	"github.com/jkiprotich/medcase-pipeline/internal/models"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
)

// SavedFile is one raw upload already written into the request workspace,
// tagged with its position in the original input order.
type SavedFile struct {
	Index    int
	Filename string
	Path     string
	Kind     models.FileKind
}

// Adapter runs the conversion stage: every document-kind file becomes one
// ConvertedDocument, every text-kind file contributes to the supplementary
// notes instead.
type Adapter struct {
	converter Converter
	logger    *utils.Logger
}

func NewAdapter(converter Converter, logger *utils.Logger) *Adapter {
	return &Adapter{converter: converter, logger: logger}
}

// ConvertAll converts the document files in input order. Each document gets
// its own output subdirectory, so images never mix across documents and the
// source index survives any converter naming scheme. The stage is
// all-or-nothing: one converter failure discards the whole set, because a
// partial document set would produce a misleading extraction result.
func (a *Adapter) ConvertAll(ctx context.Context, files []SavedFile, convertedDir string) ([]models.ConvertedDocument, error) {
	var docs []models.ConvertedDocument

	for _, f := range files {
		if f.Kind != models.KindDocument {
			continue
		}

		if err := PreflightPDF(f.Path); err != nil {
			return nil, err
		}

		outDir := filepath.Join(convertedDir, fmt.Sprintf("doc_%03d", f.Index))
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output dir for %s: %w", f.Filename, err)
		}

		images, err := a.converter.Convert(ctx, f.Path, outDir)
		if err != nil {
			return nil, err
		}

		a.logger.Info("Converted document", "filename", f.Filename, "source_index", f.Index, "pages", len(images))

		docs = append(docs, models.ConvertedDocument{
			SourceIndex: f.Index,
			ImagePaths:  images,
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no convertible documents in request")
	}

	return docs, nil
}

// SupplementaryText concatenates the text-kind files in input order, after
// any notes submitted with the request itself. Files that fail to decode are
// skipped with a warning rather than failing the run; notes are an additive
// signal, not part of the document set.
func (a *Adapter) SupplementaryText(files []SavedFile, notes string) string {
	parts := []string{}
	if strings.TrimSpace(notes) != "" {
		parts = append(parts, strings.TrimSpace(notes))
	}

	for _, f := range files {
		if f.Kind != models.KindText {
			continue
		}

		data, err := os.ReadFile(f.Path)
		if err != nil {
			a.logger.Warn("Failed to read text file", "filename", f.Filename, "error", err)
			continue
		}

		text, err := extractor.ExtractText(data)
		if err != nil {
			a.logger.Warn("Failed to decode text file", "filename", f.Filename, "error", err)
			continue
		}

		parts = append(parts, text)
	}

	return strings.Join(parts, "\n\n")
}
