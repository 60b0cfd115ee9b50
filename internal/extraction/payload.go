package extraction

import (
	"strconv"

	"github.com/jkiprotich/medcase-pipeline/internal/models"
)

// BuildPayload groups uploaded storage keys by source index, preserving each
// document's page order, and attaches supplementary text only when non-empty.
// Assets arrive already ordered by the upload stage, so appending per key
// keeps pages in order without re-sorting.
func BuildPayload(assets []models.UploadedAsset, supplementary string) models.ClinicalDataPayload {
	clinical := make(map[string][]string)

	for _, asset := range assets {
		key := strconv.Itoa(asset.SourceIndex)
		clinical[key] = append(clinical[key], asset.StorageKey)
	}

	return models.ClinicalDataPayload{
		ClinicalData:      clinical,
		SupplementaryText: supplementary,
	}
}
