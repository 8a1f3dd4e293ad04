package images

import (
	"math"

	"productimages/internal/models"
)

// ComputeStats projects the full collection. catalogSize is the number of
// catalog items used as the coverage denominator.
func ComputeStats(images []models.ProductImage, catalogSize int) models.ImageStats {
	st := models.ImageStats{
		Total:          len(images),
		ByUploaderType: make(map[models.UploaderType]int, len(models.UploaderTypes)),
		ByStatus:       make(map[models.Status]int),
		CatalogItems:   catalogSize,
	}
	for _, t := range models.UploaderTypes {
		st.ByUploaderType[t] = 0
	}

	linked := make(map[string]struct{})
	for _, img := range images {
		st.ByUploaderType[img.UploaderType]++
		st.ByStatus[img.Status]++
		st.OriginalBytes += img.OriginalSize
		st.CompressedBytes += img.CompressedSize

		if img.Status == models.StatusPending {
			st.PendingApproval++
		}
		if !img.IsLinkedToProduct && img.Status != models.StatusArchived {
			st.Unmatched++
		}
		if img.IsLinkedToProduct && img.PartNumber != "" && img.Status.Live() {
			linked[img.PartNumber] = struct{}{}
		}
	}

	st.LinkedParts = len(linked)
	if catalogSize > 0 {
		pct := int(math.Round(float64(st.LinkedParts) / float64(catalogSize) * 100))
		if pct > 100 {
			pct = 100
		}
		st.CoveragePercent = pct
	}
	return st
}
