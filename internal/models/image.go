package models

import "time"

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusAutoMatched Status = "AUTO_MATCHED"
	// StatusArchived is an administrative soft delete, distinct from a
	// reviewer rejection.
	StatusArchived Status = "ARCHIVED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusAutoMatched, StatusArchived:
		return true
	}
	return false
}

// Live reports whether an image in this state counts as the current image
// for its part number.
func (s Status) Live() bool {
	return s == StatusApproved || s == StatusAutoMatched
}

type UploaderType string

const (
	UploaderAdmin                 UploaderType = "ADMIN"
	UploaderSupplierLocal         UploaderType = "SUPPLIER_LOCAL"
	UploaderSupplierInternational UploaderType = "SUPPLIER_INTERNATIONAL"
	UploaderMarketer              UploaderType = "MARKETER"
)

var UploaderTypes = []UploaderType{
	UploaderAdmin,
	UploaderSupplierLocal,
	UploaderSupplierInternational,
	UploaderMarketer,
}

func (u UploaderType) Valid() bool {
	for _, t := range UploaderTypes {
		if t == u {
			return true
		}
	}
	return false
}

// Privileged uploaders skip review.
func (u UploaderType) Privileged() bool {
	return u == UploaderAdmin || u == UploaderMarketer
}

// Actor is injected by the calling context. The pipeline records it and
// never authenticates it.
type Actor struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"displayName"`
	UploaderType UploaderType `json:"uploaderType"`
}

type ProductImage struct {
	ID                string       `json:"id"`
	PartNumber        string       `json:"partNumber"`
	FileName          string       `json:"fileName"`
	FileURL           string       `json:"fileUrl"`
	ThumbnailURL      string       `json:"thumbnailUrl"`
	OriginalSize      int64        `json:"originalSize"`
	CompressedSize    int64        `json:"compressedSize"`
	Width             int          `json:"width"`
	Height            int          `json:"height"`
	Status            Status       `json:"status"`
	UploadedBy        string       `json:"uploadedBy"`
	UploaderType      UploaderType `json:"uploaderType"`
	UploaderName      string       `json:"uploaderName"`
	IsAutoMatched     bool         `json:"isAutoMatched"`
	IsLinkedToProduct bool         `json:"isLinkedToProduct"`
	AdminNotes        string       `json:"adminNotes,omitempty"`
	RejectionReason   string       `json:"rejectionReason,omitempty"`
	ArchiveNote       string       `json:"archiveNote,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	ApprovedAt        *time.Time   `json:"approvedAt,omitempty"`
	ApprovedBy        string       `json:"approvedBy,omitempty"`
	ArchivedAt        *time.Time   `json:"archivedAt,omitempty"`
	ArchivedBy        string       `json:"archivedBy,omitempty"`
}

type CatalogItem struct {
	Identifier  string `json:"identifier"`
	DisplayName string `json:"displayName"`
	Brand       string `json:"brand"`
}

// ImageStats is a projection of the image collection. It is recomputed on
// every mutation and never stored as a source of truth.
type ImageStats struct {
	Total           int                  `json:"total"`
	ByUploaderType  map[UploaderType]int `json:"byUploaderType"`
	ByStatus        map[Status]int       `json:"byStatus"`
	LinkedParts     int                  `json:"linkedParts"`
	CatalogItems    int                  `json:"catalogItems"`
	CoveragePercent int                  `json:"coveragePercent"`
	PendingApproval int                  `json:"pendingApproval"`
	Unmatched       int                  `json:"unmatched"`
	OriginalBytes   int64                `json:"originalBytes"`
	CompressedBytes int64                `json:"compressedBytes"`
}
