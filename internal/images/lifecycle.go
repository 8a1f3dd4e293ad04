package images

import (
	"errors"
	"fmt"

	"productimages/internal/models"
)

var (
	ErrNotFound             = errors.New("image not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrConfirmationRequired = errors.New("permanent delete requires confirmation")
)

type action string

const (
	actionApprove action = "approve"
	actionReject  action = "reject"
	actionArchive action = "archive"
	actionRestore action = "restore"
)

// InitialStatus is the status a freshly ingested image starts in. Supplier
// uploads always go through review.
func InitialStatus(uploader models.UploaderType) models.Status {
	if uploader.Privileged() {
		return models.StatusAutoMatched
	}
	return models.StatusPending
}

func nextStatus(from models.Status, a action) (models.Status, error) {
	switch a {
	case actionApprove:
		if from == models.StatusPending {
			return models.StatusApproved, nil
		}
	case actionReject:
		if from == models.StatusPending {
			return models.StatusRejected, nil
		}
	case actionArchive:
		if from != models.StatusArchived {
			return models.StatusArchived, nil
		}
	case actionRestore:
		if from == models.StatusArchived {
			return models.StatusPending, nil
		}
	}
	return from, fmt.Errorf("%w: cannot %s an image in %s", ErrInvalidTransition, a, from)
}

// Confirmation guards permanent deletion.
type Confirmation struct {
	Confirmed bool
}
