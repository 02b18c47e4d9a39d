package store

import (
	"fmt"
	"time"

	"capturebox/internal/models"
)

// UnknownImageError is returned by ReorderCaptureImages when a submitted key
// does not identify an image of the target capture. No order changes are
// applied when this happens.
type UnknownImageError struct {
	UUID string
}

func (e *UnknownImageError) Error() string {
	return fmt.Sprintf("Image %s does not belong to this capture", e.UUID)
}

// Store defines the interface for all database operations. Every capture and
// image lookup is scoped to the owning user; a non-owned row resolves exactly
// like a nonexistent one (sql.ErrNoRows).
type Store interface {
	// Users
	CreateUser(username, passwordHash string) error
	GetUserByUsername(username string) (int, string, error)
	GetUserID(username string) (int, error)

	// Captures
	CreateCapture(ownerID int) (models.Capture, error)
	GetCapture(ownerID int, shortUUID string) (models.Capture, error)
	ListCaptures(ownerID int) ([]models.Capture, error)
	UpdateTranscript(ownerID int, shortUUID, transcript string) error
	CompleteCapture(ownerID int, shortUUID string) (int, error) // returns image count
	DeleteCapture(ownerID int, shortUUID string) ([]string, error) // returns filenames for disk cleanup
	GetCapturesByTimeRange(ownerID int, start, end time.Time) ([]models.Capture, error)

	// Capture images
	CaptureImageStats(captureID int) (count, maxOrder int, err error) // maxOrder is -1 when empty
	AddCaptureImage(img models.CaptureImage) (models.CaptureImage, error)
	GetCaptureImages(captureID int) ([]models.CaptureImage, error)
	ReorderCaptureImages(captureID int, uuids []string) (int, error)
	DeleteCaptureImage(ownerID int, captureShort, imageShort string) (string, error)
	UserOwnsImageFile(ownerID int, filename string) (bool, error)

	Close() error
}
