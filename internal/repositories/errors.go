package repositories

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrSourceMissing means a read-only dataset file is not deployed.
	ErrSourceMissing = errors.New("dataset source missing")
)

// IsNotFoundError reports both our sentinel and gorm's.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
