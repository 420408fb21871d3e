package utils

import (
	"github.com/google/uuid"
)

// GenerateUUID generates a new UUID string
func GenerateUUID() string {
	return uuid.New().String()
}

// NewRefreshID returns a time-ordered identifier for a refresh attempt.
// Falls back to a random UUID if the v7 clock source fails.
func NewRefreshID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return GenerateUUID()
	}
	return id.String()
}
