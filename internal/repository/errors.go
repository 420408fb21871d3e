package repository

import "errors"

// Common repository errors
var (
	ErrGenerationConflict = errors.New("snapshot generation conflict")
	ErrInvalidSnapshot    = errors.New("invalid snapshot")
)
