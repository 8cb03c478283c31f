package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrArchiveNotConfigured = errors.New("job archive not configured")
	ErrJobIDRequired        = errors.New("job id is required")
)
