package domain

import "errors"

// Storage sentinels shared by repository implementations.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
