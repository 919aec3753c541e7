package apperrors

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrEmptyBatch     = errors.New("batch must contain at least one user and one signal")
	ErrNegativeSignal = errors.New("negative signal result in case batch")
)
