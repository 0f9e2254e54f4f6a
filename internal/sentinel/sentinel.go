// Package sentinel holds infrastructure-level error facts. Stores return these
// (optionally wrapped) and callers translate them with errors.Is.
package sentinel

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
