package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrCompanyScopeMissing indicates a request reached a service without tenant scope.
	ErrCompanyScopeMissing = errors.New("company scope missing from context")
)
