package models

import "errors"

var (
	ErrImportJobNotFound  = errors.New("import job not found")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrLineNotPending     = errors.New("import line is no longer pending")
	ErrMappingConflict    = errors.New("supplier sku is mapped to a different product")
	ErrReviewConflict     = errors.New("review item already exists with a different decision")
	ErrMalformedLine      = errors.New("malformed input")
)
