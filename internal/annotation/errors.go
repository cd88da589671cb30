// Package annotation holds the span and field annotation model for one document and its
// persisted snapshot form.
package annotation

import "errors"

var (
	// ErrInvalidRange is returned for start < 0 or start >= end. The set is left unchanged.
	ErrInvalidRange = errors.New("invalid range")
	// ErrUnknownIndicator is returned for a comment on a name outside the indicator order.
	ErrUnknownIndicator = errors.New("unknown indicator")
	// ErrModeDisabled is returned for edits of an annotation kind that is not being reviewed.
	ErrModeDisabled = errors.New("annotation mode disabled")
)
