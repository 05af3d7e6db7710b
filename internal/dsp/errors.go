package dsp

import "errors"

// Error taxonomy for the numeric pipeline. Construction failures are
// ErrInvalidConfig and produce no partially valid object. Per-call
// failures are ErrInvalidInput and leave state and output buffers
// untouched. ErrUninitialized guards zero-value instances and should
// be unreachable once a constructor has succeeded.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUninitialized = errors.New("not initialized")
)
