package redaction

import "errors"

var (
	// ErrInvalidParameter is returned for parameters no strategy can work with
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrDetection wraps failures of the detector handle
	ErrDetection = errors.New("detection failed")
)
