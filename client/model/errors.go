package model

import "errors"

// Error kinds surfaced synchronously to the caller of a user action.
var (
	ErrNotConnected      = errors.New("transport is not connected")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrDescriptorCompute = errors.New("unable to compute file descriptor")
)
