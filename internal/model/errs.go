package model

import "errors"

// Sentinel error kinds. Callers use errors.Is to classify and
// fmt.Errorf("%w: ...", ...) to attach context, rather than a
// third-party error-stack library.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUpstreamAuth    = errors.New("upstream authentication required")
	ErrUpstreamTimeout = errors.New("upstream timed out")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrCrypto          = errors.New("crypto operation failed")
)
