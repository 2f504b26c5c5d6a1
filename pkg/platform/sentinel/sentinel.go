package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and the pool return
// these (optionally wrapped) so the runtime and handlers can translate them
// into domain outcomes:
// - ErrNotFound: no pending request, binding, or cache entry for the key
// - ErrConflict: a concurrent writer won (e.g. serialization failure)
// - ErrExpired: a cached entry or admitted transaction outlived its window
// - ErrUnavailable: a backing service is down or its circuit is open
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
