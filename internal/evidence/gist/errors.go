package gist

import (
	"errors"
	"fmt"
)

// FetchKind classifies why a gist could not be fetched.
type FetchKind string

const (
	FetchNetwork   FetchKind = "network"
	FetchBadStatus FetchKind = "bad_status"
	FetchTimeout   FetchKind = "timeout"
)

// FetchError is returned by every Fetcher in this package.
type FetchError struct {
	Kind       FetchKind
	ResourceID string
	Status     int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchBadStatus:
		return fmt.Sprintf("fetch gist %s [%s]: status %d", e.ResourceID, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch gist %s [%s]: %v", e.ResourceID, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch gist %s [%s]", e.ResourceID, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseKind classifies why fetched content is not a usable gist.
type ParseKind string

const (
	ParseMalformed    ParseKind = "malformed"
	ParseMissingField ParseKind = "missing_field"
)

type ParseError struct {
	Kind  ParseKind
	Field string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse gist [%s]", e.Kind)
	}
	return fmt.Sprintf("parse gist [%s]: %s", e.Kind, e.Field)
}

// ErrCircuitOpen is wrapped in a network FetchError while the upstream is
// considered down.
var ErrCircuitOpen = errors.New("gist api circuit open")

// IsUpstreamFailure reports whether err says the gist API itself is unhealthy,
// as opposed to a bad resource id.
func IsUpstreamFailure(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case FetchNetwork, FetchTimeout:
		return true
	case FetchBadStatus:
		return fe.Status >= 500 || fe.Status == 429
	}
	return false
}
