package worker

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"idoracle/pkg/domain"
)

// FailureKind classifies why a pending request produced no response this
// round. Every kind leaves the request pending.
type FailureKind string

const (
	FailureFetch         FailureKind = "fetch"
	FailureParse         FailureKind = "parse"
	FailureProofMismatch FailureKind = "proof_mismatch"
	FailureSubmission    FailureKind = "submission"
)

// ErrProofMismatch means the gist's first file is not named after the
// requester's encoded account.
var ErrProofMismatch = errors.New("proof mismatch: gist filename does not match account")

// Outcome is the result of processing one pending request.
type Outcome struct {
	Requester  domain.AccountID
	ResourceID domain.ResourceID
	Username   domain.Username
	Submitted  bool
	Failure    FailureKind
	Err        error
}

// Report summarizes one round.
type Report struct {
	Round     uuid.UUID
	Height    uint64
	Pending   int
	Submitted int
	Failures  map[FailureKind]int
	Outcomes  []Outcome
	Duration  time.Duration
	// SnapshotErr is set when reading pending requests stopped early; the
	// requests read before the error were still processed.
	SnapshotErr error
}

func newReport(height uint64) Report {
	return Report{
		Round:    uuid.New(),
		Height:   height,
		Failures: make(map[FailureKind]int),
	}
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Submitted {
		r.Submitted++
		return
	}
	r.Failures[o.Failure]++
}

// Failed returns the number of requests that produced no response.
func (r Report) Failed() int {
	n := 0
	for _, c := range r.Failures {
		n += c
	}
	return n
}
