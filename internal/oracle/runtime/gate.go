package runtime

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/blake2b"

	"idoracle/internal/oracle/metrics"
	"idoracle/internal/oracle/models"
	"idoracle/pkg/domain"
)

const (
	// ResponsePriority puts oracle responses ahead of ordinary traffic.
	ResponsePriority uint64 = 1 << 20

	// ResponseLongevity is how many blocks an admitted response stays valid
	// in the pool before it expires and must be rediscovered.
	ResponseLongevity uint64 = 5

	// TagDomain separates response uniqueness tags from any other tag space.
	TagDomain = "github::identity"
)

// Tag is the uniqueness tag a transaction provides. The pool holds at most
// one transaction per tag.
type Tag [blake2b.Size256]byte

func (t Tag) String() string {
	return hex.EncodeToString(t[:])
}

// Validity is the admission descriptor of an accepted transaction.
type Validity struct {
	Priority  uint64
	Provides  Tag
	Longevity uint64
	Propagate bool
}

// Admitted is a response that passed the gate. Only Gate.Admit can produce a
// usable value, which is what keeps Runtime.ApplyAdmitted unreachable for
// arbitrary callers.
type Admitted struct {
	call     models.RespondVerification
	validity Validity
	minted   bool
}

func (a Admitted) Call() models.RespondVerification {
	return a.call
}

func (a Admitted) Validity() Validity {
	return a.validity
}

// RequestChecker is the registry read the gate depends on.
type RequestChecker interface {
	Contains(ctx context.Context, requester domain.AccountID) (bool, error)
}

// Gate decides whether an unsigned response may enter the transaction pool.
// It is the only replay defense for responses, which carry no signature.
type Gate struct {
	requests RequestChecker
	encoder  domain.AccountEncoder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewGate(requests RequestChecker, encoder domain.AccountEncoder, logger *slog.Logger, m *metrics.Metrics) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{requests: requests, encoder: encoder, logger: logger, metrics: m}
}

// Validate checks call against the current registry without minting an
// Admitted value.
func (g *Gate) Validate(ctx context.Context, call models.Call) (Validity, error) {
	response, err := responseShape(call)
	if err != nil {
		g.metrics.RecordAdmission(Outcome(err))
		return Validity{}, err
	}

	pending, err := g.requests.Contains(ctx, response.Account)
	if err != nil {
		g.metrics.RecordAdmission("error")
		return Validity{}, fmt.Errorf("check pending request: %w", err)
	}
	if !pending {
		g.metrics.RecordAdmission(Outcome(ErrStale))
		g.logger.DebugContext(ctx, "stale response rejected", "account", response.Account)
		return Validity{}, ErrStale
	}

	g.metrics.RecordAdmission(Outcome(nil))
	return Validity{
		Priority:  ResponsePriority,
		Provides:  UniquenessTag(g.encoder, response.Account),
		Longevity: ResponseLongevity,
		Propagate: true,
	}, nil
}

// Admit validates call and, on success, returns the sealed value the pool
// stores and block execution applies.
func (g *Gate) Admit(ctx context.Context, call models.Call) (Admitted, error) {
	validity, err := g.Validate(ctx, call)
	if err != nil {
		return Admitted{}, err
	}
	return Admitted{call: call.(models.RespondVerification), validity: validity, minted: true}, nil
}

// UniquenessTag derives the tag of the response for account: one outstanding
// response per requester.
func UniquenessTag(encoder domain.AccountEncoder, account domain.AccountID) Tag {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(TagDomain))
	h.Write(encoder.Encode(account))
	var tag Tag
	copy(tag[:], h.Sum(nil))
	return tag
}

func responseShape(call models.Call) (models.RespondVerification, error) {
	response, ok := call.(models.RespondVerification)
	if !ok {
		return models.RespondVerification{}, fmt.Errorf("%w: %T is not a response", ErrCallShape, call)
	}
	if err := validateResponse(models.None(), response); err != nil {
		return models.RespondVerification{}, err
	}
	return response, nil
}
