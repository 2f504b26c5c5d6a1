package models

import (
	"idoracle/pkg/domain"
)

// Call is the closed set of dispatchable oracle calls. The unexported marker
// method keeps other packages from adding variants.
type Call interface {
	CallName() string
	isCall()
}

// RequestVerification registers (or replaces) the signer's pending claim.
// It must be dispatched with a signed origin.
type RequestVerification struct {
	ResourceID domain.ResourceID `json:"resource_id"`
}

func (RequestVerification) CallName() string { return "request_verification" }
func (RequestVerification) isCall()          {}

// RespondVerification is the worker's unsigned answer for Account. It carries
// no signature; it is authorized solely by the admission gate.
type RespondVerification struct {
	Account  domain.AccountID `json:"account"`
	Username domain.Username  `json:"username"`
}

func (RespondVerification) CallName() string { return "respond_verification" }
func (RespondVerification) isCall()          {}

// Origin describes who dispatched a call.
type Origin struct {
	signer domain.AccountID
	signed bool
}

// Signed is the origin of a call authenticated as account.
func Signed(account domain.AccountID) Origin {
	return Origin{signer: account, signed: true}
}

// None is the origin of an unsigned call.
func None() Origin {
	return Origin{}
}

// Signer returns the signing account and whether the origin is signed.
func (o Origin) Signer() (domain.AccountID, bool) {
	return o.signer, o.signed
}
