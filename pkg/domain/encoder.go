package domain

// AccountEncoder produces the deterministic byte encoding of an account that
// a claimant must publish as proof of ownership.
type AccountEncoder interface {
	Encode(account AccountID) []byte
}

// HexEncoder encodes accounts as their lowercase hex form, which is also a
// valid gist filename.
type HexEncoder struct{}

func (HexEncoder) Encode(account AccountID) []byte {
	return []byte(account.String())
}
