package domain

import "testing"

// FuzzParseAccountID checks that parsing never panics and that accepted ids
// round-trip through their canonical form.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("0x" + AccountIDFromSeed("alice").String())
	f.Add("not-an-account")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAccountID(input)
		if err != nil {
			return
		}
		roundTrip, err := ParseAccountID(id.String())
		if err != nil {
			t.Errorf("valid account failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed account value")
		}
	})
}

// FuzzParseResourceID checks that accepted resource ids survive padding.
func FuzzParseResourceID(f *testing.F) {
	f.Add("gist-1")
	f.Add("")
	f.Add("a/b")

	f.Fuzz(func(t *testing.T, input string) {
		r, err := ParseResourceID(input)
		if err != nil {
			return
		}
		if r.String() != input {
			t.Errorf("resource id %q round-tripped to %q", input, r.String())
		}
	})
}
