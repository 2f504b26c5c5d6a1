package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idoracle/pkg/domain-errors"
)

// TestParseAccountID_Invariants validates the parsing invariant:
// "account ids are 32 non-zero bytes in hex form"
func TestParseAccountID_Invariants(t *testing.T) {
	alice := AccountIDFromSeed("alice")

	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects zero account", func(t *testing.T) {
		_, err := ParseAccountID(strings.Repeat("0", 64))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ParseAccountID(strings.Repeat("zz", 32))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts canonical and 0x-prefixed forms", func(t *testing.T) {
		got, err := ParseAccountID(alice.String())
		require.NoError(t, err)
		assert.Equal(t, alice, got)

		got, err = ParseAccountID("0x" + alice.String())
		require.NoError(t, err)
		assert.Equal(t, alice, got)
	})
}

func TestParseAccountID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE identity_bindings;--", true},
		{"Null byte injection", strings.Repeat("a", 63) + "\x00", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Short input", strings.Repeat("a", 62), true},
		{"Uppercase hex", strings.Repeat("AB", 32), false},
		{"Lowercase hex", strings.Repeat("ab", 32), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAccountIDFromSeed_Deterministic(t *testing.T) {
	assert.Equal(t, AccountIDFromSeed("alice"), AccountIDFromSeed("alice"))
	assert.NotEqual(t, AccountIDFromSeed("alice"), AccountIDFromSeed("bob"))
	assert.False(t, AccountIDFromSeed("alice").IsZero())
}

func TestParseResourceID(t *testing.T) {
	t.Run("pads short ids and trims on String", func(t *testing.T) {
		r, err := ParseResourceID("gist-1")
		require.NoError(t, err)
		assert.Equal(t, "gist-1", r.String())
		assert.Equal(t, byte(0), r[ResourceIDSize-1])
	})

	t.Run("accepts a full 32 byte gist id", func(t *testing.T) {
		raw := "aa5a315d61ae9438b18d1e2f1d2a4b1c"
		r, err := ParseResourceID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, r.String())
	})

	t.Run("rejects path characters", func(t *testing.T) {
		_, err := ParseResourceID("../../users")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects oversize and empty ids", func(t *testing.T) {
		_, err := ParseResourceID(strings.Repeat("a", 33))
		require.Error(t, err)
		_, err = ParseResourceID("")
		require.Error(t, err)
	})
}

func TestIDs_JSONText(t *testing.T) {
	type payload struct {
		Account  AccountID  `json:"account"`
		Resource ResourceID `json:"resource_id"`
	}
	in := payload{Account: AccountIDFromSeed("alice"), Resource: MustResourceID("gist-1")}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"resource_id":"gist-1"`)

	var out payload
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestHexEncoder(t *testing.T) {
	alice := AccountIDFromSeed("alice")
	assert.Equal(t, []byte(alice.String()), HexEncoder{}.Encode(alice))
}
