package gist

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idoracle/pkg/domain"
)

func TestParseGist(t *testing.T) {
	t.Run("first file in document order and owner login", func(t *testing.T) {
		raw := `{"id":"abc","files":{"zz-first.txt":{"size":1},"aa-second.txt":{"size":2}},"owner":{"login":"alice_gh","id":7}}`

		g, err := ParseGist([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "zz-first.txt", g.Filename)
		assert.Equal(t, domain.Username("alice_gh"), g.Owner)
	})

	t.Run("escaped filename is unescaped", func(t *testing.T) {
		g, err := ParseGist([]byte(`{"files":{"a\u002eb":{}},"owner":{"login":"x"}}`))
		require.NoError(t, err)
		assert.Equal(t, "a.b", g.Filename)
	})

	cases := []struct {
		name  string
		raw   string
		kind  ParseKind
		field string
	}{
		{"not json", `{"files":`, ParseMalformed, ""},
		{"top level array", `[1,2]`, ParseMalformed, ""},
		{"missing files", `{"owner":{"login":"x"}}`, ParseMissingField, "files"},
		{"files not an object", `{"files":["a"],"owner":{"login":"x"}}`, ParseMalformed, "files"},
		{"no files", `{"files":{},"owner":{"login":"x"}}`, ParseMissingField, "files[0]"},
		{"missing owner", `{"files":{"a":{}}}`, ParseMissingField, "owner"},
		{"owner not an object", `{"files":{"a":{}},"owner":"x"}`, ParseMalformed, "owner"},
		{"missing login", `{"files":{"a":{}},"owner":{"id":1}}`, ParseMissingField, "owner.login"},
		{"login not a string", `{"files":{"a":{}},"owner":{"login":42}}`, ParseMalformed, "owner.login"},
		{"empty login", `{"files":{"a":{}},"owner":{"login":""}}`, ParseMissingField, "owner.login"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGist([]byte(tc.raw))
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tc.kind, pe.Kind)
			assert.Equal(t, tc.field, pe.Field)
		})
	}
}
