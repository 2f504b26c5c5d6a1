package gist

import (
	"github.com/tidwall/gjson"

	"idoracle/pkg/domain"
)

// Gist is the part of a gist that proves ownership: the name of its first
// file and the login of its owner.
type Gist struct {
	Filename string
	Owner    domain.Username
}

// Parser extracts a Gist from raw API content.
type Parser struct{}

func (Parser) Parse(raw []byte) (Gist, error) {
	return ParseGist(raw)
}

// ParseGist reads the first key of the "files" object, in document order, and
// the "owner.login" string.
func ParseGist(raw []byte) (Gist, error) {
	if !gjson.ValidBytes(raw) {
		return Gist{}, &ParseError{Kind: ParseMalformed}
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Gist{}, &ParseError{Kind: ParseMalformed}
	}

	files := root.Get("files")
	if !files.Exists() {
		return Gist{}, &ParseError{Kind: ParseMissingField, Field: "files"}
	}
	if !files.IsObject() {
		return Gist{}, &ParseError{Kind: ParseMalformed, Field: "files"}
	}
	var filename string
	found := false
	files.ForEach(func(key, _ gjson.Result) bool {
		filename = key.String()
		found = true
		return false
	})
	if !found {
		return Gist{}, &ParseError{Kind: ParseMissingField, Field: "files[0]"}
	}

	owner := root.Get("owner")
	if !owner.Exists() {
		return Gist{}, &ParseError{Kind: ParseMissingField, Field: "owner"}
	}
	if !owner.IsObject() {
		return Gist{}, &ParseError{Kind: ParseMalformed, Field: "owner"}
	}
	login := owner.Get("login")
	if !login.Exists() {
		return Gist{}, &ParseError{Kind: ParseMissingField, Field: "owner.login"}
	}
	if login.Type != gjson.String {
		return Gist{}, &ParseError{Kind: ParseMalformed, Field: "owner.login"}
	}
	if login.Str == "" {
		return Gist{}, &ParseError{Kind: ParseMissingField, Field: "owner.login"}
	}

	return Gist{Filename: filename, Owner: domain.Username(login.Str)}, nil
}
