// Package cursor implements the opaque pagination tokens used by every list
// operation. A token is the base64url encoding of a canonical JSON position.
// Tokens are only meaningful to the list operation that issued them: each
// carries a scope, and decoding with a different scope fails the same way a
// malformed token does.
package cursor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	dErrors "assessor/pkg/domain-errors"
)

// Scope names the list operation a token belongs to.
type Scope string

const (
	ScopeAssessments Scope = "assessments"
	ScopeFindings    Scope = "findings"
	ScopeVersions    Scope = "versions"
	ScopeMilestones  Scope = "milestones"
	ScopeExports     Scope = "exports"
	ScopeFolders     Scope = "folders"
)

// Position is a continuation point within one list operation. Key is the last
// sort key the previous page returned; its interpretation belongs to the
// issuing store.
type Position struct {
	Scope Scope  `json:"s"`
	Key   string `json:"k"`
}

// Encode serializes a position into an opaque URL-safe token.
func Encode(p Position) string {
	raw, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a token issued for the given scope. The empty token means
// "start from the beginning" and yields a zero Position. Any malformed or
// foreign token fails with CodeInvalidCursor.
func Decode(token string, scope Scope) (Position, error) {
	if token == "" {
		return Position{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Position{}, dErrors.New(dErrors.CodeInvalidCursor, "cursor is not valid base64")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Position
	if err := dec.Decode(&p); err != nil {
		return Position{}, dErrors.New(dErrors.CodeInvalidCursor, "cursor payload is malformed")
	}
	if dec.More() {
		return Position{}, dErrors.New(dErrors.CodeInvalidCursor, "cursor payload has trailing data")
	}
	if p.Scope != scope {
		return Position{}, dErrors.New(dErrors.CodeInvalidCursor, "cursor was issued by a different list operation")
	}
	if p.Key == "" {
		return Position{}, dErrors.New(dErrors.CodeInvalidCursor, "cursor is missing its continuation key")
	}
	return p, nil
}
