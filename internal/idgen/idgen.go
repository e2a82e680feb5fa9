// Package idgen generates short random identifiers for conversation
// sessions and request correlation.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes by identifier kind.
const (
	SessionPrefix = "ses-"
	RequestPrefix = "req-"
)

// alphabet avoids characters that read ambiguously in chat clients.
const alphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// Length is the number of random characters after the prefix.
const Length = 8

// New returns prefix followed by Length random characters.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Session returns a new conversation session id.
func Session() (string, error) {
	return New(SessionPrefix)
}

// Request returns a new correlation id for a gRPC or HTTP request. It never
// fails; on entropy errors it falls back to a fixed marker.
func Request() string {
	id, err := New(RequestPrefix)
	if err != nil {
		return RequestPrefix + "unknown"
	}
	return id
}
