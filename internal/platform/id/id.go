// Package id generates compact entity identifiers and idempotency keys.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random 26-character lowercase base32 identifier.
// The underlying bytes are a version 4 UUID, so collisions are negligible.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// NewIdempotencyKey returns a fresh key identifying one logical command
// attempt. The key has no meaning beyond equality; the remote authority uses
// it to deduplicate retried deliveries.
func NewIdempotencyKey() (string, error) {
	return NewID()
}
