// Package storage provides the token-keyed key-value side-store used to carry
// accumulated batch state between independent HTTP requests.
//
// Tokens are opaque, caller-generated identifiers. The store provides no
// cross-request locking: at most one active job per token is assumed, and
// concurrent requests against the same token are a read-modify-write race.
// This is a documented limitation of the single-operator usage model.
package storage

import "strings"

// Store is the key-value abstraction the orchestrator depends on.
//
// Get unmarshals the stored value for token into v and returns an error
// wrapping ErrNotFound when no value exists. Put overwrites any previous
// value. Delete is a no-op for absent tokens.
type Store interface {
	Get(token string, v any) error
	Put(token string, v any) error
	Delete(token string) error
}

// ValidateToken rejects tokens that cannot safely be used as file names.
// Tokens are opaque but caller-generated, so path traversal characters are
// refused outright rather than escaped.
func ValidateToken(token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if strings.ContainsAny(token, `/\`) || strings.Contains(token, "..") {
		return ErrInvalidToken
	}
	return nil
}
