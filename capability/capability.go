// Package capability decides whether a caller may perform a guarded
// registry operation. Callers carry a bearer token in their context; a
// Checker compares it against the configured grants.
package capability

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrDenied is returned when the caller lacks the permission.
var ErrDenied = errors.New("capability: permission denied")

// Permission names a guarded operation.
type Permission string

const (
	// Dump allows reading the diagnostic dump.
	Dump Permission = "dump"
	// CoarseLocation allows subscribing to cell location updates.
	CoarseLocation Permission = "location"
)

// Checker authorizes the caller found in ctx.
type Checker interface {
	Check(ctx context.Context, p Permission) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, p Permission) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, p Permission) error {
	return f(ctx, p)
}

// AllowAll grants every permission. Used for in-process registries that
// have no untrusted callers.
var AllowAll Checker = CheckerFunc(func(context.Context, Permission) error { return nil })

// DenyAll refuses every permission.
var DenyAll Checker = CheckerFunc(func(_ context.Context, p Permission) error {
	return fmt.Errorf("%w: %s", ErrDenied, p)
})

type tokenKey struct{}

// WithToken returns a context carrying the caller's bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token stored by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok && tok != ""
}

// Tokens grants permissions to holders of tokens whose bcrypt hashes are
// configured per permission.
type Tokens struct {
	grants map[Permission][][]byte
}

// NewTokens builds a Tokens checker from bcrypt hashes keyed by
// permission. Malformed hashes are rejected.
func NewTokens(hashes map[Permission][]string) (*Tokens, error) {
	t := &Tokens{grants: make(map[Permission][][]byte, len(hashes))}
	for p, list := range hashes {
		for _, h := range list {
			if _, err := bcrypt.Cost([]byte(h)); err != nil {
				return nil, fmt.Errorf("capability: %s: invalid token hash: %w", p, err)
			}
			t.grants[p] = append(t.grants[p], []byte(h))
		}
	}
	return t, nil
}

// Check reports whether the token in ctx matches a hash granted p.
func (t *Tokens) Check(ctx context.Context, p Permission) error {
	tok, ok := TokenFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: %s: no token", ErrDenied, p)
	}
	for _, h := range t.grants[p] {
		if bcrypt.CompareHashAndPassword(h, []byte(tok)) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDenied, p)
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("capability: hash token: %w", err)
	}
	return string(h), nil
}
