package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for a missing, unknown or revoked API key.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of active API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, the form keys are
// stored in.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator validates raw API keys against the Repository.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator with the given repository and
// HMAC pepper.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate returns the key record for raw, or ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*APIKeyInfo, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	hexHash := HashKey(a.pepper, raw)

	info, err := a.keys.FindByHash(ctx, hexHash)
	if err != nil {
		return nil, errors.Wrap(ErrUnauthorized, err.Error())
	}

	// The row must carry exactly the hash we computed.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}

type principalKey struct{}

// WithPrincipal returns ctx carrying the authenticated key.
func WithPrincipal(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, principalKey{}, info)
}

// PrincipalFromContext returns the authenticated key, if any.
func PrincipalFromContext(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(principalKey{}).(*APIKeyInfo)
	return info, ok
}
