// Package server delegates identity verification to an injected capability
// and provides the bearer-token middleware for protected routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnauthorized is returned by verifiers when a credential cannot be
// validated.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the verified identity behind a bearer credential.
type Identity struct {
	Name string
}

// TokenVerifier is the external authentication capability: it either maps a
// bearer token to a verified identity or rejects it. The broker never
// inspects credentials itself.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// TokenVerifierFunc adapts a function to the TokenVerifier interface.
type TokenVerifierFunc func(ctx context.Context, token string) (*Identity, error)

// Verify calls f.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// RejectAllVerifier rejects every credential. It is the fallback when no
// token file is configured, so protected routes fail closed.
func RejectAllVerifier() TokenVerifier {
	return TokenVerifierFunc(func(context.Context, string) (*Identity, error) {
		return nil, ErrUnauthorized
	})
}

// StaticTokenVerifier verifies tokens against a fixed token-to-name map.
type StaticTokenVerifier struct {
	tokens map[string]string
}

// NewStaticTokenVerifier creates a verifier over the given token-to-name map.
func NewStaticTokenVerifier(tokens map[string]string) *StaticTokenVerifier {
	copied := make(map[string]string, len(tokens))
	for token, name := range tokens {
		copied[token] = name
	}
	return &StaticTokenVerifier{tokens: copied}
}

// NewStaticTokenVerifierFromFile loads a YAML file mapping bearer tokens to
// display names and returns a verifier over it.
func NewStaticTokenVerifierFromFile(path string) (*StaticTokenVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read auth tokens file: %w", err)
	}

	var tokens map[string]string
	if err := yaml.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parse auth tokens yaml: %w", err)
	}

	return NewStaticTokenVerifier(tokens), nil
}

// Verify implements TokenVerifier.
func (v *StaticTokenVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	name, ok := v.tokens[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &Identity{Name: name}, nil
}

type contextKey string

const identityContextKey contextKey = "identity"

// IdentityFromContext returns the verified identity stored by RequireAuth,
// or nil when the request was not authenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey).(*Identity)
	return identity
}

// bearerToken extracts the credential from an Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// RequireAuth wraps a handler with bearer-token verification. Requests
// without a valid credential receive a 403 JSON error; verified requests
// carry the identity in their context.
func RequireAuth(verifier TokenVerifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusForbidden, "Missing authorization token")
			return
		}

		identity, err := verifier.Verify(r.Context(), token)
		if err != nil {
			log.Printf("Rejected credential from %s: %v", r.RemoteAddr, err)
			writeJSONError(w, http.StatusForbidden, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next(w, r.WithContext(ctx))
	}
}
