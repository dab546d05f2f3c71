// Package auth provides HMAC-based, seller-scoped API key authentication
// for the gRPC pricing API.
package auth

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

// principalKey is the context key for the authenticated principal.
const principalKey = contextKey("principal")

// KeyRecord is the stored side of an API key.
type KeyRecord struct {
	ID         string
	SellerID   string // empty for operator keys
	Revoked    bool
	LastUsedAt *time.Time
}

// KeyStore looks up API keys by hash. Implemented by *db.Store.
type KeyStore interface {
	// APIKeyByHash returns ErrInvalidKey when no key has that hash.
	APIKeyByHash(ctx context.Context, keyHash string) (KeyRecord, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// Principal is the authenticated caller.
type Principal struct {
	KeyID    string
	SellerID string
}

// Operator reports whether the key may act for every seller.
func (p Principal) Operator() bool {
	return p.SellerID == ""
}

// MaySell reports whether the principal may price for sellerID.
func (p Principal) MaySell(sellerID string) bool {
	return p.Operator() || p.SellerID == sellerID
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
// Holds in-memory secret map for O(1) lookup and the key store for verification.
type Authenticator struct {
	secrets map[string][]byte
	keys    KeyStore
	now     func() time.Time
}

// NewAuthenticator creates an authenticator with HMAC secrets and a key store.
func NewAuthenticator(secrets map[string][]byte, keys KeyStore) *Authenticator {
	return &Authenticator{secrets: secrets, keys: keys, now: time.Now}
}

// Authenticate validates apiKey and returns its principal.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (Principal, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return Principal{}, err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return Principal{}, ErrUnknownKey
	}

	rec, err := a.keys.APIKeyByHash(ctx, ComputeHMAC(secret, apiKey))
	if err != nil {
		return Principal{}, err
	}
	if rec.Revoked {
		return Principal{}, ErrKeyRevoked
	}

	// 1-minute throttle on last_used_at writes
	now := a.now().UTC()
	if rec.LastUsedAt == nil || now.Sub(*rec.LastUsedAt) > time.Minute {
		_ = a.keys.TouchAPIKey(ctx, rec.ID, now)
	}

	return Principal{KeyID: rec.ID, SellerID: rec.SellerID}, nil
}

// UnaryInterceptor returns gRPC interceptor that authenticates requests.
// Methods listed in skip (full method names) bypass authentication.
func (a *Authenticator) UnaryInterceptor(skip ...string) grpc.UnaryServerInterceptor {
	open := make(map[string]bool, len(skip))
	for _, m := range skip {
		open[m] = true
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if open[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		apiKeys := md.Get("x-api-key")
		if len(apiKeys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		p, err := a.Authenticate(ctx, apiKeys[0])
		if err != nil {
			switch {
			case errors.Is(err, ErrKeyRevoked):
				return nil, status.Error(codes.PermissionDenied, err.Error())
			case errors.Is(err, ErrKeyStore):
				return nil, status.Error(codes.Unavailable, err.Error())
			default:
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
		}

		return handler(WithPrincipal(ctx, p), req)
	}
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal.
// ok is false for unauthenticated contexts.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
