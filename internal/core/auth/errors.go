package auth

import "errors"

// Authentication errors map onto gRPC codes:
// UNAUTHENTICATED for missing/invalid (doesn't confirm key existence),
// PERMISSION_DENIED for revoked keys and out-of-scope sellers,
// UNAVAILABLE when the key store cannot be reached.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrKeyStore         = errors.New("api key store unavailable")
	ErrSellerScope      = errors.New("API key is not valid for this seller")
	ErrOperatorOnly     = errors.New("operation requires an operator API key")
)
