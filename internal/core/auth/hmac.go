package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const keyPrefix = "pk"

// ParseAPIKey extracts secret_id and random_data from API key format.
// Format: pk-v1-<secret_id>-<random_data>, secret_id 32 hex chars, random_data 64.
// Returns ErrInvalidKeyFormat if format doesn't match.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != keyPrefix || parts[1] != "v1" {
		return "", "", ErrInvalidKeyFormat
	}

	secretID = parts[2]
	randomData = parts[3]
	if len(secretID) != 32 || len(randomData) != 64 {
		return "", "", ErrInvalidKeyFormat
	}
	for _, c := range secretID + randomData {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return secretID, randomData, nil
}

// ComputeHMAC computes the hex HMAC-SHA256 of apiKey under secret.
// This is the value stored in api_keys.key_hash.
func ComputeHMAC(secret []byte, apiKey string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC compares two hex hashes in constant time.
func VerifyHMAC(expectedHash, computedHash string) bool {
	return hmac.Equal([]byte(expectedHash), []byte(computedHash))
}

// FormatAPIKey constructs API key from components.
func FormatAPIKey(secretID, randomData string) string {
	return fmt.Sprintf("%s-v1-%s-%s", keyPrefix, secretID, randomData)
}

// GenerateAPIKey issues a new key signed by secretID's secret and returns
// the key (shown once) and the hash to persist.
func GenerateAPIKey(secretID string, secret []byte) (key, keyHash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate key material: %w", err)
	}
	key = FormatAPIKey(secretID, hex.EncodeToString(buf))
	return key, ComputeHMAC(secret, key), nil
}
