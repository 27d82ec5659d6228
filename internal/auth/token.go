// Package auth implements bearer token generation, hashing, and validation
// for the print service protocol and the admin API.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// TokenPrefix is the prefix for all print client bearer tokens.
	TokenPrefix = "prp_"
	// TokenLength is the expected length of the hex portion of a token.
	TokenLength = 64 // 32 bytes = 64 hex chars
)

// GenerateToken generates a secure random bearer token. The raw value is
// returned exactly once; callers persist only its hash.
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(bytes), nil
}

// PlaceholderTokenHash returns a hash derived from random bytes rather than
// from any issuable token. Pending clients are created with it so they cannot
// authenticate before an operator approves them and a real token is issued.
func PlaceholderTokenHash() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate placeholder hash: %w", err)
	}
	hash := sha256.Sum256(bytes)
	return hex.EncodeToString(hash[:]), nil
}

// IsValidTokenFormat checks if the token has the correct format.
func IsValidTokenFormat(token string) bool {
	if !strings.HasPrefix(token, TokenPrefix) {
		return false
	}
	hexPart := strings.TrimPrefix(token, TokenPrefix)
	if len(hexPart) != TokenLength {
		return false
	}
	// Verify it's valid hex
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// HashToken creates a SHA-256 hash of a bearer token for storage/comparison.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// CompareTokenHash compares a token with a stored hash using constant-time comparison.
func CompareTokenHash(token, storedHash string) bool {
	computedHash := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computedHash), []byte(storedHash)) == 1
}

// ExtractBearerToken extracts the token from an Authorization header value.
// Returns empty string if the header is not a valid Bearer token.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

