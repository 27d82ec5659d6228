package auth

// AdminTokenValidator checks admin API bearer tokens against the single
// configured operator token. Only the hash is kept in memory.
type AdminTokenValidator struct {
	tokenHash string
}

// NewAdminTokenValidator creates a validator for the configured admin token.
// An empty token disables all admin authentication (every check fails).
func NewAdminTokenValidator(token string) *AdminTokenValidator {
	v := &AdminTokenValidator{}
	if token != "" {
		v.tokenHash = HashToken(token)
	}
	return v
}

// Validate reports whether the presented token matches the configured one.
func (v *AdminTokenValidator) Validate(token string) bool {
	if v.tokenHash == "" || token == "" {
		return false
	}
	return CompareTokenHash(token, v.tokenHash)
}
