// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"time"

	"github.com/samber/oops"
)

// tokenAlphabet is the character set for magic-link tokens.
const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var tokenRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Credential is the account's live one-time magic-link token. It is replaced
// wholesale on each issuance and never reused.
type Credential struct {
	Value     string
	CreatedAt time.Time
}

// IsExpired reports whether the credential is no longer acceptable at the
// given instant. A credential with no creation time is always expired.
func (c Credential) IsExpired(now time.Time, ttl time.Duration) bool {
	if c.CreatedAt.IsZero() {
		return true
	}
	return now.After(c.CreatedAt.Add(ttl))
}

// Matches reports whether the sanitized attempt equals the credential value.
// Comparison is case-sensitive and byte-exact.
func (c Credential) Matches(attempt string) bool {
	return c.Value != "" && attempt == c.Value
}

// IssueCredential generates a fresh magic-link credential.
func IssueCredential() (Credential, error) {
	value, err := generateToken(TokenLength)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Value: value, CreatedAt: time.Now()}, nil
}

// ValidateTokenFormat checks the shape of a presented token: exact length,
// alphanumeric only. A format failure is distinct from a mismatch; it is
// rejected before ever being treated as a guess against the real secret.
func ValidateTokenFormat(token string) error {
	if token == "" {
		return oops.Code("CREDENTIAL_INVALID_FORMAT").Errorf("token cannot be empty")
	}
	if len(token) != TokenLength {
		return oops.Code("CREDENTIAL_INVALID_FORMAT").
			With("expected_length", TokenLength).
			Errorf("token must be %d characters long", TokenLength)
	}
	if !tokenRegex.MatchString(token) {
		return oops.Code("CREDENTIAL_INVALID_FORMAT").Errorf("token contains invalid characters")
	}
	return nil
}

// generateToken produces n characters drawn uniformly from tokenAlphabet
// using crypto/rand.
func generateToken(n int) (string, error) {
	alphabetLen := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", oops.Code("CREDENTIAL_GENERATE_FAILED").
				With("operation", "crypto/rand.Int").
				Wrap(err)
		}
		out[i] = tokenAlphabet[idx.Int64()]
	}
	return string(out), nil
}
