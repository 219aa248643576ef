// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"regexp"
	"strings"

	"github.com/samber/oops"
)

// Device ID validation constraints.
const (
	MinDeviceIDLength = 3

	// MaxInputLength caps sanitized free-form input.
	MaxInputLength = 100
)

var (
	emailRegex      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	deviceIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	unsafeCharRegex = regexp.MustCompile(`[<>"']`)
)

// ValidateEmail validates an email address format.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("VALIDATION_EMAIL").Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code("VALIDATION_EMAIL").
			With("email", email).
			Errorf("invalid email format")
	}
	return nil
}

// ValidateDeviceID validates a device identifier.
// Device IDs are opaque but must be at least MinDeviceIDLength characters of
// letters, digits, hyphens, and underscores.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return oops.Code("VALIDATION_DEVICE").Errorf("device ID cannot be empty")
	}
	if len(deviceID) < MinDeviceIDLength {
		return oops.Code("VALIDATION_DEVICE").
			With("min", MinDeviceIDLength).
			Errorf("device ID must be at least %d characters", MinDeviceIDLength)
	}
	if !deviceIDRegex.MatchString(deviceID) {
		return oops.Code("VALIDATION_DEVICE").Errorf("device ID contains invalid characters")
	}
	return nil
}

// SanitizeInput strips characters that have no place in a token or code,
// truncates to MaxInputLength, and trims surrounding whitespace.
func SanitizeInput(input string) string {
	if input == "" {
		return ""
	}
	sanitized := unsafeCharRegex.ReplaceAllString(input, "")
	if len(sanitized) > MaxInputLength {
		sanitized = sanitized[:MaxInputLength]
	}
	return strings.TrimSpace(sanitized)
}
