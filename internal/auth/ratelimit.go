// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

// Allowed reports whether a login attempt may proceed given the account's
// consecutive failure count. It is evaluated before any credential or
// biometric work so a locked-out account is rejected at the cheapest point.
func Allowed(failedAttempts, ceiling int) bool {
	return failedAttempts < ceiling
}
