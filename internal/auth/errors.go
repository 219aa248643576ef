// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrSessionTerminal is returned when input is submitted to a session that
// has already reached a terminal decision.
var ErrSessionTerminal = errors.New("session already terminal")
