// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

// Package auth implements the adaptive authentication decision engine.
//
// # Domain Types
//
// Domain types (Account, Credential, Assessment) should be created using
// their respective constructors:
//   - NewAccount - creates an Account with validated invariants
//   - IssueCredential - creates a fresh magic-link Credential
//   - GenerateBackupCodes - creates a duplicate-free backup code set
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Sessions
//
// LoginSession and RecoverySession are single-use state machines driven by
// a caller-owned prompt loop. They perform no I/O themselves: the caller
// supplies already-sanitized input, observes the declared retry budgets,
// and persists the mutation set carried by the terminal Decision.
//
// # Services
//
// Service types coordinate domain operations over an AccountRepository:
//   - Service - drives a full login session under a per-account lock
//   - RecoveryService - backup code recovery and regeneration
//   - EnrollmentService - account creation and credential rotation
package auth
