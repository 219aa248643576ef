// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/sorae/sorae/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("AUTH_LOGIN_FAILED").Errorf("login failed")
	// Should not fail
	errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("account_id", "01JAR8T5Y2").Errorf("lookup failed")
	// Should not fail
	errutil.AssertErrorContext(t, err, "account_id", "01JAR8T5Y2")
}
