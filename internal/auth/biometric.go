// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package auth

import (
	"context"
	"math"

	"github.com/samber/oops"
)

// Capturer produces a behavioral sample in [0,1]. Implementations may wrap a
// real sensor or a synthetic source; the engine depends only on the
// comparator, never on how samples are produced.
type Capturer interface {
	Capture(ctx context.Context) (float64, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context) (float64, error)

// Capture calls f.
func (f CapturerFunc) Capture(ctx context.Context) (float64, error) {
	return f(ctx)
}

// MatchBiometric reports whether the sample is within threshold of the
// enrolled baseline. The boundary is inclusive: a difference of exactly
// threshold is a match.
func MatchBiometric(baseline, sample, threshold float64) bool {
	return math.Abs(baseline-sample) <= threshold
}

// ValidateSample checks that a behavioral sample is a usable number in [0,1].
// Anything else is a capture fault, not a user mismatch.
func ValidateSample(sample float64) error {
	if math.IsNaN(sample) || math.IsInf(sample, 0) {
		return oops.Code("CAPTURE_FAILED").Errorf("sample is not a finite number")
	}
	if sample < 0 || sample > 1 {
		return oops.Code("CAPTURE_FAILED").
			With("sample", sample).
			Errorf("sample must be between 0 and 1")
	}
	return nil
}
