// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package biometric

import (
	"context"

	"github.com/sorae/sorae/internal/auth"
)

type sampleKey struct{}

// WithSample attaches a caller-provided sample to the context. A capturer
// built with FromContext will prefer it over its fallback source.
func WithSample(ctx context.Context, sample float64) context.Context {
	return context.WithValue(ctx, sampleKey{}, sample)
}

// FromContext returns a capturer that reads the sample attached to the
// request context, falling back to the given source when none is attached.
func FromContext(fallback auth.Capturer) auth.Capturer {
	return auth.CapturerFunc(func(ctx context.Context) (float64, error) {
		if sample, ok := ctx.Value(sampleKey{}).(float64); ok {
			return sample, nil
		}
		return fallback.Capture(ctx)
	})
}
