// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/oops"
)

// statusWriter captures the response status for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		requestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
		s.logger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// validationCodes are engine error codes caused by malformed caller input.
var validationCodes = map[string]struct{}{
	"VALIDATION_EMAIL":         {},
	"VALIDATION_DEVICE":        {},
	"VALIDATION_RECOVERY_CODE": {},
}

func isValidation(err error) bool {
	return hasCode(err, validationCodes)
}

// hasCode walks the error chain looking for an oops code in the given set.
func hasCode(err error, codes map[string]struct{}) bool {
	for err != nil {
		if oopsErr, ok := oops.AsOops(err); ok {
			if code, isStr := oopsErr.Code().(string); isStr {
				if _, hit := codes[code]; hit {
					return true
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}
