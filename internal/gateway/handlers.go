// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/sorae/sorae/internal/auth"
	"github.com/sorae/sorae/internal/biometric"
)

type enrollRequest struct {
	Email    string `json:"email"`
	DeviceID string `json:"device_id"`
}

type enrollResponse struct {
	AccountID   string   `json:"account_id"`
	BackupCodes []string `json:"backup_codes"`
	CodeStatus  string   `json:"code_status"`
}

type loginRequest struct {
	AccountID string   `json:"account_id"`
	Token     string   `json:"token"`
	Sample    *float64 `json:"sample,omitempty"`
}

type loginResponse struct {
	Decision       string   `json:"decision"`
	Admitted       bool     `json:"admitted"`
	StepUpRequired bool     `json:"step_up_required"`
	RiskScore      float64  `json:"risk_score"`
	RiskFactors    []string `json:"risk_factors,omitempty"`
}

type recoverRequest struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

type recoverResponse struct {
	Recovered      bool   `json:"recovered"`
	RemainingCodes int    `json:"remaining_codes"`
	CodeStatus     string `json:"code_status"`
}

type accountRequest struct {
	AccountID string `json:"account_id"`
}

type codesResponse struct {
	BackupCodes []string `json:"backup_codes,omitempty"`
	Remaining   int      `json:"remaining"`
	CodeStatus  string   `json:"code_status"`
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !s.decode(w, r, &req) {
		return
	}

	account, err := s.enrollment.Enroll(r.Context(), req.Email, req.DeviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, enrollResponse{
		AccountID:   account.ID.String(),
		BackupCodes: account.BackupCodes,
		CodeStatus:  string(auth.BackupCodeStatus(len(account.BackupCodes))),
	})
}

// handleLogin runs one complete decision for a single submitted token. The
// token is offered to the session exactly once; an HTTP client retries by
// sending a new request, spending one attempt per call.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	accountID, ok := s.parseID(w, req.AccountID)
	if !ok {
		return
	}

	ctx := r.Context()
	if req.Sample != nil {
		ctx = biometric.WithSample(ctx, *req.Sample)
	}

	decision, err := s.login.Login(ctx, accountID, oneShotReader(req.Token))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	decisionsTotal.WithLabelValues(string(decision.Code)).Inc()
	s.writeJSON(w, statusForDecision(decision.Code), loginResponse{
		Decision:       string(decision.Code),
		Admitted:       decision.Admitted(),
		StepUpRequired: decision.StepUpRequired,
		RiskScore:      decision.Risk.Score,
		RiskFactors:    decision.Risk.Factors,
	})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if !s.decode(w, r, &req) {
		return
	}

	accountID, ok := s.parseID(w, req.AccountID)
	if !ok {
		return
	}

	outcome, err := s.recovery.Recover(r.Context(), accountID, auth.CodeReader(oneShotReader(req.Code)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if !outcome.Recovered {
		status = http.StatusUnauthorized
	}
	s.writeJSON(w, status, recoverResponse{
		Recovered:      outcome.Recovered,
		RemainingCodes: len(outcome.RemainingCodes),
		CodeStatus:     string(outcome.Status),
	})
}

func (s *Server) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !s.decode(w, r, &req) {
		return
	}

	accountID, ok := s.parseID(w, req.AccountID)
	if !ok {
		return
	}

	if _, err := s.enrollment.IssueNewCredential(r.Context(), accountID); err != nil {
		s.writeError(w, r, err)
		return
	}
	// The token travels by email only, never in the response body.
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRotateCodes(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !s.decode(w, r, &req) {
		return
	}

	accountID, ok := s.parseID(w, req.AccountID)
	if !ok {
		return
	}

	codes, err := s.recovery.RegenerateBackupCodes(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, codesResponse{
		BackupCodes: codes,
		Remaining:   len(codes),
		CodeStatus:  string(auth.BackupCodeStatus(len(codes))),
	})
}

func (s *Server) handleCodeStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.parseID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}

	status, remaining, err := s.recovery.CodeStatus(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, codesResponse{
		Remaining:  remaining,
		CodeStatus: string(status),
	})
}

// oneShotReader yields the value once, then signals the prompt loop to stop.
func oneShotReader(value string) auth.CredentialReader {
	used := false
	return func(_ context.Context, _ int) (string, error) {
		if used {
			return "", io.EOF
		}
		used = true
		return value, nil
	}
}

func statusForDecision(code auth.DecisionCode) int {
	switch code {
	case auth.DecisionAdmitted:
		return http.StatusOK
	case auth.DecisionRateLimited:
		return http.StatusTooManyRequests
	case auth.DecisionCaptureFailure:
		return http.StatusUnprocessableEntity
	case auth.DecisionInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) parseID(w http.ResponseWriter, raw string) (ulid.ULID, bool) {
	id, err := ulid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return ulid.ULID{}, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNotFound):
		http.Error(w, "account not found", http.StatusNotFound)
	case isValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
