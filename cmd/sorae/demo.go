// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/sorae/sorae/internal/auth"
	"github.com/sorae/sorae/internal/auth/memory"
	"github.com/sorae/sorae/internal/biometric"
)

// NewDemoCmd creates the demo subcommand, an interactive console walkthrough
// of the engine backed by the in-memory store.
func NewDemoCmd() *cobra.Command {
	var bypass bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an interactive console demo",
		Long: `Walk through enrollment, login, and recovery from the terminal.
Magic link tokens are printed to the console instead of being emailed,
and biometric samples are simulated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, bypass)
		},
	}

	cmd.Flags().BoolVar(&bypass, "biometric-bypass", false, "skip the biometric factor")
	return cmd
}

// consoleSender prints magic link tokens instead of emailing them.
type consoleSender struct {
	out io.Writer
}

func (s consoleSender) SendMagicLink(_ context.Context, email, token string, expiry time.Duration) error {
	fmt.Fprintf(s.out, "\n  [mail to %s] Your magic link token: %s (valid %s)\n\n", email, token, expiry)
	return nil
}

// demoSession holds the wired services and console state for one demo run.
type demoSession struct {
	cmd        *cobra.Command
	in         *bufio.Reader
	login      *auth.Service
	enrollment *auth.EnrollmentService
	recovery   *auth.RecoveryService
	accounts   auth.AccountRepository

	accountID ulid.ULID
	enrolled  bool
}

func runDemo(cmd *cobra.Command, bypass bool) error {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	opts := auth.DefaultOptions()
	opts.BiometricBypass = bypass

	accounts := memory.NewAccountRepository()
	locker := auth.NewAccountLocker()
	capturer := biometric.NewSimulator(logger)
	sender := consoleSender{out: cmd.OutOrStdout()}

	login, err := auth.NewService(accounts, capturer, locker, logger, nil, opts)
	if err != nil {
		return err
	}
	enrollment, err := auth.NewEnrollmentService(accounts, capturer, sender, locker, logger, nil, opts)
	if err != nil {
		return err
	}
	recovery, err := auth.NewRecoveryService(accounts, locker, logger, nil, opts)
	if err != nil {
		return err
	}

	s := &demoSession{
		cmd:        cmd,
		in:         bufio.NewReader(cmd.InOrStdin()),
		login:      login,
		enrollment: enrollment,
		recovery:   recovery,
		accounts:   accounts,
	}
	return s.loop(cmd.Context())
}

func (s *demoSession) loop(ctx context.Context) error {
	s.cmd.Println("Sorae interactive demo. Accounts live in memory for this session.")

	for {
		s.cmd.Println("\n  1) enroll   2) login   3) recover   4) rotate codes   5) status   q) quit")
		choice, err := s.prompt("> ")
		if err != nil {
			return nil // EOF ends the demo
		}

		switch choice {
		case "1":
			err = s.doEnroll(ctx)
		case "2":
			err = s.doLogin(ctx)
		case "3":
			err = s.doRecover(ctx)
		case "4":
			err = s.doRotate(ctx)
		case "5":
			err = s.doStatus(ctx)
		case "q", "quit", "exit":
			s.cmd.Println("Bye.")
			return nil
		default:
			continue
		}
		if err != nil {
			s.cmd.Println("  error:", err)
		}
	}
}

func (s *demoSession) prompt(label string) (string, error) {
	s.cmd.Print(label)
	line, err := s.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (s *demoSession) requireAccount() bool {
	if !s.enrolled {
		s.cmd.Println("  enroll first (option 1)")
		return false
	}
	return true
}

func (s *demoSession) doEnroll(ctx context.Context) error {
	email, err := s.prompt("  email: ")
	if err != nil {
		return err
	}
	device, err := s.prompt("  device id: ")
	if err != nil {
		return err
	}

	account, err := s.enrollment.Enroll(ctx, email, device)
	if err != nil {
		return err
	}

	s.accountID = account.ID
	s.enrolled = true

	s.cmd.Println("  enrolled account", account.ID.String())
	s.cmd.Println("  backup codes (store these safely):", strings.Join(account.BackupCodes, " "))
	return nil
}

func (s *demoSession) doLogin(ctx context.Context) error {
	if !s.requireAccount() {
		return nil
	}
	device, err := s.prompt("  device id: ")
	if err != nil {
		return err
	}
	if device != "" {
		if setErr := s.setDevice(ctx, device); setErr != nil {
			return setErr
		}
	}

	decision, err := s.login.Login(ctx, s.accountID, s.readToken)
	if err != nil {
		return err
	}

	if decision.Admitted() {
		s.cmd.Println("  ACCESS GRANTED")
		if decision.StepUpRequired {
			s.cmd.Printf("  elevated risk (score %.2f): additional verification advised\n", decision.Risk.Score)
		}
	} else {
		s.cmd.Println("  access denied:", decision.Code)
	}
	return nil
}

func (s *demoSession) doRecover(ctx context.Context) error {
	if !s.requireAccount() {
		return nil
	}

	outcome, err := s.recovery.Recover(ctx, s.accountID, s.readBackupCode)
	if err != nil {
		return err
	}

	if outcome.Recovered {
		s.cmd.Printf("  recovered, %d backup codes left (%s)\n", len(outcome.RemainingCodes), outcome.Status)
	} else {
		s.cmd.Println("  recovery failed")
	}
	return nil
}

func (s *demoSession) doRotate(ctx context.Context) error {
	if !s.requireAccount() {
		return nil
	}

	codes, err := s.recovery.RegenerateBackupCodes(ctx, s.accountID)
	if err != nil {
		return err
	}
	s.cmd.Println("  new backup codes:", strings.Join(codes, " "))
	return nil
}

func (s *demoSession) doStatus(ctx context.Context) error {
	if !s.requireAccount() {
		return nil
	}

	account, err := s.accounts.GetByID(ctx, s.accountID)
	if err != nil {
		return err
	}

	s.cmd.Println("  email:          ", account.Email)
	s.cmd.Println("  device:         ", account.CurrentDevice)
	s.cmd.Println("  failed attempts:", account.FailedAttempts)
	s.cmd.Println("  backup codes:   ", len(account.BackupCodes), "("+string(auth.BackupCodeStatus(len(account.BackupCodes)))+")")
	if account.LastLogin != nil {
		s.cmd.Println("  last login:     ", account.LastLogin.Format(time.RFC3339))
	}
	return nil
}

// setDevice stages the device the next login attempt comes from.
func (s *demoSession) setDevice(ctx context.Context, device string) error {
	account, err := s.accounts.GetByID(ctx, s.accountID)
	if err != nil {
		return err
	}
	account.CurrentDevice = device
	return s.accounts.Update(ctx, account)
}

func (s *demoSession) readToken(_ context.Context, remaining int) (string, error) {
	return s.prompt(fmt.Sprintf("  magic link token (%d attempts left): ", remaining))
}

func (s *demoSession) readBackupCode(_ context.Context, remaining int) (string, error) {
	return s.prompt(fmt.Sprintf("  backup code (%d attempts left): ", remaining))
}
