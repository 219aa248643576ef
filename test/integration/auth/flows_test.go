// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

//go:build integration

package auth_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/sorae/sorae/internal/auth"
)

var _ = Describe("Authentication flows", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		truncateAccounts(ctx, env.pool)
	})

	enroll := func(email string) *auth.Account {
		account, err := env.Enrollment.Enroll(ctx, email, "device1")
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Sink.tokenFor(email)).To(HaveLen(auth.TokenLength))
		return account
	}

	Describe("Enrollment and login", func() {
		It("admits a login with the delivered token and a matching sample", func() {
			account := enroll("login@example.com")

			decision, err := env.Login.Login(ctx, account.ID, oneShot(env.Sink.tokenFor(account.Email)))
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Admitted()).To(BeTrue())
			Expect(decision.StepUpRequired).To(BeFalse())

			stored, err := env.Accounts.GetByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedAttempts).To(BeZero())
			Expect(stored.LastLogin).NotTo(BeNil())
		})

		It("refuses a second enrollment for the same email", func() {
			enroll("taken@example.com")

			_, err := env.Enrollment.Enroll(ctx, "Taken@Example.com", "device2")
			Expect(err).To(HaveOccurred())
		})

		It("flags elevated risk on an unrecognized device without blocking", func() {
			account := enroll("risky@example.com")

			account.CurrentDevice = "never-seen-laptop"
			Expect(env.Accounts.Update(ctx, account)).To(Succeed())

			decision, err := env.Login.Login(ctx, account.ID, oneShot(env.Sink.tokenFor(account.Email)))
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Admitted()).To(BeTrue())
			Expect(decision.StepUpRequired).To(BeTrue())
			Expect(decision.Risk.Factors).To(ContainElement("unknown_device"))
		})
	})

	Describe("Rate limiting", func() {
		It("locks the account after repeated wrong tokens and persists the count", func() {
			account := enroll("locked@example.com")

			for i := 0; i < 2; i++ {
				decision, err := env.Login.Login(ctx, account.ID, always("wrong123"))
				Expect(err).NotTo(HaveOccurred())
				Expect(decision.Admitted()).To(BeFalse())
			}

			decision, err := env.Login.Login(ctx, account.ID, oneShot(env.Sink.tokenFor(account.Email)))
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Code).To(Equal(auth.DecisionRateLimited))

			stored, err := env.Accounts.GetByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedAttempts).To(BeNumerically(">=", auth.DefaultMaxFailedAttempts))
		})
	})

	Describe("Credential expiry", func() {
		It("denies an otherwise valid token past its lifetime", func() {
			account := enroll("stale@example.com")

			account.Credential.CreatedAt = time.Now().Add(-time.Hour)
			Expect(env.Accounts.Update(ctx, account)).To(Succeed())

			decision, err := env.Login.Login(ctx, account.ID, oneShot(env.Sink.tokenFor(account.Email)))
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Code).To(Equal(auth.DecisionCredentialExpired))
		})

		It("accepts a reissued credential after expiry", func() {
			account := enroll("reissued@example.com")

			account.Credential.CreatedAt = time.Now().Add(-time.Hour)
			Expect(env.Accounts.Update(ctx, account)).To(Succeed())

			_, err := env.Enrollment.IssueNewCredential(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())

			decision, err := env.Login.Login(ctx, account.ID, oneShot(env.Sink.tokenFor(account.Email)))
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Admitted()).To(BeTrue())
		})
	})

	Describe("Backup code recovery", func() {
		It("consumes a code on use so it cannot be replayed", func() {
			account := enroll("recover@example.com")
			code := account.BackupCodes[0]

			outcome, err := env.Recovery.Recover(ctx, account.ID, oneShot(code))
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Recovered).To(BeTrue())
			Expect(outcome.RemainingCodes).To(HaveLen(auth.DefaultBackupCodesCount - 1))

			replay, err := env.Recovery.Recover(ctx, account.ID, oneShot(code))
			Expect(err).NotTo(HaveOccurred())
			Expect(replay.Recovered).To(BeFalse())
		})

		It("invalidates old codes on rotation and honors the new set", func() {
			account := enroll("rotate@example.com")
			oldCode := account.BackupCodes[0]

			newCodes, err := env.Recovery.RegenerateBackupCodes(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(newCodes).To(HaveLen(auth.DefaultBackupCodesCount))
			Expect(newCodes).NotTo(ContainElement(oldCode))

			stale, err := env.Recovery.Recover(ctx, account.ID, oneShot(oldCode))
			Expect(err).NotTo(HaveOccurred())
			Expect(stale.Recovered).To(BeFalse())

			fresh, err := env.Recovery.Recover(ctx, account.ID, oneShot(newCodes[0]))
			Expect(err).NotTo(HaveOccurred())
			Expect(fresh.Recovered).To(BeTrue())
		})

		It("leaves the failed-attempt count untouched by recovery misses", func() {
			account := enroll("miss@example.com")

			miss, err := env.Recovery.Recover(ctx, account.ID, always("000000"))
			Expect(err).NotTo(HaveOccurred())
			Expect(miss.Recovered).To(BeFalse())

			stored, err := env.Accounts.GetByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.FailedAttempts).To(BeZero())
			Expect(stored.BackupCodes).To(HaveLen(auth.DefaultBackupCodesCount))
		})
	})
})
