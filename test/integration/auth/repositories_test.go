// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

//go:build integration

package auth_test

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/pkg/errutil"
)

var _ = Describe("UserRepository", func() {
	BeforeEach(truncate)

	It("round trips a user", func() {
		u := newTestUser("round@trip.io")
		Expect(env.Users.Create(env.ctx, u)).To(Succeed())

		got, err := env.Users.GetByID(env.ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Email).To(Equal("round@trip.io"))
		Expect(got.UserType).To(Equal(auth.UserTypeNonDisabled))
		Expect(got.EmailVerified).To(BeFalse())
		Expect(got.PasswordHash).To(Equal("$argon2id$hash"))

		byEmail, err := env.Users.GetByEmail(env.ctx, "round@trip.io")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(u.ID))
	})

	It("reports missing users as not found", func() {
		_, err := env.Users.GetByID(env.ctx, ulid.Make())
		Expect(err).To(MatchError(auth.ErrNotFound))
		Expect(errutil.Code(err)).To(Equal("USER_NOT_FOUND"))

		_, err = env.Users.GetByEmail(env.ctx, "nobody@trip.io")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("enforces unique emails through the constraint", func() {
		Expect(env.Users.Create(env.ctx, newTestUser("dup@trip.io"))).To(Succeed())

		err := env.Users.Create(env.ctx, newTestUser("dup@trip.io"))
		Expect(errutil.Code(err)).To(Equal(auth.CodeDuplicateEmail))

		other := newTestUser("other@trip.io")
		Expect(env.Users.Create(env.ctx, other)).To(Succeed())
		_, err = env.Users.UpdateEmail(env.ctx, other.ID, "dup@trip.io")
		Expect(errutil.Code(err)).To(Equal(auth.CodeDuplicateEmail))

		updated, err := env.Users.UpdateEmail(env.ctx, other.ID, "renamed@trip.io")
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Email).To(Equal("renamed@trip.io"))
		Expect(updated.UpdatedAt).To(BeTemporally(">=", other.UpdatedAt))
	})

	It("consumes tokens once", func() {
		u := newTestUser("tokens@trip.io")
		Expect(env.Users.Create(env.ctx, u)).To(Succeed())
		exp := time.Now().Add(time.Hour)

		Expect(env.Users.SetVerificationToken(env.ctx, u.ID, "v1", exp)).To(Succeed())
		Expect(env.Users.SetVerificationToken(env.ctx, u.ID, "v2", exp)).To(Succeed())

		_, err := env.Users.GetByVerificationToken(env.ctx, "v1")
		Expect(err).To(MatchError(auth.ErrNotFound))
		found, err := env.Users.GetByVerificationToken(env.ctx, "v2")
		Expect(err).NotTo(HaveOccurred())
		Expect(found.VerificationExpiresAt).NotTo(BeNil())
		Expect(*found.VerificationExpiresAt).To(BeTemporally("~", exp, time.Millisecond))

		Expect(env.Users.MarkEmailVerified(env.ctx, u.ID, "v1")).To(MatchError(auth.ErrNotFound))
		Expect(env.Users.MarkEmailVerified(env.ctx, u.ID, "v2")).To(Succeed())
		Expect(env.Users.MarkEmailVerified(env.ctx, u.ID, "v2")).To(MatchError(auth.ErrNotFound))

		Expect(env.Users.SetResetToken(env.ctx, u.ID, "r1", exp)).To(Succeed())
		Expect(env.Users.ResetPassword(env.ctx, u.ID, "r1", "newhash")).To(Succeed())
		Expect(env.Users.ResetPassword(env.ctx, u.ID, "r1", "again")).To(MatchError(auth.ErrNotFound))

		got, err := env.Users.GetByID(env.ctx, u.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.EmailVerified).To(BeTrue())
		Expect(got.PasswordHash).To(Equal("newhash"))
		Expect(got.HasPendingVerification()).To(BeFalse())
		Expect(got.HasPendingReset()).To(BeFalse())
	})

	It("lets exactly one concurrent reset win", func() {
		u := newTestUser("race@trip.io")
		Expect(env.Users.Create(env.ctx, u)).To(Succeed())
		Expect(env.Users.SetResetToken(env.ctx, u.ID, "race", time.Now().Add(time.Hour))).To(Succeed())

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if env.Users.ResetPassword(env.ctx, u.ID, "race", "winner") == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		Expect(wins.Load()).To(Equal(int32(1)))
	})
})

var _ = Describe("SessionStore", func() {
	BeforeEach(truncate)

	It("stores, resolves and deletes sessions", func() {
		now := time.Now().UTC()
		s, err := auth.NewSession(ulid.Make(), "digest", now, now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Sessions.Create(env.ctx, s)).To(Succeed())

		got, err := env.Sessions.Get(env.ctx, "digest")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.UserID).To(Equal(s.UserID))
		Expect(got.ExpiresAt).To(BeTemporally("~", s.ExpiresAt, time.Millisecond))

		Expect(env.Sessions.Delete(env.ctx, "digest")).To(Succeed())
		Expect(env.Sessions.Delete(env.ctx, "digest")).To(MatchError(auth.ErrNotFound))
		_, err = env.Sessions.Get(env.ctx, "digest")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("sweeps only expired sessions", func() {
		now := time.Now().UTC()
		for i, ttl := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
			s, err := auth.NewSession(ulid.Make(), string(rune('a'+i)), now.Add(-2*time.Hour), now.Add(ttl))
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Sessions.Create(env.ctx, s)).To(Succeed())
		}

		n, err := env.Sessions.DeleteExpired(env.ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(2)))

		_, err = env.Sessions.Get(env.ctx, "c")
		Expect(err).NotTo(HaveOccurred())
	})
})
