// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

//go:build integration

package auth_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/pkg/errutil"
)

var _ = Describe("Account lifecycle on PostgreSQL", Ordered, func() {
	const (
		email    = "flow@empaai.io"
		password = "secret123"
	)

	var (
		svc   *auth.Service
		mail  *mailbox
		token string
	)

	// flush waits for background notifications.
	flush := func() {
		ctx, cancel := context.WithTimeout(env.ctx, 5*time.Second)
		defer cancel()
		Expect(svc.Close(ctx)).To(Succeed())
	}

	BeforeAll(func() {
		truncate()

		sessions, err := auth.NewSessionManager(env.Sessions, auth.WithSessionLogger(quietLogger()))
		Expect(err).NotTo(HaveOccurred())
		hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32})
		Expect(err).NotTo(HaveOccurred())

		mail = newMailbox()
		svc, err = auth.NewService(env.Users, sessions, hasher, mail, auth.WithLogger(quietLogger()))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(flush)

	It("signs up and sends a verification link", func() {
		res, err := svc.Signup(env.ctx, auth.SignupInput{Email: email, Password: password, UserType: auth.UserTypeDisabled})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Email).To(Equal(email))

		flush()
		Expect(mail.token(auth.NotificationVerification, email)).NotTo(BeEmpty())

		_, err = svc.Signup(env.ctx, auth.SignupInput{Email: email, Password: password, UserType: auth.UserTypeDisabled})
		Expect(errutil.Code(err)).To(Equal(auth.CodeDuplicateEmail))
	})

	It("refuses login before verification", func() {
		_, err := svc.Login(env.ctx, email, password)
		Expect(errutil.Code(err)).To(Equal(auth.CodeEmailNotVerified))
	})

	It("verifies the email once", func() {
		verification := mail.token(auth.NotificationVerification, email)
		Expect(svc.VerifyEmail(env.ctx, verification)).To(Succeed())
		Expect(errutil.Code(svc.VerifyEmail(env.ctx, verification))).To(Equal(auth.CodeInvalidToken))
	})

	It("logs in and authenticates the session", func() {
		res, err := svc.Login(env.ctx, email, password)
		Expect(err).NotTo(HaveOccurred())
		token = res.Token

		user, err := svc.Authenticate(env.ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Email).To(Equal(email))
		Expect(user.EmailVerified).To(BeTrue())
	})

	It("updates the profile email", func() {
		user, err := svc.Authenticate(env.ctx, token)
		Expect(err).NotTo(HaveOccurred())

		renamed := "renamed@empaai.io"
		updated, err := svc.UpdateProfile(env.ctx, user.ID, auth.ProfileUpdate{Email: &renamed})
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.Email).To(Equal(renamed))

		restored := email
		_, err = svc.UpdateProfile(env.ctx, user.ID, auth.ProfileUpdate{Email: &restored})
		Expect(err).NotTo(HaveOccurred())
	})

	It("resets the password through an emailed token", func() {
		msg, err := svc.RequestPasswordReset(env.ctx, email)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg).To(Equal(auth.MsgPasswordResetRequested))

		flush()
		reset := mail.token(auth.NotificationPasswordReset, email)
		Expect(reset).NotTo(BeEmpty())

		Expect(svc.ResetPassword(env.ctx, reset, "brandnew1")).To(Succeed())
		Expect(errutil.Code(svc.ResetPassword(env.ctx, reset, "brandnew2"))).To(Equal(auth.CodeInvalidToken))

		_, err = svc.Login(env.ctx, email, password)
		Expect(errutil.Code(err)).To(Equal(auth.CodeInvalidCredentials))
		_, err = svc.Login(env.ctx, email, "brandnew1")
		Expect(err).NotTo(HaveOccurred())
	})

	It("keeps the earlier session after a reset and ends it on logout", func() {
		_, err := svc.Authenticate(env.ctx, token)
		Expect(err).NotTo(HaveOccurred())

		Expect(svc.Logout(env.ctx, token)).To(Succeed())
		_, err = svc.Authenticate(env.ctx, token)
		Expect(errutil.Code(err)).To(Equal(auth.CodeUnauthorized))
	})
})
