// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/pkg/errutil"
)

func TestVerifyEmail_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "v@x.com", "secret1", auth.UserTypeDisabled)

	require.NoError(t, env.svc.VerifyEmail(env.ctx, token))

	user, err := env.users.GetByEmail(env.ctx, "v@x.com")
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)
	assert.False(t, user.HasPendingVerification())
	assert.Nil(t, user.VerificationExpiresAt)

	t.Run("replay is rejected", func(t *testing.T) {
		err := env.svc.VerifyEmail(env.ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
	})
}

func TestVerifyEmail_ExpiryBoundary(t *testing.T) {
	t.Run("one second before expiry succeeds", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signup(t, "early@x.com", "secret1", auth.UserTypeDisabled)
		env.clock.Advance(auth.VerificationTokenTTL - time.Second)
		require.NoError(t, env.svc.VerifyEmail(env.ctx, token))
	})

	t.Run("one second after expiry fails", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.signup(t, "late@x.com", "secret1", auth.UserTypeDisabled)
		env.clock.Advance(auth.VerificationTokenTTL + time.Second)

		err := env.svc.VerifyEmail(env.ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeTokenExpired)

		user, err := env.users.GetByEmail(env.ctx, "late@x.com")
		require.NoError(t, err)
		assert.False(t, user.EmailVerified)
		assert.Equal(t, 1, env.metrics.operation("verify_email/TOKEN_EXPIRED"))
	})
}

func TestVerifyEmail_Failures(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty token", func(t *testing.T) {
		err := env.svc.VerifyEmail(env.ctx, "")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
		assert.Equal(t, "Verification token is required", err.Error())
	})

	t.Run("unknown token", func(t *testing.T) {
		err := env.svc.VerifyEmail(env.ctx, "0123456789abcdef")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
	})

	t.Run("already verified user with a stray token", func(t *testing.T) {
		user := env.verifiedUser(t, "done@x.com", "secret1")
		stray, err := auth.NewTokenIssuer(env.clock.Now).Issue(time.Hour)
		require.NoError(t, err)
		require.NoError(t, env.users.SetVerificationToken(env.ctx, user.ID, stray.Hash, stray.ExpiresAt))

		err = env.svc.VerifyEmail(env.ctx, stray.Token)
		errutil.AssertErrorCode(t, err, auth.CodeAlreadyVerified)
	})
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	first := env.signup(t, "r@x.com", "secret1", auth.UserTypeNonDisabled)

	msg, err := env.svc.ResendVerification(env.ctx, "r@x.com")
	require.NoError(t, err)
	assert.Equal(t, auth.MsgResendVerification, msg)
	second := env.lastToken(t, auth.NotificationVerification, "r@x.com")
	assert.NotEqual(t, first, second)

	err = env.svc.VerifyEmail(env.ctx, first)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidToken)
	require.NoError(t, env.svc.VerifyEmail(env.ctx, second))
}

func TestResendVerification_SameResponseForEveryCase(t *testing.T) {
	env := newTestEnv(t)
	env.verifiedUser(t, "verified@x.com", "secret1")
	sentBefore := len(env.notifier.messages())

	for _, email := range []string{"verified@x.com", "nobody@x.com"} {
		msg, err := env.svc.ResendVerification(env.ctx, email)
		require.NoError(t, err)
		assert.Equal(t, auth.MsgResendVerification, msg)
	}
	require.NoError(t, env.svc.Close(env.ctx))
	assert.Len(t, env.notifier.messages(), sentBefore, "nothing is sent to verified or unknown addresses")

	_, err := env.svc.ResendVerification(env.ctx, "")
	errutil.AssertErrorCode(t, err, auth.CodeValidation)
}
