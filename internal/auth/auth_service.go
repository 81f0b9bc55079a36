// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/empaai/empaai/pkg/errutil"
)

// User-facing messages.
const (
	MsgSignupSuccess          = "Account created successfully! Please check your email and verify your account before logging in."
	MsgInvalidCredentials     = "Invalid email or password"
	MsgEmailNotVerified       = "Email not verified. Please check your email and verify your account before logging in."
	MsgEmailInUse             = "Email already in use"
	MsgVerificationRequired   = "Email verification required"
	MsgResendVerification     = "If an unverified account exists with that email, a verification link has been sent"
	MsgPasswordResetRequested = "If an account with that email exists, a password reset link has been sent"
)

// Operation names used for metrics.
const (
	OpSignup               = "signup"
	OpLogin                = "login"
	OpLogout               = "logout"
	OpVerifyEmail          = "verify_email"
	OpResendVerification   = "resend_verification"
	OpRequestPasswordReset = "request_password_reset"
	OpResetPassword        = "reset_password"
	OpAuthenticate         = "authenticate"
	OpUpdateProfile        = "update_profile"
)

// ServiceConfig holds the tunables of the service.
type ServiceConfig struct {
	VerificationTTL   time.Duration
	ResetTTL          time.Duration
	MinPasswordLength int
	NotifyTimeout     time.Duration
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		VerificationTTL:   VerificationTokenTTL,
		ResetTTL:          ResetTokenTTL,
		MinPasswordLength: 6,
		NotifyTimeout:     30 * time.Second,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// WithClock overrides the clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithConfig overrides DefaultServiceConfig.
func WithConfig(cfg ServiceConfig) Option {
	return func(s *Service) { s.cfg = cfg }
}

// Service implements the credential and verification lifecycle.
type Service struct {
	users    UserRepository
	sessions *SessionManager
	hasher   PasswordHasher
	notifier Notifier
	issuer   *TokenIssuer
	logger   *slog.Logger
	metrics  Metrics
	now      func() time.Time
	cfg      ServiceConfig

	// dummyHash is verified against when the email is unknown so that
	// login latency does not reveal whether an account exists.
	dummyHash string

	inflight sync.WaitGroup
}

// NewService creates a Service. All collaborators are required.
func NewService(users UserRepository, sessions *SessionManager, hasher PasswordHasher, notifier Notifier, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("notifier is required")
	}

	s := &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		notifier: notifier,
		logger:   slog.Default(),
		metrics:  noopMetrics{},
		now:      time.Now,
		cfg:      DefaultServiceConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.VerificationTTL <= 0 || s.cfg.ResetTTL <= 0 {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token ttls must be positive")
	}
	if s.cfg.MinPasswordLength < 1 {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("minimum password length must be at least 1")
	}
	if s.cfg.NotifyTimeout <= 0 {
		s.cfg.NotifyTimeout = DefaultServiceConfig().NotifyTimeout
	}
	s.issuer = NewTokenIssuer(s.now)

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").With("operation", "seed dummy hash").Wrap(err)
	}
	dummy, err := hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").With("operation", "compute dummy hash").Wrap(err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Sessions returns the session manager.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// SignupInput is the signup request.
type SignupInput struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required"`
	UserType UserType `json:"userType" validate:"required,oneof=disabled non-disabled"`
}

// SignupResult is the non-sensitive signup confirmation.
type SignupResult struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// Signup registers an unverified user and sends a verification link.
func (s *Service) Signup(ctx context.Context, in SignupInput) (result *SignupResult, err error) {
	defer func() { s.record(OpSignup, err) }()

	details, err := structDetails(in)
	if err != nil {
		return nil, err
	}
	if in.Password != "" && utf8.RuneCountInString(in.Password) < s.cfg.MinPasswordLength {
		details = append(details, s.passwordLengthDetail("password"))
	}
	if len(details) > 0 {
		return nil, ValidationError("Validation failed", details...)
	}

	_, lookupErr := s.users.GetByEmail(ctx, in.Email)
	switch {
	case lookupErr == nil:
		return nil, oops.Code(CodeDuplicateEmail).Errorf(MsgEmailInUse)
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "get user by email").Wrap(lookupErr)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	tok, err := s.issuer.Issue(s.cfg.VerificationTTL)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "issue verification token").Wrap(err)
	}

	user, err := NewUser(in.Email, hash, in.UserType, s.now())
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "new user").Wrap(err)
	}
	user.VerificationTokenHash = &tok.Hash
	user.VerificationExpiresAt = &tok.ExpiresAt

	// A concurrent signup can still win the race; the store reports it
	// with CodeDuplicateEmail.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, oops.With("operation", "create user").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID.String(), "user_type", string(user.UserType))
	s.dispatch(ctx, NotificationVerification, user.Email, tok.Token)

	return &SignupResult{Message: MsgSignupSuccess, Email: user.Email}, nil
}

// LoginResult is a successful login.
type LoginResult struct {
	User    *User
	Token   string
	Session *Session
}

// Login authenticates a verified user and creates a session.
func (s *Service) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	defer func() { s.record(OpLogin, err) }()

	var details []FieldError
	if email == "" {
		details = append(details, FieldError{Field: "email", Message: "is required"})
	}
	if password == "" {
		details = append(details, FieldError{Field: "password", Message: "is required"})
	}
	if len(details) > 0 {
		return nil, ValidationError("Validation failed", details...)
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)
	targetHash := s.dummyHash
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		exists = true
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by email").Wrap(lookupErr)
	}

	// Always verify so both branches cost one hash computation.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && exists {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !exists || !valid {
		return nil, oops.Code(CodeInvalidCredentials).Errorf(MsgInvalidCredentials)
	}

	if !user.EmailVerified {
		return nil, oops.Code(CodeEmailNotVerified).With("email", user.Email).Errorf(MsgEmailNotVerified)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	token, session, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "create session").Wrap(err)
	}

	return &LoginResult{User: user, Token: token, Session: session}, nil
}

// upgradeHash re-hashes with current parameters. Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}
	user.PasswordHash = newHash
}

// Logout destroys the session for token. Unknown sessions are not an error.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	defer func() { s.record(OpLogout, err) }()
	return s.sessions.Destroy(ctx, token)
}

// Authenticate guards protected requests: it resolves the session and
// re-checks the user. Sessions of missing or unverified users are destroyed.
func (s *Service) Authenticate(ctx context.Context, token string) (user *User, err error) {
	defer func() { s.record(OpAuthenticate, err) }()

	session, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err = s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.destroyQuietly(ctx, token)
			return nil, oops.Code(CodeUnauthorized).With("user_id", session.UserID.String()).Errorf("Unauthorized")
		}
		return nil, oops.Code("AUTH_AUTHENTICATE_FAILED").With("operation", "get user by id").Wrap(err)
	}

	if !user.EmailVerified {
		s.destroyQuietly(ctx, token)
		return nil, oops.Code(CodeForbidden).With("user_id", user.ID.String()).Errorf(MsgVerificationRequired)
	}
	return user, nil
}

func (s *Service) destroyQuietly(ctx context.Context, token string) {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		errutil.LogError(s.logger, "failed to destroy session", err)
	}
}

// ProfileUpdate lists the fields a user may change about themselves.
type ProfileUpdate struct {
	Email *string
}

// UpdateProfile applies a profile update for userID and returns the result.
func (s *Service) UpdateProfile(ctx context.Context, userID ulid.ULID, update ProfileUpdate) (user *User, err error) {
	defer func() { s.record(OpUpdateProfile, err) }()

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("user_id", userID.String()).Errorf("User not found")
		}
		return nil, oops.Code("AUTH_UPDATE_PROFILE_FAILED").With("operation", "get user by id").Wrap(err)
	}

	if update.Email == nil || *update.Email == current.Email {
		return current, nil
	}

	email := *update.Email
	if !validEmail(email) {
		return nil, ValidationError("Validation failed", FieldError{Field: "email", Message: "must be a valid email address"})
	}

	other, lookupErr := s.users.GetByEmail(ctx, email)
	switch {
	case lookupErr == nil && other.ID != userID:
		return nil, oops.Code(CodeDuplicateEmail).Errorf(MsgEmailInUse)
	case lookupErr != nil && !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_UPDATE_PROFILE_FAILED").With("operation", "get user by email").Wrap(lookupErr)
	}

	updated, err := s.users.UpdateEmail(ctx, userID, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("user_id", userID.String()).Errorf("User not found")
		}
		return nil, oops.With("operation", "update email").Wrap(err)
	}
	return updated, nil
}

// Close waits for in-flight notifications or until ctx is done.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("AUTH_CLOSE_TIMEOUT").Wrap(ctx.Err())
	}
}

// dispatch sends a notification in the background. Delivery failures are
// logged and counted but never reported to the caller.
func (s *Service) dispatch(ctx context.Context, kind, email, token string) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
		defer cancel()

		var err error
		switch kind {
		case NotificationVerification:
			err = s.notifier.SendVerificationEmail(sendCtx, email, token)
		case NotificationPasswordReset:
			err = s.notifier.SendPasswordResetEmail(sendCtx, email, token)
		}
		if err != nil {
			s.metrics.RecordNotification(kind, "failed")
			errutil.LogError(s.logger.With("kind", kind), "notification delivery failed", err)
			return
		}
		s.metrics.RecordNotification(kind, "sent")
	}()
}

func (s *Service) record(operation string, err error) {
	if err == nil {
		s.metrics.RecordOperation(operation, "success")
		return
	}
	switch code := errutil.Code(err); code {
	case CodeValidation, CodeDuplicateEmail, CodeInvalidCredentials, CodeEmailNotVerified,
		CodeInvalidToken, CodeAlreadyVerified, CodeTokenExpired, CodeNotFound,
		CodeUnauthorized, CodeForbidden:
		s.metrics.RecordOperation(operation, code)
	default:
		s.metrics.RecordOperation(operation, "error")
	}
}

func (s *Service) passwordLengthDetail(field string) FieldError {
	return FieldError{Field: field, Message: passwordLengthMessage(s.cfg.MinPasswordLength)}
}
