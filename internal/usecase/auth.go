package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/logger"
	"github.com/arklim/social-platform-auth/internal/repository"
)

const (
	defaultOperationTimeout = 5 * time.Second
	tracerName              = "github.com/arklim/social-platform-auth/internal/usecase"

	// dummyPassword feeds the verification performed for unknown emails so
	// that both login failure paths cost one hash verification.
	dummyPassword = "timing-equalisation-placeholder"
)

// AuthObserver receives one observation per completed auth operation.
type AuthObserver interface {
	ObserveAuth(operation, outcome string, elapsed time.Duration)
}

// AuthDependencies wires the collaborators of AuthService.
type AuthDependencies struct {
	Users            port.UserRepository
	Hasher           port.PasswordHasher
	Tokens           port.TokenIssuer
	Validator        port.CredentialValidator
	Events           port.EventPublisher
	Logger           *zap.Logger
	Metrics          AuthObserver
	OperationTimeout time.Duration
}

// AuthService coordinates registration, login and token-based identity.
type AuthService struct {
	users     port.UserRepository
	hasher    port.PasswordHasher
	tokens    port.TokenIssuer
	validator port.CredentialValidator
	events    port.EventPublisher
	logger    *zap.Logger
	metrics   AuthObserver
	timeout   time.Duration
	tracer    trace.Tracer
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(deps AuthDependencies) (*AuthService, error) {
	if deps.Users == nil {
		return nil, errors.New("user repository is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if deps.Validator == nil {
		return nil, errors.New("credential validator is required")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := deps.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}

	return &AuthService{
		users:     deps.Users,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		validator: deps.Validator,
		events:    deps.Events,
		logger:    log,
		metrics:   deps.Metrics,
		timeout:   timeout,
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the internal clock for deterministic testing.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register validates input, stores a new user and issues a token for it.
// Fields are validated in order email, password, firstName, lastName and
// the first failure is returned.
func (s *AuthService) Register(ctx context.Context, in domain.RegisterInput) (result domain.AuthResult, err error) {
	ctx, finish := s.begin(ctx, "register")
	defer func() { finish(err) }()

	email, err := s.validator.ValidateEmail(in.Email)
	if err != nil {
		return domain.AuthResult{}, err
	}
	password, err := s.validator.ValidatePassword(in.Password, email, in.FirstName, in.LastName)
	if err != nil {
		return domain.AuthResult{}, err
	}
	firstName, err := s.validator.ValidateName(in.FirstName, "firstName")
	if err != nil {
		return domain.AuthResult{}, err
	}
	lastName, err := s.validator.ValidateName(in.LastName, "lastName")
	if err != nil {
		return domain.AuthResult{}, err
	}

	// Best-effort pre-check; the repository's unique index remains authoritative.
	_, err = withTimeout(ctx, s.timeout, "lookup user by email", func(ctx context.Context) (*domain.User, error) {
		return s.users.GetByEmail(ctx, email)
	})
	switch {
	case err == nil:
		return domain.AuthResult{}, domain.ErrEmailExists
	case !errors.Is(err, repository.ErrNotFound):
		return domain.AuthResult{}, err
	}

	hash, err := runBounded(ctx, s.timeout, "hash password", func() (string, error) {
		return s.hasher.Hash(password)
	})
	if err != nil {
		return domain.AuthResult{}, err
	}

	user, err := withTimeout(ctx, s.timeout, "create user", func(ctx context.Context) (*domain.User, error) {
		return s.users.Create(ctx, domain.NewUser{
			Email:        email,
			PasswordHash: hash,
			FirstName:    firstName,
			LastName:     lastName,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.AuthResult{}, domain.ErrEmailExists
		}
		return domain.AuthResult{}, err
	}

	issued, err := s.tokens.Issue(user.ID)
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.publish(ctx, "user.registered", user.ID, func(ctx context.Context) error {
		return s.events.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			Email:        user.Email,
			RegisteredAt: user.CreatedAt,
			Metadata:     s.eventMetadata(ctx),
		})
	})

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	return domain.AuthResult{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      user.Public(),
	}, nil
}

// Login authenticates by email and password. Unknown email, wrong password
// and inactive account are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (result domain.AuthResult, err error) {
	ctx, finish := s.begin(ctx, "login")
	defer func() { finish(err) }()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.AuthResult{}, domain.NewValidationError("credentials", "required", "please provide email and password")
	}

	user, err := withTimeout(ctx, s.timeout, "lookup user by email", func(ctx context.Context) (*domain.User, error) {
		return s.users.GetByEmail(ctx, email)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.equaliseTiming(ctx, password)
			return domain.AuthResult{}, domain.ErrInvalidCredentials
		}
		return domain.AuthResult{}, err
	}

	ok, err := runBounded(ctx, s.timeout, "verify password", func() (bool, error) {
		return s.hasher.Verify(password, user.PasswordHash)
	})
	if err != nil {
		return domain.AuthResult{}, err
	}
	if !ok || !user.IsActive {
		return domain.AuthResult{}, domain.ErrInvalidCredentials
	}

	now := s.now()
	update := domain.UserUpdate{LastLogin: &now}
	rehashed := false
	if s.hasher.NeedsRehash(user.PasswordHash) {
		upgraded, herr := runBounded(ctx, s.timeout, "rehash password", func() (string, error) {
			return s.hasher.Hash(password)
		})
		if herr != nil {
			s.logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(herr))
		} else {
			update.PasswordHash = &upgraded
			rehashed = true
		}
	}

	updated, err := withTimeout(ctx, s.timeout, "update last login", func(ctx context.Context) (*domain.User, error) {
		return s.users.Update(ctx, user.ID, update)
	})
	if err != nil {
		s.logger.Warn("record last login failed", zap.String("user_id", user.ID), zap.Error(err))
		user.LastLogin = &now
		rehashed = false
	} else {
		user = updated
	}

	issued, err := s.tokens.Issue(user.ID)
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.publish(ctx, "user.logged_in", user.ID, func(ctx context.Context) error {
		return s.events.PublishUserLoggedIn(ctx, domain.UserLoggedInEvent{
			EventID:          uuid.NewString(),
			UserID:           user.ID,
			LoggedInAt:       now,
			PasswordRehashed: rehashed,
			Metadata:         s.eventMetadata(ctx),
		})
	})

	return domain.AuthResult{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      user.Public(),
	}, nil
}

// Authenticate verifies a bearer token. Every token failure is reported as
// domain.ErrUnauthenticated; backend failures keep their transient kind.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.TokenClaims, error) {
	claims, err := s.tokens.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrTransient) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	return claims, nil
}

// Profile returns the public view of an active user.
func (s *AuthService) Profile(ctx context.Context, userID string) (domain.PublicUser, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return domain.PublicUser{}, err
	}
	return user.Public(), nil
}

// CurrentUser resolves the owner of token.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (user domain.PublicUser, err error) {
	ctx, finish := s.begin(ctx, "current_user")
	defer func() { finish(err) }()

	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return domain.PublicUser{}, err
	}
	return s.Profile(ctx, claims.UserID)
}

// UpdateProfile changes the optional name fields of an active user.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in domain.ProfileUpdate) (user domain.PublicUser, err error) {
	ctx, finish := s.begin(ctx, "update_profile")
	defer func() { finish(err) }()

	var update domain.UserUpdate
	if in.FirstName != nil {
		first, err := s.validator.ValidateName(*in.FirstName, "firstName")
		if err != nil {
			return domain.PublicUser{}, err
		}
		update.FirstName = &first
	}
	if in.LastName != nil {
		last, err := s.validator.ValidateName(*in.LastName, "lastName")
		if err != nil {
			return domain.PublicUser{}, err
		}
		update.LastName = &last
	}

	if _, err := s.activeUser(ctx, userID); err != nil {
		return domain.PublicUser{}, err
	}
	if update.IsEmpty() {
		return s.Profile(ctx, userID)
	}

	updated, err := withTimeout(ctx, s.timeout, "update profile", func(ctx context.Context) (*domain.User, error) {
		return s.users.Update(ctx, userID, update)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.PublicUser{}, domain.ErrUnauthenticated
		}
		return domain.PublicUser{}, err
	}
	return updated.Public(), nil
}

// Logout revokes the presented token until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, claims domain.TokenClaims) (err error) {
	ctx, finish := s.begin(ctx, "logout")
	defer func() { finish(err) }()

	if strings.TrimSpace(claims.JTI) == "" {
		return domain.ErrUnauthenticated
	}
	if err := s.tokens.Revoke(ctx, claims, "logout"); err != nil {
		return err
	}

	s.publish(ctx, "token.revoked", claims.UserID, func(ctx context.Context) error {
		return s.events.PublishTokenRevoked(ctx, domain.TokenRevokedEvent{
			EventID:   uuid.NewString(),
			JTI:       claims.JTI,
			UserID:    claims.UserID,
			ExpiresAt: claims.ExpiresAt,
			RevokedAt: s.now(),
			Reason:    "logout",
			Metadata:  s.eventMetadata(ctx),
		})
	})
	return nil
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	user, err := withTimeout(ctx, s.timeout, "lookup user", func(ctx context.Context) (*domain.User, error) {
		return s.users.GetByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrUnauthenticated
	}
	return user, nil
}

func (s *AuthService) equaliseTiming(ctx context.Context, password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Warn("prepare dummy hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash == "" {
		return
	}
	_, _ = runBounded(ctx, s.timeout, "verify password", func() (bool, error) {
		return s.hasher.Verify(password, s.dummyHash)
	})
}

func (s *AuthService) publish(ctx context.Context, eventType, userID string, send func(context.Context) error) {
	if s.events == nil {
		return
	}
	if err := send(ctx); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("event_type", eventType),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func (s *AuthService) eventMetadata(ctx context.Context) map[string]any {
	metadata := map[string]any{}
	if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	return metadata
}

// begin opens a span for operation and returns a func that records its
// outcome in tracing and metrics.
func (s *AuthService) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "auth."+operation)
	return ctx, func(err error) {
		outcome := domain.ErrorKind(err)
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			if outcome == "transient" || outcome == "fatal" {
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveAuth(operation, outcome, s.now().Sub(start))
		}
	}
}

// withTimeout bounds a context-aware call. Deadline and cancellation errors
// are reported as transient.
func withTimeout[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err == nil {
		return v, nil
	}
	switch {
	case errors.Is(err, domain.ErrTransient),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrDuplicateEmail):
		return v, err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), callCtx.Err() != nil:
		return v, domain.Transient(op, err)
	default:
		return v, fmt.Errorf("%s: %w", op, err)
	}
}

// runBounded runs a CPU-bound call that cannot observe ctx, abandoning it
// once the deadline passes. The call keeps running in the background and its
// result is discarded.
func runBounded[T any](ctx context.Context, timeout time.Duration, op string, fn func() (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.v, fmt.Errorf("%s: %w", op, r.err)
		}
		return r.v, nil
	case <-callCtx.Done():
		var zero T
		return zero, domain.Transient(op, callCtx.Err())
	}
}
