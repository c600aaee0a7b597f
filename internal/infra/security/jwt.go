package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

const (
	defaultAccessTokenTTL = 24 * time.Hour
	minSecretLength       = 32
)

// ErrSecretTooShort indicates the signing secret is below the HS256 key size.
var ErrSecretTooShort = errors.New("jwt: signing secret must be at least 32 bytes")

// AccessTokenClaims augments registered claims with the authenticated user id.
type AccessTokenClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenConfig configures token issuance. Rotating Secret invalidates every
// outstanding token.
type TokenConfig struct {
	Secret   []byte
	TTL      time.Duration
	Issuer   string
	Audience []string
}

// TokenService issues and verifies HS256 bearer tokens.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience []string
	denylist port.JTIDenylist
	now      func() time.Time
}

// NewTokenService constructs a TokenService. denylist may be nil, in which
// case revocation is unsupported and Revoke returns an error.
func NewTokenService(cfg TokenConfig, denylist port.JTIDenylist) (*TokenService, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &TokenService{
		secret:   secret,
		ttl:      ttl,
		issuer:   issuer,
		audience: append([]string(nil), cfg.Audience...),
		denylist: denylist,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the internal clock for deterministic testing.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL returns the lifetime of newly issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID expiring after the configured TTL.
func (s *TokenService) Issue(userID string) (domain.IssuedToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.IssuedToken{}, fmt.Errorf("jwt: user id is required")
	}

	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	jti := uuid.NewString()

	claims := AccessTokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  s.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return domain.IssuedToken{
		Token:     signed,
		JTI:       jti,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature, algorithm, issuer, audience, and expiry, then
// consults the denylist. Every rejection wraps domain.ErrInvalidToken.
func (s *TokenService) Verify(ctx context.Context, token string) (*domain.TokenClaims, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}

	if s.denylist != nil {
		revoked, err := s.denylist.Contains(ctx, claims.ID)
		if err != nil {
			return nil, domain.Transient("check token denylist", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", domain.ErrInvalidToken)
		}
	}

	out := &domain.TokenClaims{
		UserID: claims.UserID,
		JTI:    claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// ParseAccessToken validates the token cryptographically without consulting the denylist.
func (s *TokenService) ParseAccessToken(token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is empty", domain.ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if len(s.audience) > 0 {
		opts = append(opts, jwt.WithAudience(s.audience[0]))
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: token not valid", domain.ErrInvalidToken)
	}
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, fmt.Errorf("%w: missing required claims", domain.ErrInvalidToken)
	}

	return claims, nil
}

// Revoke denylists the token identifier until the token's natural expiry.
func (s *TokenService) Revoke(ctx context.Context, claims domain.TokenClaims, reason string) error {
	if s.denylist == nil {
		return fmt.Errorf("jwt: token revocation not configured")
	}
	revocation := domain.TokenRevocation{
		JTI:       claims.JTI,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt,
		RevokedAt: s.now().UTC(),
		Reason:    reason,
	}
	if err := s.denylist.AddRevocation(ctx, revocation); err != nil {
		return domain.Transient("revoke token", err)
	}
	return nil
}

var _ port.TokenIssuer = (*TokenService)(nil)
