package interceptors

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

type stubAuthenticator struct {
	claims *domain.TokenClaims
	err    error
	calls  int
}

func (s *stubAuthenticator) Authenticate(context.Context, string) (*domain.TokenClaims, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func withBearer(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func TestAuthInterceptorAllowsValidTokens(t *testing.T) {
	auth := &stubAuthenticator{claims: &domain.TokenClaims{UserID: "user-123", JTI: "jti-1"}}
	interceptor := NewAuthInterceptor(auth, AuthOptions{Logger: zaptest.NewLogger(t)}).UnaryServerInterceptor()

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		got, ok := ClaimsFromContext(ctx)
		if !ok || got.UserID != "user-123" {
			t.Fatalf("claims missing from context")
		}
		return "ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/auth.v1.TokenService/CurrentUser"}
	if _, err := interceptor(withBearer("token-value"), struct{}{}, info, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthInterceptorRejectsMissingToken(t *testing.T) {
	auth := &stubAuthenticator{}
	interceptor := NewAuthInterceptor(auth, AuthOptions{}).UnaryServerInterceptor()

	info := &grpc.UnaryServerInfo{FullMethod: "/auth.v1.TokenService/CurrentUser"}
	_, err := interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatalf("handler should not be invoked")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}
	if auth.calls != 0 {
		t.Fatalf("authenticator should not run without a token")
	}
}

func TestAuthInterceptorPassesThroughAllowedMethods(t *testing.T) {
	auth := &stubAuthenticator{err: errors.New("should not be called")}
	interceptor := NewAuthInterceptor(auth, AuthOptions{AllowMethods: []string{"/auth.v1.TokenService/Introspect"}}).UnaryServerInterceptor()

	info := &grpc.UnaryServerInfo{FullMethod: "/auth.v1.TokenService/Introspect"}
	if _, err := interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "pong", nil
	}); err != nil {
		t.Fatalf("expected allowed method to succeed, got %v", err)
	}
}

func TestAuthInterceptorMapsFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "rejected token", err: domain.ErrUnauthenticated, code: codes.Unauthenticated},
		{name: "revoked token", err: errors.Join(domain.ErrUnauthenticated, domain.ErrInvalidToken), code: codes.Unauthenticated},
		{name: "store outage", err: domain.Transient("denylist", errors.New("connection refused")), code: codes.Unavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			interceptor := NewAuthInterceptor(&stubAuthenticator{err: tc.err}, AuthOptions{}).UnaryServerInterceptor()
			info := &grpc.UnaryServerInfo{FullMethod: "/auth.v1.TokenService/CurrentUser"}
			_, err := interceptor(withBearer("token"), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				t.Fatalf("handler should not be invoked")
				return nil, nil
			})
			if status.Code(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestTokenFromMetadata(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer abc.def", want: "abc.def"},
		{name: "lower case scheme", header: "bearer abc", want: "abc"},
		{name: "basic scheme", header: "Basic abc", wantErr: true},
		{name: "empty token", header: "Bearer   ", wantErr: true},
		{name: "embedded space", header: "Bearer abc def", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", tc.header))
			got, err := tokenFromMetadata(ctx)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got token %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
