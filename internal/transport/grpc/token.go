package transportgrpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	grpcinterceptors "github.com/arklim/social-platform-auth/internal/transport/grpc/interceptors"
)

const (
	// TokenServiceName is the fully qualified gRPC service name.
	TokenServiceName = "auth.v1.TokenService"
	// IntrospectMethod checks a token carried in the request body and needs no credentials.
	IntrospectMethod = "/" + TokenServiceName + "/Introspect"
	// CurrentUserMethod resolves the caller's own bearer token.
	CurrentUserMethod = "/" + TokenServiceName + "/CurrentUser"
)

// TokenAuthority is the part of the auth service exposed to peer services.
type TokenAuthority interface {
	Authenticate(ctx context.Context, token string) (*domain.TokenClaims, error)
	Profile(ctx context.Context, userID string) (domain.PublicUser, error)
}

// TokenServiceServer is the server API for auth.v1.TokenService. Messages
// are protobuf well-known types so peers need no generated stubs.
type TokenServiceServer interface {
	Introspect(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	CurrentUser(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// TokenServer implements the auth.v1.TokenService contract.
type TokenServer struct {
	auth   TokenAuthority
	logger *zap.Logger
}

// NewTokenServer constructs a gRPC token server.
func NewTokenServer(auth TokenAuthority, logger *zap.Logger) *TokenServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenServer{auth: auth, logger: logger}
}

// Introspect reports whether the supplied token is currently accepted.
// Rejected tokens produce {"active": false} rather than an error.
func (s *TokenServer) Introspect(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	token := strings.TrimSpace(req.GetValue())
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	claims, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrTransient) {
			s.logger.Error("token introspection unavailable", zap.Error(err))
			return nil, status.Error(codes.Unavailable, "service temporarily unavailable, please retry")
		}
		return structpb.NewStruct(map[string]any{"active": false})
	}

	return structpb.NewStruct(map[string]any{
		"active":     true,
		"user_id":    claims.UserID,
		"jti":        claims.JTI,
		"issued_at":  claims.IssuedAt.Unix(),
		"expires_at": claims.ExpiresAt.Unix(),
	})
}

// CurrentUser returns the public profile of the authenticated caller.
func (s *TokenServer) CurrentUser(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	claims, ok := grpcinterceptors.ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, domain.ErrUnauthenticated.Error())
	}

	user, err := s.auth.Profile(ctx, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAuth):
			return nil, status.Error(codes.Unauthenticated, domain.ErrUnauthenticated.Error())
		case errors.Is(err, domain.ErrTransient):
			return nil, status.Error(codes.Unavailable, "service temporarily unavailable, please retry")
		default:
			s.logger.Error("load current user failed", zap.String("user_id", claims.UserID), zap.Error(err))
			return nil, status.Error(codes.Internal, "internal server error")
		}
	}

	fields := map[string]any{
		"id":              user.ID,
		"email":           user.Email,
		"firstName":       user.FirstName,
		"lastName":        user.LastName,
		"isEmailVerified": user.IsEmailVerified,
		"isActive":        user.IsActive,
		"createdAt":       user.CreatedAt.Format(time.RFC3339),
		"updatedAt":       user.UpdatedAt.Format(time.RFC3339),
	}
	if user.LastLogin != nil {
		fields["lastLogin"] = user.LastLogin.Format(time.RFC3339)
	}

	return structpb.NewStruct(fields)
}

// RegisterTokenServiceServer attaches srv to the gRPC registrar.
func RegisterTokenServiceServer(r grpc.ServiceRegistrar, srv TokenServiceServer) {
	r.RegisterService(&tokenServiceDesc, srv)
}

var tokenServiceDesc = grpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: introspectHandler},
		{MethodName: "CurrentUser", Handler: currentUserHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func introspectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IntrospectMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServiceServer).Introspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func currentUserHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).CurrentUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CurrentUserMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServiceServer).CurrentUser(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
