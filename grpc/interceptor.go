package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ac "github.com/panyam/authcore"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	*Config

	// Verifier checks bearer tokens. Usually the *authcore.JWTIssuer that signed them.
	Verifier ac.TokenVerifier

	// RequireAuth when true rejects unauthenticated requests.
	RequireAuth bool

	// PublicMethods don't require auth even when RequireAuth is set.
	// Keys are full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(verifier ac.TokenVerifier) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Verifier:      verifier,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(verifier ac.TokenVerifier, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(verifier ac.TokenVerifier) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c == nil {
		c = DefaultInterceptorConfig(nil)
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	return c
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that authenticates
// the caller and stores the user id in the handler context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

// authenticate resolves the caller. A token that is present but invalid is
// always rejected; a missing one only when the method requires auth.
func authenticate(ctx context.Context, config *InterceptorConfig, method string) (context.Context, error) {
	userID, err := extractUserID(ctx, config)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		if config.RequireAuth && !config.PublicMethods[method] {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	return ContextWithUserID(ctx, userID), nil
}

func extractUserID(ctx context.Context, config *InterceptorConfig) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}

	if values := md.Get(config.MetadataKeyAuthorization); len(values) > 0 && values[0] != "" {
		token := strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
		if config.Verifier == nil {
			return "", status.Error(codes.Unauthenticated, "token verification not configured")
		}
		userID, err := config.Verifier.Verify(token)
		if err != nil || userID == "" {
			return "", status.Error(codes.Unauthenticated, "invalid token")
		}
		return userID, nil
	}

	if config.TrustUserIDMetadata {
		if values := md.Get(config.MetadataKeyUserID); len(values) > 0 {
			return values[0], nil
		}
	}
	return "", nil
}
