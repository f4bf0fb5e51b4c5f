package grpc

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/rpc"
	"github.com/dmitrijs2005/charasync/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const userIDKey ctxKey = "userID"

func userIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", rpc.ToStatus(common.ErrUnauthorized)
	}
	return id, nil
}

// requiresToken reports whether method belongs to the charasync service
// and is not one of its public calls. Health checks pass without a token.
func requiresToken(method string) bool {
	if !strings.HasPrefix(method, "/"+rpc.ServiceName+"/") {
		return false
	}
	_, public := rpc.PublicMethods[method]
	return !public
}

func (s *GRPCServer) authenticate(ctx context.Context) (context.Context, error) {
	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, rpc.ToStatus(common.ErrUnauthorized)
	}

	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			// the bare sentinel message tells the client to refresh
			return nil, rpc.ToStatus(common.ErrTokenExpired)
		}
		return nil, rpc.ToStatus(common.ErrInvalidToken)
	}
	return context.WithValue(ctx, userIDKey, userID), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !requiresToken(info.FullMethod) {
		return handler(ctx, req)
	}
	ctx, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func (s *GRPCServer) streamAccessTokenInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if !requiresToken(info.FullMethod) {
		return handler(srv, ss)
	}
	ctx, err := s.authenticate(ss.Context())
	if err != nil {
		return err
	}
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}

func (s *GRPCServer) observe(ctx context.Context, fullMethod string, start time.Time, err error) {
	method := path.Base(fullMethod)
	code := status.Code(err)
	s.metrics.ObserveRPC(method, code.String(), time.Since(start))
	if err != nil {
		s.logger.Warn(ctx, "rpc failed", "method", method, "code", code.String(), "error", status.Convert(err).Message())
		return
	}
	s.logger.Debug(ctx, "rpc served", "method", method, "duration", time.Since(start))
}

func (s *GRPCServer) observeInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.observe(ctx, info.FullMethod, start, err)
	return resp, err
}

func (s *GRPCServer) observeStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()
	err := handler(srv, ss)
	s.observe(ss.Context(), info.FullMethod, start, err)
	return err
}
