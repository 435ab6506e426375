package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/astro-web3/token-relay/pkg/logger"
	"github.com/astro-web3/token-relay/pkg/security"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// IdentityWhoAmIProcedure is served over the connect protocol. Messages are
// well-known types so no generated code is needed.
const IdentityWhoAmIProcedure = "/tokenrelay.identity.v1.IdentityService/WhoAmI"

type IdentityHandler struct {
	appService RelayService
}

func NewIdentityHandler(appService RelayService) *IdentityHandler {
	return &IdentityHandler{appService: appService}
}

func (h *IdentityHandler) WhoAmI(
	ctx context.Context,
	_ *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	sc, err := security.FromContext(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	id := h.appService.WhoAmI(ctx, sc)

	authorities := make([]any, 0, len(id.Authorities))
	for _, a := range id.Authorities {
		authorities = append(authorities, a)
	}
	fields := map[string]any{
		"subject":       id.Subject,
		"authenticated": id.Authenticated,
		"authorities":   authorities,
	}
	if len(id.Claims) > 0 {
		fields["claims"] = map[string]any(id.Claims)
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Handler returns the connect handler for IdentityWhoAmIProcedure.
func (h *IdentityHandler) Handler() (string, *connect.Handler) {
	return IdentityWhoAmIProcedure, connect.NewUnaryHandler(
		IdentityWhoAmIProcedure,
		h.WhoAmI,
		connect.WithInterceptors(recoveryInterceptor(), connectLoggingInterceptor()),
	)
}

func recoveryInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "panic recovered", slog.Any("panic", r))
					err = connect.NewError(connect.CodeInternal, fmt.Errorf("panic: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}

func connectLoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "rpc failed",
					slog.String("procedure", req.Spec().Procedure),
					slog.Duration("duration", duration),
					slog.String("error", err.Error()),
				)
			} else {
				logger.InfoContext(ctx, "rpc completed",
					slog.String("procedure", req.Spec().Procedure),
					slog.Duration("duration", duration),
				)
			}

			return resp, err
		}
	}
}
