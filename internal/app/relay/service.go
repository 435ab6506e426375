package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/astro-web3/token-relay/internal/app/audit"
	relaydomain "github.com/astro-web3/token-relay/internal/domain/relay"
	"github.com/astro-web3/token-relay/pkg/logger"
	"github.com/astro-web3/token-relay/pkg/metrics"
	"github.com/astro-web3/token-relay/pkg/security"
	"github.com/astro-web3/token-relay/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

// Identity is the caller as seen by this service.
type Identity struct {
	Subject       string
	Authenticated bool
	Authorities   []string
	Claims        map[string]any
}

type Service struct {
	domainService relaydomain.Service
	metrics       metrics.RelayMetrics
	auditor       audit.Recorder
}

// NewService wires the relay use cases. auditor may be nil.
func NewService(domainService relaydomain.Service, m metrics.RelayMetrics, auditor audit.Recorder) *Service {
	if m == nil {
		m = metrics.NewNoOpRelayMetrics()
	}
	return &Service{
		domainService: domainService,
		metrics:       m,
		auditor:       auditor,
	}
}

func (s *Service) WhoAmI(ctx context.Context, sc *security.Context) *Identity {
	_, span := tracer.Start(ctx, "app.relay.WhoAmI")
	defer span.End()

	if !sc.Authenticated() {
		span.SetAttributes(attribute.Bool("auth.authenticated", false))
		return &Identity{Authorities: []string{}}
	}

	span.SetAttributes(
		attribute.Bool("auth.authenticated", true),
		attribute.String("auth.subject", sc.Subject()),
	)

	authorities := []string{}
	if sc.Principal.Authorities != nil {
		authorities = sc.Principal.Authorities.Slice()
	}

	return &Identity{
		Subject:       sc.Subject(),
		Authenticated: true,
		Authorities:   authorities,
		Claims:        sc.Principal.Claims,
	}
}

func (s *Service) Forward(
	ctx context.Context,
	sc *security.Context,
	call relaydomain.Call,
) (*relaydomain.Result, error) {
	ctx, span := tracer.Start(ctx, "app.relay.Forward")
	defer span.End()

	_, hasToken := sc.Token()
	span.SetAttributes(
		attribute.String("relay.upstream", call.Upstream),
		attribute.String("relay.method", call.Method),
		attribute.Bool("relay.token_present", hasToken),
	)

	logger.DebugContext(ctx, "relaying call",
		slog.String("upstream", call.Upstream),
		slog.String("method", call.Method),
		slog.String("path", call.Path),
		slog.Bool("token_present", hasToken),
	)

	start := time.Now()
	res, err := s.domainService.Forward(ctx, sc, call)
	duration := time.Since(start)

	status := 0
	relayed := false
	if res != nil {
		status = res.Status
		relayed = res.Relayed
	}

	s.metrics.RecordOutbound(ctx, call.Upstream, relayed, status, duration)
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Event{
			Subject:  sc.Subject(),
			Upstream: call.Upstream,
			Method:   call.Method,
			Path:     call.Path,
			Status:   status,
			Relayed:  relayed,
			Duration: duration,
			Err:      err,
		})
	}

	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("relay.status", res.Status),
		attribute.Bool("relay.relayed", res.Relayed),
	)
	return res, nil
}
