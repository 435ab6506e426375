package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/astro-web3/token-relay/internal/app/audit"
	apprelay "github.com/astro-web3/token-relay/internal/app/relay"
	"github.com/astro-web3/token-relay/internal/config"
	"github.com/astro-web3/token-relay/internal/domain/authn"
	relaydomain "github.com/astro-web3/token-relay/internal/domain/relay"
	"github.com/astro-web3/token-relay/internal/infra/cache"
	"github.com/astro-web3/token-relay/internal/infra/jwks"
	"github.com/astro-web3/token-relay/internal/infra/upstream"
	"github.com/astro-web3/token-relay/pkg/authority"
	"github.com/astro-web3/token-relay/pkg/logger"
	"github.com/astro-web3/token-relay/pkg/metrics"
	"github.com/astro-web3/token-relay/pkg/otel"
	"github.com/astro-web3/token-relay/pkg/tracer"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	httpServer      *http.Server
	metricsProvider *metrics.Provider
	redisClient     *redis.Client
}

const (
	idleTimeoutMultiplier = 2
	serviceName           = "token-relay"
	metricsNamespace      = "token_relay"
	redisConnectTimeout   = 5 * time.Second
)

func NewServer(cfg *config.Config) (*Server, error) {
	logger.InitLogger(cfg.Observability.LogLevel, cfg.Observability.Format, cfg.Observability.LogSource)

	otelCfg := otel.Config{
		ServiceName:        serviceName,
		EndpointURL:        cfg.Observability.TracingEndpointURL,
		Enabled:            cfg.Observability.TraceEnabled,
		SampleRatio:        1.0,
		Insecure:           true,
		ResourceAttributes: make(map[string]string),
	}
	if err := tracer.InitTracer(serviceName, otelCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	srv := &Server{}

	relayMetrics := metrics.NewNoOpRelayMetrics()
	var metricsHandler http.Handler
	if cfg.Observability.MetricsEnabled {
		provider, err := metrics.NewProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics provider: %w", err)
		}
		relayMetrics, err = metrics.NewRelayMetrics(provider.MeterProvider(), metricsNamespace)
		if err != nil {
			return nil, fmt.Errorf("failed to create relay metrics: %w", err)
		}
		srv.metricsProvider = provider
		metricsHandler = provider.Handler()
	}

	verifier := jwks.NewVerifier(jwks.NewRemoteKeys(cfg.Auth.JWKSURL), jwks.Options{
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		Algorithms: cfg.Auth.Algorithms,
		Leeway:     cfg.Auth.Leeway,
	})
	extract := newExtractor(cfg.Auth.Authorities)

	var authService authn.Service
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.URL, cfg.Redis.PoolSize)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		srv.redisClient = redisClient
		authService = authn.NewServiceWithCache(verifier, extract, cache.NewPrincipalCache(redisClient), cfg.Auth.CacheTTL)
	} else if cfg.Auth.CacheTTL > 0 && cfg.Auth.CacheSize > 0 {
		memoryCache, err := cache.NewMemoryPrincipalCache(cfg.Auth.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create principal cache: %w", err)
		}
		authService = authn.NewServiceWithCache(verifier, extract, memoryCache, cfg.Auth.CacheTTL)
	} else {
		authService = authn.NewService(verifier, extract)
	}

	required := make(map[string]string, len(cfg.Upstreams))
	for name, u := range cfg.Upstreams {
		required[name] = u.RequiredAuthority
	}
	registry := upstream.NewRegistry(cfg.Upstreams)
	logger.InfoContext(context.Background(), "upstreams configured",
		slog.Any("upstreams", registry.Names()),
	)
	domainService := relaydomain.NewService(registry, required)

	var auditor audit.Recorder
	if cfg.Audit.Enabled {
		auditor = audit.NewLogRecorder()
	}
	appService := apprelay.NewService(domainService, relayMetrics, auditor)

	router := NewRouter(cfg, RouterDeps{
		Handler:         NewHandler(appService),
		IdentityHandler: NewIdentityHandler(appService),
		AuthService:     authService,
		Metrics:         relayMetrics,
		MetricsHandler:  metricsHandler,
	})

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout * idleTimeoutMultiplier,
	}

	return srv, nil
}

func newExtractor(mappings []config.AuthorityMapping) authority.Extractor {
	if len(mappings) == 0 {
		return authority.ExtractAuthorityFromClaims
	}
	m := make([]authority.Mapping, 0, len(mappings))
	for _, am := range mappings {
		m = append(m, authority.Mapping{
			Claim:     am.Claim,
			Prefix:    am.Prefix,
			Delimiter: am.Delimiter,
			Uppercase: am.Uppercase,
		})
	}
	return authority.NewExtractor(m...)
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the listener first, then releases the metrics provider and
// the redis pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.metricsProvider != nil {
		err = errors.Join(err, s.metricsProvider.Shutdown(ctx))
	}
	if s.redisClient != nil {
		err = errors.Join(err, s.redisClient.Close())
	}
	return err
}
