package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"dashroute/internal/config"
	"dashroute/internal/pipeline"
	"dashroute/internal/store"
)

type Server struct {
	Store  store.Store
	Broker EventBroker
	Runner *pipeline.Runner
	Config config.Config

	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a Server. Without a database URL it uses the in-memory
// store; without a redis URL, the in-memory broker.
func NewServer(cfg config.Config, runner *pipeline.Runner) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.Database.URL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := sp.Migrate(context.Background()); err != nil {
			_ = sp.Close()
			return nil, err
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker
	if cfg.Redis.URL != "" {
		if rb, err := NewRedisBroker(cfg.Redis.URL); err == nil {
			broker = rb
		} else {
			log.Warn().Err(err).Msg("redis unavailable, using in-memory broker")
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	return New(cfg, runner, s, broker), nil
}

// New assembles a Server from explicit dependencies.
func New(cfg config.Config, runner *pipeline.Runner, s store.Store, broker EventBroker) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	limit := rate.Inf
	if cfg.HTTP.RateLimit > 0 {
		limit = rate.Limit(cfg.HTTP.RateLimit)
	}
	return &Server{
		Store:   s,
		Broker:  broker,
		Runner:  runner,
		Config:  cfg,
		limiter: rate.NewLimiter(limit, max(1, cfg.HTTP.RateBurst)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Routes returns the HTTP handler with logging and metrics middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Plans
	mux.HandleFunc("/v1/plans", s.PlansHandler)
	mux.HandleFunc("/v1/plans/", s.PlanByIDHandler) // includes /routes.csv, /events
	mux.HandleFunc("/v1/config", s.ConfigHandler)

	// Health & metrics
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", MetricsHandler())

	return logMiddleware(mux)
}

// Close cancels running plans and waits for them to record their outcome.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}
