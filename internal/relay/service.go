// Package relay provides the HearMe relay service: prediction, conversation
// logging, generated replies and the mood/feedback API.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/thebtf/hearme/internal/catalog"
	"github.com/thebtf/hearme/internal/config"
	"github.com/thebtf/hearme/internal/db"
	"github.com/thebtf/hearme/internal/maintenance"
	"github.com/thebtf/hearme/internal/scoring"
	"github.com/thebtf/hearme/internal/watcher"
	"github.com/thebtf/hearme/pkg/models"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxBodySize caps request bodies.
	DefaultMaxBodySize = 1 << 20
)

// Predictor classifies a message and builds the structured reply.
type Predictor interface {
	Predict(ctx context.Context, text string) (*models.Prediction, error)
	ModelName() string
}

// ReplyGenerator produces the generated interview reply.
// On failure it still returns a usable fallback text along with the error.
type ReplyGenerator interface {
	Generate(ctx context.Context, userID, message, prediction string) (string, error)
}

// Dependencies are the components the service routes requests to.
// Predictor and Conversations are required; the rest are optional and the
// routes that need them answer 503 when absent.
type Dependencies struct {
	Predictor     Predictor
	Generator     ReplyGenerator
	Conversations db.ConversationLog
	Moods         db.MoodStore
	Feedback      db.FeedbackStore
	Patients      db.PatientStore
	Database      db.Pinger
	Catalog       *catalog.Catalog
	Limits        *Limits

	// Closers are closed on shutdown, in order.
	Closers []io.Closer
}

// Service is the relay HTTP service.
type Service struct {
	// Version of the relay binary
	version string

	// Configuration
	config *config.Config

	// Domain components, set once initialization completes
	deps     Dependencies
	analyzer *scoring.Analyzer

	// HTTP and gRPC servers
	router     *chi.Mux
	server     *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	startTime  time.Time

	// Lifecycle
	wg          sync.WaitGroup
	watchers    []*watcher.Watcher
	maintenance *maintenance.Service

	// Initialization state (for deferred init)
	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex
}

// NewService creates a service that is not ready yet. Routes are live
// immediately; those that need components answer 503 until Attach is called.
func NewService(version string, cfg *config.Config, limits *Limits) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if limits == nil {
		limits = NewLimits(DefaultRateLimits(), nil)
	}

	svc := &Service{
		version:   version,
		config:    cfg,
		router:    chi.NewRouter(),
		health:    health.NewServer(),
		startTime: time.Now(),
	}
	svc.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	svc.setupMiddleware(limits)
	svc.setupRoutes(limits)
	return svc
}

// New creates a ready service over deps.
func New(version string, cfg *config.Config, deps Dependencies) (*Service, error) {
	svc := NewService(version, cfg, deps.Limits)
	if err := svc.Attach(deps); err != nil {
		return nil, err
	}
	return svc, nil
}

// Attach installs the domain components and marks the service ready.
func (s *Service) Attach(deps Dependencies) error {
	if deps.Predictor == nil {
		return errors.New("relay: predictor is required")
	}
	if deps.Conversations == nil {
		return errors.New("relay: conversation log is required")
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}

	var analyzer *scoring.Analyzer
	if deps.Moods != nil {
		cfg := scoring.DefaultAnalyzerConfig()
		if s.config.AnalysisWindow > 0 {
			cfg.Window = s.config.AnalysisWindow
		}
		analyzer = scoring.NewAnalyzer(cfg, deps.Moods)
	}

	s.initMu.Lock()
	s.deps = deps
	s.analyzer = analyzer
	s.initError = nil
	s.initMu.Unlock()

	s.ready.Store(true)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	log.Info().
		Str("model", deps.Predictor.ModelName()).
		Bool("moods", deps.Moods != nil).
		Bool("generator", deps.Generator != nil).
		Msg("Relay components attached - service ready")
	return nil
}

// setInitError records an initialization error.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Relay initialization failed")
}

// GetInitError returns any initialization error.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// components returns the attached dependencies.
func (s *Service) components() (Dependencies, *scoring.Analyzer) {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.deps, s.analyzer
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware(limits *Limits) {
	s.router.Use(RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(SecurityHeaders)
	s.router.Use(MaxBodySize(DefaultMaxBodySize))
	s.router.Use(limits.Global.Middleware)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes(limits *Limits) {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Use(RequireJSONContentType)

		r.Get("/deep_health", s.handleDeepHealth)
		r.With(limits.Predict.Middleware).Post("/predict", s.handlePredict)
		r.Post("/log_conversation", s.handleLogConversation)
		r.Post("/generate-arabic-response", s.handleGenerateReply)
		r.Get("/api/stats", s.handleStats(limits))

		r.Get("/api/moods", s.handleListMoods)
		r.Get("/api/activities", s.handleListActivities)
		r.Get("/api/activities/recommended", s.handleRecommendedActivities)
		r.Get("/api/moods/recent", s.handleRecentMoods)

		r.Route("/api/patients/{patientID}", func(r chi.Router) {
			r.Use(validatePatientParam)
			r.Put("/", s.handleUpsertPatient)
			r.Get("/", s.handleGetPatient)
			r.Post("/moods", s.handleRecordMood)
			r.Get("/moods", s.handleMoodHistory)
			r.Get("/moods/latest", s.handleLatestMood)
			r.Get("/moods/stats", s.handleMoodStats)
			r.Get("/moods/insights", s.handleMoodInsights)
			r.Delete("/moods/{entryID}", s.handleDeleteMood)
			r.Post("/feedback", s.handleSubmitFeedback)
		})

		r.Get("/api/feedback", s.handleListFeedback)
		r.Delete("/api/feedback/{id}", s.handleDeleteFeedback)
	})
}

// Start listens on the configured relay port and serves in the background.
func (s *Service) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.RelayPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.Serve(lis)
	log.Info().
		Int("port", s.config.RelayPort).
		Str("version", s.version).
		Msg("Relay server started")
	return nil
}

// Serve multiplexes lis between gRPC (health) and HTTP and serves in the background.
func (s *Service) Serve(lis net.Listener) {
	s.listener = lis
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	m := cmux.New(lis)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		if err := s.grpcServer.Serve(grpcL); err != nil && !isClosedErr(err) {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) && !isClosedErr(err) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := m.Serve(); err != nil && !isClosedErr(err) {
			log.Error().Err(err).Msg("Connection multiplexer error")
		}
	}()
}

// Shutdown gracefully shuts down the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.health.Shutdown()

	s.initMu.RLock()
	watchers := s.watchers
	maint := s.maintenance
	s.initMu.RUnlock()
	for _, w := range watchers {
		_ = w.Stop()
	}
	if maint != nil {
		maint.Stop()
		maint.Wait()
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()

	deps, _ := s.components()
	for _, c := range deps.Closers {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("Close error")
		}
	}

	log.Info().Msg("Relay service shutdown complete")
	return nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, cmux.ErrListenerClosed) || errors.Is(err, grpc.ErrServerStopped)
}
