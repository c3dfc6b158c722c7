// Package maintenance runs scheduled retention for the conversation log.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInitialDelay lets the relay settle before the first run.
const DefaultInitialDelay = 5 * time.Minute

// Pruner is a conversation log that supports age-based deletion.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Optimizer is implemented by stores that can refresh planner statistics.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// Config controls the maintenance schedule.
type Config struct {
	RetentionDays int
	Interval      time.Duration
	InitialDelay  time.Duration
}

// Service handles scheduled maintenance tasks.
type Service struct {
	log             zerolog.Logger
	lastRunTime     time.Time
	source          func() Pruner
	now             func() time.Time
	stopCh          chan struct{}
	doneCh          chan struct{}
	cfg             Config
	lastRunDuration time.Duration
	totalPruned     int64
	totalOptimized  int64
	mu              sync.Mutex
	running         bool
}

// NewService creates a maintenance service. source returns the current
// conversation log, which may change while the service runs.
func NewService(source func() Pruner, cfg Config, log zerolog.Logger) *Service {
	if cfg.Interval < time.Minute {
		cfg.Interval = time.Hour
	}
	return &Service{
		source: source,
		now:    time.Now,
		cfg:    cfg,
		log:    log.With().Str("component", "maintenance").Logger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs the maintenance loop until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	if s.cfg.RetentionDays <= 0 {
		s.log.Info().Msg("Conversation retention disabled, not starting scheduler")
		return
	}

	s.log.Info().
		Dur("interval", s.cfg.Interval).
		Int("retention_days", s.cfg.RetentionDays).
		Msg("Starting maintenance scheduler")

	select {
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	case <-time.After(s.cfg.InitialDelay):
	}
	s.runMaintenance(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Maintenance shutting down due to context cancellation")
			return
		case <-s.stopCh:
			s.log.Info().Msg("Maintenance shutting down due to stop signal")
			return
		case <-ticker.C:
			s.runMaintenance(ctx)
		}
	}
}

// Stop signals the maintenance service to stop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Wait waits for the maintenance loop to finish.
func (s *Service) Wait() {
	<-s.doneCh
}

// runMaintenance prunes entries past the retention period and optimizes the store.
func (s *Service) runMaintenance(ctx context.Context) {
	start := time.Now()
	store := s.source()
	if store == nil {
		s.log.Debug().Msg("No prunable conversation log, skipping maintenance run")
		return
	}

	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	pruned, err := store.PruneBefore(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to prune conversation log")
	} else if pruned > 0 {
		s.log.Info().Int64("pruned", pruned).Time("cutoff", cutoff).Msg("Pruned old conversations")
	}

	optimized := false
	if opt, ok := store.(Optimizer); ok {
		if err := opt.Optimize(ctx); err != nil {
			s.log.Error().Err(err).Msg("Failed to optimize conversation log")
		} else {
			optimized = true
		}
	}

	s.mu.Lock()
	s.lastRunTime = time.Now()
	s.lastRunDuration = time.Since(start)
	s.totalPruned += pruned
	if optimized {
		s.totalOptimized++
	}
	s.mu.Unlock()

	s.log.Debug().Dur("duration", time.Since(start)).Msg("Maintenance run completed")
}

// Stats returns maintenance statistics.
func (s *Service) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"retention_days":   s.cfg.RetentionDays,
		"interval_hours":   s.cfg.Interval.Hours(),
		"last_run":         s.lastRunTime,
		"last_duration_ms": s.lastRunDuration.Milliseconds(),
		"total_pruned":     s.totalPruned,
		"total_optimizes":  s.totalOptimized,
		"running":          s.running,
	}
}

// RunNow triggers an immediate maintenance run.
func (s *Service) RunNow(ctx context.Context) {
	go s.runMaintenance(ctx)
}
