package relay

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/hearme/internal/catalog"
	"github.com/thebtf/hearme/internal/config"
	hearmedb "github.com/thebtf/hearme/internal/db/gorm"
	"github.com/thebtf/hearme/internal/db/sqlite"
	"github.com/thebtf/hearme/internal/interview"
	"github.com/thebtf/hearme/internal/maintenance"
	"github.com/thebtf/hearme/internal/symptoms"
	"github.com/thebtf/hearme/internal/watcher"
)

// conversationLogConns is the connection pool size for the conversation log.
const conversationLogConns = 4

// InitializeAsync opens the stores from configuration in the background and
// attaches them. Failures are reported through /health and GetInitError.
func (s *Service) InitializeAsync() {
	go func() {
		log.Info().Msg("Starting async initialization...")
		deps, err := OpenDependencies(s.config)
		if err != nil {
			s.setInitError(err)
			return
		}
		if err := s.Attach(deps); err != nil {
			closeAll(deps.Closers)
			s.setInitError(err)
			return
		}
		s.startWatchers()
		s.startMaintenance()
	}()
}

// OpenDependencies builds the production components described by cfg.
// The conversation log is required; the mood database and the language model
// are used only when configured.
func OpenDependencies(cfg *config.Config) (Dependencies, error) {
	if err := config.EnsureDataDir(); err != nil {
		return Dependencies{}, fmt.Errorf("ensure data dir: %w", err)
	}

	conv, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     cfg.ConversationDB,
		MaxConns: conversationLogConns,
	})
	if err != nil {
		return Dependencies{}, fmt.Errorf("open conversation log: %w", err)
	}

	cat := catalog.Default()
	deps := Dependencies{
		Predictor:     symptoms.NewPredictor(nil, nil),
		Conversations: conv,
		Catalog:       cat,
		Closers:       []io.Closer{conv},
	}

	deps.Generator = interview.New(nil)
	if cfg.LLMToken != "" {
		model, err := interview.NewOpenAIModel(cfg.LLMBaseURL, cfg.LLMToken, cfg.LLMModel)
		if err != nil {
			log.Warn().Err(err).Msg("Language model unavailable - generated replies use the fallback")
		} else {
			deps.Generator = interview.New(model)
			log.Info().Str("model", cfg.LLMModel).Msg("Language model configured")
		}
	}

	if cfg.DatabaseDSN == "" {
		log.Warn().Msg("HEARME_DATABASE_DSN not set - mood and feedback API disabled")
		return deps, nil
	}
	store, err := hearmedb.NewStore(hearmedb.Config{
		DSN:      cfg.DatabaseDSN,
		LogLevel: logger.Silent,
	})
	if err != nil {
		closeAll(deps.Closers)
		return Dependencies{}, fmt.Errorf("open mood database: %w", err)
	}
	deps.Moods = hearmedb.NewMoodStore(store, cat)
	deps.Feedback = hearmedb.NewFeedbackStore(store)
	deps.Patients = hearmedb.NewPatientStore(store)
	deps.Database = store
	deps.Closers = append(deps.Closers, store)
	return deps, nil
}

// startWatchers reopens the conversation log if its file is deleted.
func (s *Service) startWatchers() {
	path := s.config.ConversationDB
	w, err := watcher.New(path, func() {
		log.Warn().Str("path", path).Msg("Conversation log deleted, reinitializing...")
		s.reopenConversations()
	}, watcher.WithOps(fsnotify.Remove|fsnotify.Rename))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create conversation log watcher")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start conversation log watcher")
		return
	}

	s.initMu.Lock()
	s.watchers = append(s.watchers, w)
	s.initMu.Unlock()
	log.Info().Str("path", path).Msg("Conversation log watcher started")
}

// reopenConversations swaps in a freshly created conversation log.
func (s *Service) reopenConversations() {
	conv, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     s.config.ConversationDB,
		MaxConns: conversationLogConns,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to recreate conversation log")
		return
	}

	s.initMu.Lock()
	old := s.deps.Conversations
	s.deps.Conversations = conv
	for i, c := range s.deps.Closers {
		if any(c) == any(old) {
			s.deps.Closers[i] = conv
		}
	}
	s.initMu.Unlock()

	if c, ok := old.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing old conversation log")
		}
	}
	log.Info().Msg("Conversation log reinitialization complete")
}

// startMaintenance schedules conversation log retention.
func (s *Service) startMaintenance() {
	m := maintenance.NewService(s.prunableConversations, maintenance.Config{
		RetentionDays: s.config.ConversationRetentionDays,
		Interval:      time.Duration(s.config.MaintenanceIntervalHours) * time.Hour,
		InitialDelay:  maintenance.DefaultInitialDelay,
	}, log.Logger)

	s.initMu.Lock()
	s.maintenance = m
	s.initMu.Unlock()

	go m.Start(context.Background())
}

// prunableConversations returns the current conversation log if it supports retention.
func (s *Service) prunableConversations() maintenance.Pruner {
	deps, _ := s.components()
	p, _ := deps.Conversations.(maintenance.Pruner)
	return p
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
