package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const statsRetentionDays = 90

// StatsUpdater periodically recomputes platform statistics and prunes old
// monitoring rows.
type StatsUpdater struct {
	monitoringService *MonitoringService
	logger            *zap.Logger
	interval          time.Duration
	done              chan struct{}
	stopped           chan struct{}
	started           atomic.Bool
}

func NewStatsUpdater(monitoringService *MonitoringService, logger *zap.Logger, interval time.Duration) *StatsUpdater {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StatsUpdater{
		monitoringService: monitoringService,
		logger:            logger,
		interval:          interval,
		done:              make(chan struct{}),
		stopped:           make(chan struct{}),
	}
}

// Start runs one update immediately, then one per interval until Stop or
// ctx cancellation.
func (s *StatsUpdater) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.stopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Starting stats updater", zap.Duration("interval", s.interval))
		s.updateStats()
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-ticker.C:
				s.updateStats()
			}
		}
	}()
}

// Stop stops the updater and waits for an in-progress update to finish.
func (s *StatsUpdater) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.started.Load() {
		<-s.stopped
	}
}

func (s *StatsUpdater) updateStats() {
	s.logger.Debug("Updating statistics")

	if err := s.monitoringService.UpdatePlatformStats(); err != nil {
		s.logger.Error("Failed to update platform stats", zap.Error(err))
	}

	if err := s.monitoringService.CleanupOldData(statsRetentionDays); err != nil {
		s.logger.Error("Failed to cleanup old data", zap.Error(err))
	}

	s.logger.Debug("Statistics updated successfully")
}
