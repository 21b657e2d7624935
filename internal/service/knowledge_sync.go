package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/service/notion"
)

type KnowledgeImporter interface {
	Sync(ctx context.Context) (notion.SyncResult, error)
}

// KnowledgeSync refreshes the knowledge base from an importer on a fixed
// interval. Runs never overlap.
type KnowledgeSync struct {
	importer KnowledgeImporter
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewKnowledgeSync(importer KnowledgeImporter, interval time.Duration, logger *zap.Logger) *KnowledgeSync {
	if interval <= 0 {
		interval = time.Hour
	}
	return &KnowledgeSync{
		importer: importer,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (k *KnowledgeSync) Start(ctx context.Context) {
	k.logger.Info("Starting knowledge sync", zap.Duration("sync_interval", k.interval))

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()

		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()

		k.logger.Info("Running initial knowledge sync")
		k.runSync(ctx)

		for {
			select {
			case <-ticker.C:
				k.runSync(ctx)
			case <-k.stopCh:
				k.logger.Info("Knowledge sync stopped")
				return
			case <-ctx.Done():
				k.logger.Info("Knowledge sync context cancelled")
				return
			}
		}
	}()
}

// Stop waits for a running sync to return.
func (k *KnowledgeSync) Stop() {
	k.stopOnce.Do(func() { close(k.stopCh) })
	k.wg.Wait()
}

func (k *KnowledgeSync) runSync(ctx context.Context) {
	start := time.Now()
	result, err := k.importer.Sync(ctx)
	duration := time.Since(start)

	if err != nil {
		k.logger.Error("Knowledge sync failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	k.logger.Info("Knowledge sync completed",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", duration))
}
