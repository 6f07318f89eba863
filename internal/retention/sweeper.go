package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/imageguard/imageguard-backend/internal/search/biz"
)

// Sweeper deletes expired search records on a schedule. Retention is a plan
// attribute: each sweep asks the use case to purge records older than every
// non-premium tier's retention window.
type Sweeper struct {
	cron      *cron.Cron
	uc        *biz.SearchUseCase
	schedule  string
	batchSize int
	logger    *zap.Logger
}

func NewSweeper(uc *biz.SearchUseCase, schedule string, batchSize int, logger *zap.Logger) *Sweeper {
	if schedule == "" {
		schedule = "0 3 * * *" // daily, off-peak
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sweeper{
		cron:      cron.New(),
		uc:        uc,
		schedule:  schedule,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("retention sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	deleted, err := s.uc.DeleteExpired(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("retention sweep completed", zap.Int("deleted", deleted))
	}
}
