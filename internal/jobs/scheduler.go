package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"imagevault/internal/config"
	"imagevault/internal/metrics"
)

// TempSweeper removes abandoned temp files older than maxAge.
type TempSweeper interface {
	SweepTemp(maxAge time.Duration) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper TempSweeper
	cfg     config.JobsConfig
	log     zerolog.Logger
}

// NewScheduler builds the maintenance scheduler. A nil sweeper (object storage)
// leaves it with nothing to run.
func NewScheduler(sweeper TempSweeper, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:    c,
		sweeper: sweeper,
		cfg:     cfg,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if s.sweeper == nil || s.cfg.SweepSchedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweepTemp); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.cfg.SweepSchedule).Msg("temp sweeper scheduled")
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) sweepTemp() {
	removed, err := s.sweeper.SweepTemp(s.cfg.SweepOlderThan)
	if removed > 0 {
		metrics.TempFilesSweptTotal.Add(float64(removed))
		s.log.Info().Int("removed", removed).Msg("stale temp files swept")
	}
	if err != nil {
		s.log.Error().Err(err).Msg("temp sweep failed")
	}
}
