// Package sweeper runs scheduled maintenance: releasing agents stuck in
// on_call after a crash or missed callback, and canceling abandoned
// dialogue sessions.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soyeahso/dialdesk/internal/config"
	"github.com/soyeahso/dialdesk/internal/logging"
	"github.com/soyeahso/dialdesk/internal/routing"
	"github.com/soyeahso/dialdesk/internal/store"
)

const sweepTimeout = 30 * time.Second

// Sweeper owns the cron schedule and the sweep passes.
type Sweeper struct {
	log        *logging.Logger
	cron       *cron.Cron
	ledger     *store.AgentLedger
	coord      *routing.Coordinator
	schedule   string
	stuckAfter time.Duration
	idleAfter  time.Duration
}

// New builds a sweeper from config. Call Start to begin the schedule.
func New(log *logging.Logger, cfg config.SweeperConfig, routingCfg config.RoutingConfig,
	ledger *store.AgentLedger, coord *routing.Coordinator) *Sweeper {
	return &Sweeper{
		log:        log.Sub("sweeper"),
		cron:       cron.New(),
		ledger:     ledger,
		coord:      coord,
		schedule:   cfg.Schedule,
		stuckAfter: time.Duration(cfg.StuckCallMinutes) * time.Minute,
		idleAfter:  time.Duration(routingCfg.SessionIdleMinutes) * time.Minute,
	}
}

// Start registers the sweep on the configured schedule and starts the cron
// runner.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runScheduled); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().
		Str("schedule", s.schedule).
		Dur("stuckAfter", s.stuckAfter).
		Dur("idleAfter", s.idleAfter).
		Msg("sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.Sweep(ctx)
}

// Sweep performs one maintenance pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	released, err := s.ledger.ReleaseStuck(ctx, now.Add(-s.stuckAfter))
	if err != nil {
		s.log.Error().Err(err).Msg("releasing stuck agents")
	} else if len(released) > 0 {
		s.log.Warn().Ints64("agentIds", released).Msg("released stuck agents")
	}

	evicted := s.coord.EvictIdle(ctx, now.Add(-s.idleAfter))
	if len(evicted) > 0 {
		s.log.Warn().Strs("callSids", evicted).Msg("canceled abandoned sessions")
	}
}
