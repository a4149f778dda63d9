package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is the part of the attempt engine the sweeper drives.
type Sweeper interface {
	SweepExpired(ctx context.Context, batchSize int) (int, error)
	EvictIdleSessions(idle time.Duration) int
}

// ExpirySweeper periodically closes attempts whose time ran out while nobody
// was connected. It is advisory: every engine call re-derives timers on its
// own, so a missed tick only delays the stored status.
type ExpirySweeper struct {
	engine    Sweeper
	interval  time.Duration
	batchSize int
	idle      time.Duration
	log       zerolog.Logger
}

func NewExpirySweeper(engine Sweeper, interval time.Duration, batchSize int, idle time.Duration, log zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ExpirySweeper{
		engine:    engine,
		interval:  interval,
		batchSize: batchSize,
		idle:      idle,
		log:       log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop
// ----------------------------------------------------------------

func (w *ExpirySweeper) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpirySweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpirySweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and idle eviction.
func (w *ExpirySweeper) RunOnce(ctx context.Context) {
	closed, err := w.engine.SweepExpired(ctx, w.batchSize)
	if err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Int("closed", closed).Msg("Sweep failed")
	} else if closed > 0 {
		w.log.Info().Int("closed", closed).Msg("Expired attempts finalized")
	}

	if w.idle > 0 {
		if evicted := w.engine.EvictIdleSessions(w.idle); evicted > 0 {
			w.log.Debug().Int("evicted", evicted).Msg("Idle sessions evicted")
		}
	}
}
