package system

import (
	"context"
	"time"

	coresys "github.com/l1jgo/systick/internal/core/system"
	"go.uber.org/zap"
)

// TelemetrySystem reports the shared counters every interval. It only reads
// atomics, so it runs in the async tier alongside the parallel groups.
type TelemetrySystem struct {
	coresys.Base
	counters *Counters
	log      *zap.Logger
	interval time.Duration
	elapsed  time.Duration
	reports  int
}

func NewTelemetrySystem(counters *Counters, log *zap.Logger, interval time.Duration) *TelemetrySystem {
	return &TelemetrySystem{
		counters: counters,
		log:      log.Named("system.telemetry"),
		interval: interval,
	}
}

func (s *TelemetrySystem) Name() string { return "telemetry" }

func (s *TelemetrySystem) Descriptor() coresys.Descriptor {
	return coresys.Sequential(PriorityTelemetry)
}

// Reports is how many reports have been logged.
func (s *TelemetrySystem) Reports() int { return s.reports }

func (s *TelemetrySystem) UpdateAsync(ctx context.Context, dt time.Duration) error {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return nil
	}
	s.elapsed = 0
	if err := ctx.Err(); err != nil {
		return err
	}
	s.reports++
	c := s.counters
	s.log.Info("telemetry",
		zap.Int64("ticks", c.Ticks.Load()),
		zap.Int64("fixed_steps", c.FixedSteps.Load()),
		zap.Int64("entities", c.Entities.Load()),
		zap.Int64("moved", c.Moved.Load()),
		zap.Int64("healed", c.Healed.Load()),
		zap.Int64("expired", c.Expired.Load()),
		zap.Int64("destroyed", c.Destroyed.Load()),
		zap.Int64("bounced", c.Bounced.Load()),
		zap.Int64("busiest_cell", c.Busiest.Load()),
		zap.Int64("scripted", c.Scripted.Load()))
	return nil
}
