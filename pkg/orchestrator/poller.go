package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Poller periodically enqueues an explicit trigger so distribution makes
// progress even when no webhook traffic arrives.
type PollerConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Actor    *Actor
	Interval time.Duration
}

func (cfg *PollerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Actor == nil {
		return errors.New("actor is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("poll interval must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Poller struct {
	log *slog.Logger
	cfg PollerConfig
}

func NewPoller(cfg PollerConfig) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Poller{log: cfg.Logger, cfg: cfg}, nil
}

func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller: starting", "interval", p.cfg.Interval)

	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller: stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.log.Debug("poller: enqueueing explicit trigger")
			p.cfg.Actor.Submit(Trigger{Kind: TriggerExplicit})
		}
	}
}
