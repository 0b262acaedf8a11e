package upgrade

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/agentupgrade/internal/endpoint"
	"github.com/autopeer-io/agentupgrade/pkg/log"
)

// StateReader returns a fresh copy of the agent record on every call.
type StateReader interface {
	Reload(ctx context.Context) (*endpoint.Endpoint, error)
}

// Outcome is the result of a confirmation wait.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Confirmation describes how a confirmation wait ended.
type Confirmation struct {
	Outcome Outcome

	// Polls is the number of reloads performed after the grace period.
	Polls int

	// Endpoint is the last record read, nil when no poll happened.
	Endpoint *endpoint.Endpoint
}

// Poller watches the agent's keep-alive until it moves away from a baseline.
type Poller struct {
	reader   StateReader
	clock    clock.Clock
	retries  int
	interval time.Duration
	policy   HeartbeatPolicy
	logger   log.Logger
}

// NewPoller returns a Poller bounded by cfg.Retries polls spaced by cfg.Interval.
func NewPoller(cfg Config, reader StateReader, clk clock.Clock, logger log.Logger) *Poller {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Poller{
		reader:   reader,
		clock:    clk,
		retries:  cfg.Retries,
		interval: cfg.Interval,
		policy:   cfg.policy(),
		logger:   logger,
	}
}

// Await waits grace once, then polls at most retries times, sleeping interval
// before each poll. It returns as soon as the policy accepts the keep-alive.
// Reload errors and cancellation end the wait with an error.
func (p *Poller) Await(ctx context.Context, baseline time.Time, grace time.Duration) (Confirmation, error) {
	result := Confirmation{Outcome: OutcomeTimedOut}

	if err := p.sleep(ctx, grace); err != nil {
		return result, err
	}

	for result.Polls < p.retries {
		if err := p.sleep(ctx, p.interval); err != nil {
			return result, err
		}

		ep, err := p.reader.Reload(ctx)
		if err != nil {
			return result, err
		}
		result.Polls++
		result.Endpoint = ep

		if p.policy(baseline, ep.LastKeepAlive) {
			p.logger.Debug("Keep-alive moved", "polls", result.Polls, "baseline", baseline, "current", ep.LastKeepAlive)
			result.Outcome = OutcomeConfirmed
			return result, nil
		}
		p.logger.Debug("Keep-alive unchanged", "polls", result.Polls, "retries", p.retries)
	}

	return result, nil
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, p.clock, d)
}

// sleep waits d on clk or returns the context error, whichever comes first.
// A non-positive d only checks the context.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	t := clk.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
