package retrieval

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStrategyTimeout bounds each strategy's share of a retrieval
// pass. A slow strategy times out alone; the others still contribute.
const DefaultStrategyTimeout = 5 * time.Second

// Coordinator fans a query out to all configured strategies
// concurrently and gathers their results. Strategy failures are
// absorbed: they are logged, reported as Failures, and never abort the
// pass.
type Coordinator struct {
	strategies []Strategy
	timeout    time.Duration
	logger     zerolog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithStrategyTimeout overrides the per-strategy timeout.
func WithStrategyTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator creates a coordinator over the given strategies.
func NewCoordinator(strategies []Strategy, logger zerolog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		strategies: strategies,
		timeout:    DefaultStrategyTimeout,
		logger:     logger.With().Str("component", "retrieval").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retrieve runs every strategy concurrently and returns the combined
// results plus any strategy failures. The returned error is non-nil
// only when the pass as a whole could not run (context cancelled).
func (c *Coordinator) Retrieve(ctx context.Context, q Query) ([]Result, []Failure, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	type outcome struct {
		strategy string
		results  []Result
		err      error
	}

	outcomes := make(chan outcome, len(c.strategies))
	var wg sync.WaitGroup
	for _, s := range c.strategies {
		wg.Add(1)
		go func(s Strategy) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			results, err := s.Retrieve(sctx, q)
			outcomes <- outcome{strategy: s.Name(), results: results, err: err}
		}(s)
	}
	wg.Wait()
	close(outcomes)

	var combined []Result
	var failures []Failure
	for o := range outcomes {
		if o.err != nil {
			c.logger.Error().Err(o.err).Str("strategy", o.strategy).Str("user_id", q.UserID).
				Msg("retrieval strategy failed")
			failures = append(failures, Failure{Strategy: o.strategy, Err: o.err})
			continue
		}
		combined = append(combined, o.results...)
	}

	c.logger.Debug().Int("results", len(combined)).Int("failures", len(failures)).
		Str("user_id", q.UserID).Msg("multi-strategy retrieval complete")

	return combined, failures, nil
}
