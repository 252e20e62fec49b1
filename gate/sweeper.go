package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/passgate/passgate/logger"
)

// Sweeper removes expired records. The opportunistic path fires when a
// verification first observes an expired record; it is best-effort and
// never blocks or fails the response. The periodic path scans all
// partitions on an interval and is disabled unless configured.
type Sweeper struct {
	store   *Store
	logger  logger.Logger
	metrics *Metrics
	wg      sync.WaitGroup
}

// NewSweeper constructs a sweeper over the given store.
func NewSweeper(store *Store, log logger.Logger, metrics *Metrics) *Sweeper {
	return &Sweeper{
		store:   store,
		logger:  log,
		metrics: metrics,
	}
}

// SweepAsync deletes the record in the background. Delete is idempotent,
// so losing a race with a concurrent sweep just means observing "already
// gone"; any error is logged and swallowed.
func (s *Sweeper) SweepAsync(ownerID, token string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Deliberately detached from the request context: the response
		// must not wait on the sweep, and a cancelled request must not
		// abandon it.
		if err := s.store.DeleteExact(context.Background(), ownerID, token); err != nil {
			s.logger.Debug("opportunistic sweep failed",
				logger.String("owner_id", ownerID),
				logger.Err(err))
			return
		}
		if s.metrics != nil {
			s.metrics.IncrementTokensSwept()
		}
	}()
}

// Wait blocks until all in-flight asynchronous sweeps finish. Used at
// shutdown and by tests.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

// Run executes the periodic sweep until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("periodic sweep started",
		logger.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic sweep stopped")
			return
		case <-ticker.C:
			s.sweepAll(ctx)
		}
	}
}

// sweepAll scans every owner partition and deletes records already past
// expiry. Errors are aggregated and logged; a failing partition does not
// stop the scan.
func (s *Sweeper) sweepAll(ctx context.Context) {
	sweepID := uuid.New().String()
	start := timeNow()
	var swept int
	var errs *multierror.Error

	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		s.logger.Warn("sweep could not list owner partitions",
			logger.String("sweep_id", sweepID),
			logger.Err(err))
		return
	}

	for _, owner := range owners {
		tokens, err := s.store.ListTokens(ctx, owner)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		for _, token := range tokens {
			rec, err := s.store.GetExact(ctx, owner, token)
			if err != nil {
				// A record deleted since listing is not an error.
				if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrIncompleteRecord) {
					continue
				}
				errs = multierror.Append(errs, err)
				continue
			}
			if !rec.ExpiredAt(timeNow()) {
				continue
			}
			if err := s.store.DeleteExact(ctx, owner, token); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			swept++
			if s.metrics != nil {
				s.metrics.IncrementTokensSwept()
			}
		}
	}

	fields := []logger.TypedField{
		logger.String("sweep_id", sweepID),
		logger.Int("swept", swept),
		logger.Duration("elapsed", time.Since(start)),
	}
	if err := errs.ErrorOrNil(); err != nil {
		fields = append(fields, logger.Err(err))
		s.logger.Warn("periodic sweep finished with errors", fields...)
		return
	}
	s.logger.Debug("periodic sweep finished", fields...)
}
