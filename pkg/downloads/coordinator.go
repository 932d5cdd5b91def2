package downloads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pkgvault/registry/pkg/observability"
)

// ShardStore persists drained shards. *Store satisfies this; tests
// substitute failure-injecting implementations.
type ShardStore interface {
	FlushShard(ctx context.Context, pending map[PendingKey]int64) (int64, error)
}

// ShardError records a failed shard flush
type ShardError struct {
	Shard int
	Err   error
}

func (e ShardError) Error() string {
	return fmt.Sprintf("shard %d: %v", e.Shard, e.Err)
}

// FlushOutcome summarizes one flush cycle
type FlushOutcome struct {
	Persisted     int64
	ShardsFlushed int
	ShardsFailed  int
	Errors        []ShardError
}

// Err returns an aggregate error when any shard failed, nil otherwise
func (o FlushOutcome) Err() error {
	if len(o.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(o.Errors))
	for i, e := range o.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("flush failed for %d of %d shards: %s",
		o.ShardsFailed, o.ShardsFlushed+o.ShardsFailed, strings.Join(msgs, "; "))
}

// Coordinator drains counter shards and persists them through the store.
// Each shard flushes in its own transaction; a failed shard merges its
// counts back into the counter and the cycle continues with the rest.
type Coordinator struct {
	counter     *Counter
	store       ShardStore
	parallelism int
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewCoordinator creates a flush coordinator. Parallelism bounds the
// number of concurrent shard transactions.
func NewCoordinator(counter *Counter, store ShardStore, parallelism int, metrics *observability.Metrics, logger *observability.Logger) *Coordinator {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Coordinator{
		counter:     counter,
		store:       store,
		parallelism: parallelism,
		metrics:     metrics,
		logger:      logger,
	}
}

// FlushAll drains and persists every shard. It never returns an error;
// persistence failures are reported in the outcome and the affected
// counts stay in memory for the next cycle.
func (c *Coordinator) FlushAll(ctx context.Context) FlushOutcome {
	start := time.Now()

	results := make([]ShardError, c.counter.NumShards())
	persisted := make([]int64, c.counter.NumShards())
	flushed := make([]bool, c.counter.NumShards())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	for i := 0; i < c.counter.NumShards(); i++ {
		g.Go(func() error {
			pending := c.counter.DrainShard(i)
			if len(pending) == 0 {
				return nil
			}
			flushed[i] = true

			n, err := c.store.FlushShard(gctx, pending)
			if err != nil {
				// Counts are not lost; they ride along to the next cycle
				c.counter.mergeShard(i, pending)
				results[i] = ShardError{Shard: i, Err: err}
				return nil
			}
			persisted[i] = n
			return nil
		})
	}
	g.Wait()

	outcome := FlushOutcome{}
	for i := range results {
		if !flushed[i] {
			continue
		}
		if results[i].Err != nil {
			outcome.ShardsFailed++
			outcome.Errors = append(outcome.Errors, results[i])
		} else {
			outcome.ShardsFlushed++
			outcome.Persisted += persisted[i]
		}
	}

	c.observe(outcome, time.Since(start))
	return outcome
}

func (c *Coordinator) observe(outcome FlushOutcome, duration time.Duration) {
	if c.logger != nil {
		log := c.logger.WithFields(map[string]interface{}{
			"persisted":      outcome.Persisted,
			"shards_flushed": outcome.ShardsFlushed,
			"shards_failed":  outcome.ShardsFailed,
			"duration":       duration.String(),
		})
		if outcome.ShardsFailed > 0 {
			log.WithError(outcome.Err()).Warn("flush cycle completed with failures")
		} else if outcome.ShardsFlushed > 0 {
			log.Debug("flush cycle completed")
		}
	}

	if c.metrics != nil {
		c.metrics.ObserveFlush(outcome.Persisted, outcome.ShardsFailed, duration)

		entries, pending := c.counter.PendingTotals()
		c.metrics.PendingEntries.Set(float64(entries))
		c.metrics.PendingDownloads.Set(float64(pending))
	}
}
