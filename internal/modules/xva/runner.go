package xva

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/aristath/exposure/internal/domain"
	"github.com/aristath/exposure/internal/utils"
)

// RunSharded splits table into contiguous shards, accumulates each shard in
// its own calculator created from seed on a bounded worker pool, merges the
// shards into seed in shard order and reduces it. seed must carry the measure
// registrations and no paths.
func RunSharded(ctx context.Context, seed *StreamingCalculator, table domain.PathTable, workers int, log zerolog.Logger) (*StreamingCalculator, error) {
	log = log.With().Str("component", "sharded_runner").Logger()
	timer := utils.NewTimer("xva_run_sharded", log)
	defer timer.Stop()

	if workers < 1 {
		workers = 1
	}
	n := table.Len()
	shardCount := min(workers, max(n, 1))
	size := (n + shardCount - 1) / shardCount

	shards := make([]*StreamingCalculator, shardCount)
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers).WithCancelOnError()
	for i := range shards {
		from, to := i*size, min((i+1)*size, n)
		shard := seed.NewShard()
		shards[i] = shard

		p.Go(func(ctx context.Context) error {
			return table.Slice(from, to).Each(func(rec *domain.PathRecord) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return shard.AccumulateRecord(rec)
			})
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("failed to accumulate shards: %w", err)
	}

	for _, shard := range shards {
		if err := seed.Merge(shard); err != nil {
			return nil, err
		}
	}
	if err := seed.Reduce(); err != nil {
		return nil, err
	}

	log.Debug().
		Int("paths", n).
		Int("shards", shardCount).
		Int("workers", workers).
		Msg("Sharded run complete")
	return seed, nil
}
