package platform

import (
	"context"
	"time"

	"github.com/ignite/adpilot/internal/pkg/logger"
)

// StatsFetcherConfig tunes the batched statistics fetcher.
type StatsFetcherConfig struct {
	BatchSize  int           // units per request
	BatchDelay time.Duration // pause between batches
	MaxRetries int           // attempts per batch after the first
	RetryDelay time.Duration // base delay, grows linearly per attempt
}

// DefaultStatsFetcherConfig matches the platform's requests-per-second ceiling.
func DefaultStatsFetcherConfig() StatsFetcherConfig {
	return StatsFetcherConfig{
		BatchSize:  100,
		BatchDelay: 500 * time.Millisecond,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// StatsFetcher fetches per-banner statistics in fixed-size batches with an
// inter-batch delay. Rate-limited batches are retried with linearly
// increasing backoff; after the retry budget is spent the batch's units are
// reported as failed rather than silently dropped.
type StatsFetcher struct {
	client Client
	cfg    StatsFetcherConfig
}

// NewStatsFetcher creates a stats fetcher over the given client.
func NewStatsFetcher(client Client, cfg StatsFetcherConfig) *StatsFetcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	return &StatsFetcher{client: client, cfg: cfg}
}

// Fetch returns stats keyed by banner id plus the ids whose batch ultimately
// failed. The only hard error is context cancellation; remote failures are
// confined to their batch.
func (f *StatsFetcher) Fetch(ctx context.Context, token string, bannerIDs []int64, window Window) (map[int64]Stats, []int64, error) {
	stats := make(map[int64]Stats, len(bannerIDs))
	var failed []int64

	for start := 0; start < len(bannerIDs); start += f.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, failed, err
		}

		end := start + f.cfg.BatchSize
		if end > len(bannerIDs) {
			end = len(bannerIDs)
		}
		batch := bannerIDs[start:end]

		batchStats, err := f.fetchBatch(ctx, token, batch, window)
		if err != nil {
			if ctx.Err() != nil {
				return stats, failed, ctx.Err()
			}
			logger.Warn("stats batch failed, marking units errored",
				"batch_size", len(batch), "error", err.Error())
			failed = append(failed, batch...)
		} else {
			for id, s := range batchStats {
				stats[id] = s
			}
		}

		if end < len(bannerIDs) && f.cfg.BatchDelay > 0 {
			if err := sleepCtx(ctx, f.cfg.BatchDelay); err != nil {
				return stats, failed, err
			}
		}
	}
	return stats, failed, nil
}

// fetchBatch retries one batch with linear backoff on transient errors.
// Permanent errors fail the batch immediately.
func (f *StatsFetcher) fetchBatch(ctx context.Context, token string, batch []int64, window Window) (map[int64]Stats, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * f.cfg.RetryDelay
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}

		stats, err := f.client.FetchBannerStats(ctx, token, batch, window)
		if err == nil {
			return stats, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
