package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/notify"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ResultWorker drains the result queue into PostgreSQL in batches.
type ResultWorker struct {
	store ResultStore
	rdb   *redis.Client
	queue string
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	backoff      time.Duration
}

// NewResultWorker creates a worker persisting through pool.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return newResultWorker(NewPgResultStore(pool), rdb, log)
}

func newResultWorker(store ResultStore, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		store:        store,
		rdb:          rdb,
		queue:        config.WorkerKey.PersistResultsQueue,
		log:          log.With().Str("component", "result_worker").Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		backoff:      2 * time.Second,
	}
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	buffer := make([]*notify.ResultMessage, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping")
			w.sleep(ctx, w.backoff)
			continue
		}
		if len(item) < 2 {
			continue
		}

		var msg notify.ResultMessage
		if err := json.Unmarshal([]byte(item[1]), &msg); err != nil {
			// Malformed JSON can never succeed.
			w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed result")
			metrics.PersistedAttempts.WithLabelValues("dropped").Inc()
			continue
		}
		buffer = append(buffer, &msg)
	}
}

// flushSafe attempts the bulk insert, then row-by-row, then requeue. Rows the
// store rejects as invalid are dropped instead of requeued.
func (w *ResultWorker) flushSafe(ctx context.Context, batch []*notify.ResultMessage) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		metrics.PersistedAttempts.WithLabelValues("bulk").Add(float64(len(batch)))
		w.log.Debug().Int("count", len(batch)).Msg("Results persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var requeue []*notify.ResultMessage
	for _, msg := range batch {
		err := w.store.InsertOne(ctx, msg)
		if errors.Is(err, ErrInvalidResult) {
			w.log.Error().Err(err).Str("attempt_id", msg.AttemptID).Msg("Discarding invalid result")
			metrics.PersistedAttempts.WithLabelValues("dropped").Inc()
			continue
		}
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", msg.AttemptID).Msg("Insert failed, requeueing")
			requeue = append(requeue, msg)
			continue
		}
		metrics.PersistedAttempts.WithLabelValues("single").Inc()
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ResultWorker) requeue(ctx context.Context, items []*notify.ResultMessage) {
	// The caller's ctx may already be cancelled during shutdown.
	pushCtx := context.WithoutCancel(ctx)

	pipe := w.rdb.Pipeline()
	for _, m := range items {
		data, _ := json.Marshal(m)
		pipe.RPush(pushCtx, w.queue, data)
	}
	if _, err := pipe.Exec(pushCtx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue results. Data loss occurred.")
		return
	}

	metrics.PersistedAttempts.WithLabelValues("requeued").Add(float64(len(items)))
	w.log.Info().Int("count", len(items)).Msg("Requeued failed results")
	w.sleep(ctx, w.backoff)
}

func (w *ResultWorker) shutdown(buffer []*notify.ResultMessage) {
	w.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(ctx, buffer)
}

func (w *ResultWorker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
