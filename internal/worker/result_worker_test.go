package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/notify"
)

type fakeStore struct {
	mu        sync.Mutex
	batches   int
	saved     map[string]*notify.ResultMessage
	failBatch bool
	failOne   func(*notify.ResultMessage) bool
	inserts   map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]*notify.ResultMessage{}, inserts: map[string]int{}}
}

func (s *fakeStore) InsertBatch(_ context.Context, batch []*notify.ResultMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if s.failBatch {
		return errors.New("bulk failed")
	}
	for _, m := range batch {
		s.saved[m.AttemptID] = m
	}
	return nil
}

func (s *fakeStore) InsertOne(_ context.Context, m *notify.ResultMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts[m.AttemptID]++
	if _, err := uuid.Parse(m.AssessmentID); err != nil {
		return fmt.Errorf("%w: assessment id: %w", ErrInvalidResult, err)
	}
	if s.failOne != nil && s.failOne(m) {
		return errors.New("row failed")
	}
	s.saved[m.AttemptID] = m
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func setup(t *testing.T, store ResultStore) (*ResultWorker, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	w := newResultWorker(store, rdb, zerolog.Nop())
	w.batchSize = 2
	w.batchTimeout = 10 * time.Millisecond
	w.backoff = 10 * time.Millisecond
	return w, mr, rdb
}

func push(t *testing.T, rdb *redis.Client, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
		data, _ := json.Marshal(notify.ResultMessage{
			AttemptID:    ids[i],
			AssessmentID: uuid.NewString(),
			UserID:       i + 1,
			Score:        50,
			Total:        2,
			Correct:      1,
		})
		if err := rdb.RPush(context.Background(), config.WorkerKey.PersistResultsQueue, data).Err(); err != nil {
			t.Fatal(err)
		}
	}
	return ids
}

func run(w *ResultWorker) (context.CancelFunc, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	return cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestResultWorkerPersistsQueuedResults(t *testing.T) {
	store := newFakeStore()
	w, _, rdb := setup(t, store)
	push(t, rdb, 3)

	cancel, done := run(w)
	waitFor(t, func() bool { return store.count() == 3 })
	cancel()
	<-done
}

func TestResultWorkerDiscardsMalformedPayload(t *testing.T) {
	store := newFakeStore()
	w, mr, rdb := setup(t, store)
	if _, err := mr.Push(config.WorkerKey.PersistResultsQueue, "{not json"); err != nil {
		t.Fatal(err)
	}
	push(t, rdb, 1)

	cancel, done := run(w)
	waitFor(t, func() bool { return store.count() == 1 })
	cancel()
	<-done

	if n, _ := rdb.LLen(context.Background(), config.WorkerKey.PersistResultsQueue).Result(); n != 0 {
		t.Fatalf("malformed payload must not be requeued, %d left", n)
	}
}

func TestResultWorkerFallsBackAndRequeues(t *testing.T) {
	store := newFakeStore()
	store.failBatch = true
	ids := []string{}
	store.failOne = func(m *notify.ResultMessage) bool { return m.AttemptID == ids[0] }

	w, mr, rdb := setup(t, store)
	ids = push(t, rdb, 2)

	cancel, done := run(w)
	waitFor(t, func() bool { return store.count() == 1 })
	cancel()
	<-done

	items, err := mr.List(config.WorkerKey.PersistResultsQueue)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected the failing result requeued once, got %d", len(items))
	}
	var msg notify.ResultMessage
	_ = json.Unmarshal([]byte(items[0]), &msg)
	if msg.AttemptID != ids[0] {
		t.Fatalf("requeued the wrong result: %s", msg.AttemptID)
	}
}

func TestResultWorkerFlushesOnShutdown(t *testing.T) {
	store := newFakeStore()
	w, _, rdb := setup(t, store)
	w.batchSize = 100
	w.batchTimeout = time.Hour
	push(t, rdb, 3)

	cancel, done := run(w)
	waitFor(t, func() bool {
		n, _ := rdb.LLen(context.Background(), config.WorkerKey.PersistResultsQueue).Result()
		return n == 0
	})
	if store.count() != 0 {
		t.Fatalf("nothing should be flushed before shutdown, got %d", store.count())
	}
	cancel()
	<-done

	if store.count() != 3 {
		t.Fatalf("expected the buffer drained on shutdown, got %d", store.count())
	}
}

func TestResultWorkerDropsInvalidResult(t *testing.T) {
	store := newFakeStore()
	store.failBatch = true
	w, mr, rdb := setup(t, store)

	bad, _ := json.Marshal(notify.ResultMessage{AttemptID: uuid.NewString(), AssessmentID: "not-a-uuid", UserID: 1})
	if _, err := mr.Push(config.WorkerKey.PersistResultsQueue, string(bad)); err != nil {
		t.Fatal(err)
	}
	ids := push(t, rdb, 1)

	cancel, done := run(w)
	waitFor(t, func() bool { return store.count() == 1 })
	// Give a requeued copy time to come back around.
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if store.saved[ids[0]] == nil {
		t.Fatal("valid result was not persisted")
	}
	if n, _ := rdb.LLen(context.Background(), config.WorkerKey.PersistResultsQueue).Result(); n != 0 {
		t.Fatalf("invalid result must not be requeued, %d left", n)
	}
	var msg notify.ResultMessage
	_ = json.Unmarshal(bad, &msg)
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.inserts[msg.AttemptID] != 1 {
		t.Fatalf("invalid result retried %d times", store.inserts[msg.AttemptID])
	}
}

func TestInvalidClassifiesPostgresErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, want: true},
		{name: "bad text", err: &pgconn.PgError{Code: "22P02"}, want: true},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: false},
		{name: "network", err: errors.New("connection reset"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(invalid(tt.err), ErrInvalidResult); got != tt.want {
				t.Fatalf("invalid(%v) permanent = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
