// Package queue implements the durable, prioritized, retryable job queue.
// Jobs live in Postgres; each topic runs its own bounded worker pool so a
// slow topic cannot starve a fast one.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/domain"
)

const (
	// DefaultMaxAttempts bounds retries before a job goes dead.
	DefaultMaxAttempts = 3

	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute

	defaultPollInterval = time.Second
	pruneEvery          = time.Minute

	completedRetention = time.Hour
	deadRetention      = 7 * 24 * time.Hour

	closeTimeout = 30 * time.Second
)

// TopicStats summarizes one topic for introspection.
type TopicStats struct {
	Topic       domain.JobTopic `json:"topic"`
	Queued      int             `json:"queued"`
	Active      int             `json:"active"`
	Completed   int             `json:"completed"`
	Dead        int             `json:"dead"`
	Concurrency int             `json:"concurrency"`
}

// Store is the durable backend for jobs. Claim must atomically move
// queued jobs to active in priority-then-age order and increment attempts.
type Store interface {
	Create(ctx context.Context, job *domain.Job) error
	Claim(ctx context.Context, topic domain.JobTopic, limit int) ([]*domain.Job, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkDead(ctx context.Context, id, lastError string) error
	Requeue(ctx context.Context, id string, runAt time.Time, lastError string) error
	DeleteQueued(ctx context.Context, topic domain.JobTopic, id string) (bool, error)
	GetJob(ctx context.Context, topic domain.JobTopic, id string) (*domain.Job, error)
	Stats(ctx context.Context) (map[domain.JobTopic]TopicStats, error)
	Prune(ctx context.Context, completedBefore, deadBefore time.Time) (int, error)
}

// Options tune a single enqueue.
type Options struct {
	Priority    int
	Delay       time.Duration
	MaxAttempts int
}

// Outcome is the best-effort result of an enqueue. Background enrichment
// is advisory: a Dropped outcome is logged, never an error on the caller's
// synchronous path.
type Outcome struct {
	Enqueued   bool
	JobID      string
	DropReason string
}

func dropped(reason string) Outcome {
	return Outcome{DropReason: reason}
}

type processor func(ctx context.Context, payload json.RawMessage) error

type topicWorker struct {
	pool    *ants.Pool
	process processor
}

// Manager owns the queue: producers enqueue through it, workers register
// on it, and the polling loop dispatches claimed jobs into per-topic pools.
// With a nil store (queue backend unreachable at startup) it degrades to a
// no-op producer: every enqueue is dropped with a warning.
type Manager struct {
	store        Store
	logger       *zap.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	workers map[domain.JobTopic]*topicWorker

	stopChan chan struct{}
	doneChan chan struct{}
	started  bool
}

// NewManager creates the queue manager. store may be nil to run degraded.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:        store,
		logger:       logger,
		pollInterval: defaultPollInterval,
		workers:      make(map[domain.JobTopic]*topicWorker),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Available reports whether the durable backend is usable.
func (m *Manager) Available() bool {
	return m.store != nil
}

// Enqueue adds a job for payload's topic. It never blocks the caller on
// backend trouble: failures come back as a Dropped outcome.
func (m *Manager) Enqueue(ctx context.Context, name string, payload Payload, opts Options) Outcome {
	topic := payload.Topic()
	if !domain.ValidJobTopic(topic) {
		return dropped("unknown topic " + string(topic))
	}
	if m.store == nil {
		m.logger.Warn("job queue unavailable, dropping job",
			zap.String("topic", string(topic)), zap.String("name", name))
		return dropped("queue unavailable")
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return dropped(fmt.Sprintf("payload marshal: %v", err))
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          uuid.NewString(),
		Topic:       topic,
		Name:        name,
		Payload:     raw,
		Priority:    opts.Priority,
		Status:      domain.JobStatusQueued,
		MaxAttempts: maxAttempts,
		RunAt:       now.Add(opts.Delay),
		CreatedAt:   now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		m.logger.Warn("job enqueue failed, dropping job",
			zap.String("topic", string(topic)), zap.String("name", name), zap.Error(err))
		return dropped(fmt.Sprintf("store create: %v", err))
	}
	return Outcome{Enqueued: true, JobID: job.ID}
}

// RegisterWorker binds fn as the processor for P's topic with a bounded
// pool of concurrency goroutines. The payload shape is enforced at compile
// time. Processors must be idempotent: delivery is at-least-once.
func RegisterWorker[P Payload](m *Manager, concurrency int, fn func(ctx context.Context, payload P) error) error {
	var zero P
	topic := zero.Topic()
	if concurrency <= 0 {
		concurrency = 1
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return err
	}

	process := func(ctx context.Context, raw json.RawMessage) error {
		var payload P
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", topic, err)
		}
		return fn(ctx, payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.workers[topic]; ok {
		old.pool.Release()
	}
	m.workers[topic] = &topicWorker{pool: pool, process: process}
	return nil
}

// Start begins the polling loop. It returns immediately; call CloseAll to
// stop. Starting a degraded manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	if m.store == nil {
		close(m.doneChan)
		return
	}
	m.started = true
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneChan)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	pruneTicker := time.NewTicker(pruneEvery)
	defer pruneTicker.Stop()

	m.logger.Info("job queue started", zap.Duration("poll_interval", m.pollInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.dispatch(ctx)
		case <-pruneTicker.C:
			now := time.Now().UTC()
			if pruned, err := m.store.Prune(ctx, now.Add(-completedRetention), now.Add(-deadRetention)); err != nil {
				m.logger.Warn("job prune failed", zap.Error(err))
			} else if pruned > 0 {
				m.logger.Debug("pruned finished jobs", zap.Int("count", pruned))
			}
		}
	}
}

func (m *Manager) dispatch(ctx context.Context) {
	m.mu.Lock()
	topics := make(map[domain.JobTopic]*topicWorker, len(m.workers))
	for topic, worker := range m.workers {
		topics[topic] = worker
	}
	m.mu.Unlock()

	for topic, worker := range topics {
		free := worker.pool.Free()
		if free <= 0 {
			continue
		}
		jobs, err := m.store.Claim(ctx, topic, free)
		if err != nil {
			m.logger.Warn("job claim failed", zap.String("topic", string(topic)), zap.Error(err))
			continue
		}
		for _, job := range jobs {
			job := job
			if err := worker.pool.Submit(func() { m.runJob(ctx, worker, job) }); err != nil {
				// Pool full or released; put the job back untouched.
				if reqErr := m.store.Requeue(ctx, job.ID, job.RunAt, job.LastError); reqErr != nil {
					m.logger.Error("failed to return unsubmitted job to queue",
						zap.String("job_id", job.ID), zap.Error(reqErr))
				}
			}
		}
	}
}

func (m *Manager) runJob(ctx context.Context, worker *topicWorker, job *domain.Job) {
	err := worker.process(ctx, job.Payload)
	if err == nil {
		if markErr := m.store.MarkCompleted(ctx, job.ID); markErr != nil {
			m.logger.Error("failed to mark job completed",
				zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return
	}

	if job.Attempts >= job.MaxAttempts {
		m.logger.Warn("job exhausted retries, marking dead",
			zap.String("topic", string(job.Topic)), zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts), zap.Error(err))
		if markErr := m.store.MarkDead(ctx, job.ID, err.Error()); markErr != nil {
			m.logger.Error("failed to mark job dead", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return
	}

	delay := Backoff(job.Attempts)
	m.logger.Info("job failed, scheduling retry",
		zap.String("topic", string(job.Topic)), zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts), zap.Duration("backoff", delay), zap.Error(err))
	if reqErr := m.store.Requeue(ctx, job.ID, time.Now().UTC().Add(delay), err.Error()); reqErr != nil {
		m.logger.Error("failed to requeue job", zap.String("job_id", job.ID), zap.Error(reqErr))
	}
}

// Backoff returns the exponential retry delay after the given attempt
// count: base 2s doubled per attempt, capped.
func Backoff(attempts int) time.Duration {
	delay := backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}

// Remove deletes a job that has not started. Active jobs run to
// completion; there is no mid-flight cancellation.
func (m *Manager) Remove(ctx context.Context, topic domain.JobTopic, id string) bool {
	if m.store == nil {
		return false
	}
	removed, err := m.store.DeleteQueued(ctx, topic, id)
	if err != nil {
		m.logger.Warn("job removal failed", zap.String("job_id", id), zap.Error(err))
		return false
	}
	return removed
}

// GetJob fetches one job for inspection.
func (m *Manager) GetJob(ctx context.Context, topic domain.JobTopic, id string) (*domain.Job, error) {
	if m.store == nil {
		return nil, domain.ErrQueueUnavailable
	}
	return m.store.GetJob(ctx, topic, id)
}

// Queues reports per-topic statistics for operational dashboards.
func (m *Manager) Queues(ctx context.Context) ([]TopicStats, error) {
	if m.store == nil {
		return nil, domain.ErrQueueUnavailable
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TopicStats, 0, len(domain.AllTopics))
	for _, topic := range domain.AllTopics {
		s := stats[topic]
		s.Topic = topic
		if worker, ok := m.workers[topic]; ok {
			s.Concurrency = worker.pool.Cap()
		}
		out = append(out, s)
	}
	return out, nil
}

// CloseAll stops the polling loop and waits for active jobs to finish,
// bounded by a timeout per pool.
func (m *Manager) CloseAll() {
	if m.started {
		close(m.stopChan)
		<-m.doneChan
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, worker := range m.workers {
		if err := worker.pool.ReleaseTimeout(closeTimeout); err != nil {
			m.logger.Warn("worker pool did not drain in time", zap.String("topic", string(topic)), zap.Error(err))
		}
	}
	m.workers = make(map[domain.JobTopic]*topicWorker)
	m.logger.Info("job queue stopped")
}
