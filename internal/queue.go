package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names for the three named queues (spec.md §4.7): enrichment,
// cover fetch/resize, and author harvest (self-rescheduling per spec.md
// §4.8). NewQueueWorker gives them priority weights 10/5/1 under one shared
// worker concurrency of 10.
const (
	TaskEnrichEdition = "enrich:edition"
	TaskFetchCover    = "cover:fetch"
	TaskHarvestStep   = "harvest:step"

	QueueEnrichment = "enrichment"
	QueueCover      = "cover"
	QueueHarvest    = "harvest"
)

// EnrichEditionPayload is the asynq task payload for a single queued
// edition enrichment (spec.md §6 POST /api/enrich/queue).
type EnrichEditionPayload struct {
	ISBN            string `json:"isbn"`
	PriorityProvider string `json:"priority_provider,omitempty"`
}

// FetchCoverPayload is the asynq task payload for a queued cover fetch.
type FetchCoverPayload struct {
	ISBN string `json:"isbn"`
}

// NewEnrichEditionTask builds the asynq.Task for the enrichment queue.
func NewEnrichEditionTask(isbn string, priorityProvider string) (*asynq.Task, error) {
	payload, err := json.Marshal(EnrichEditionPayload{ISBN: isbn, PriorityProvider: priorityProvider})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEnrichEdition, payload, asynq.Queue(QueueEnrichment), asynq.MaxRetry(3)), nil
}

// NewFetchCoverTask builds the asynq.Task for the cover queue.
func NewFetchCoverTask(isbn string) (*asynq.Task, error) {
	payload, err := json.Marshal(FetchCoverPayload{ISBN: isbn})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFetchCover, payload, asynq.Queue(QueueCover), asynq.MaxRetry(3)), nil
}

// QueueClient wraps asynq.Client for enqueuing the three queue types.
type QueueClient struct {
	client *asynq.Client
}

func NewQueueClient(redisOpt asynq.RedisClientOpt) *QueueClient {
	return &QueueClient{client: asynq.NewClient(redisOpt)}
}

func (q *QueueClient) Close() error {
	return q.client.Close()
}

func (q *QueueClient) EnqueueEdition(ctx context.Context, isbn, priorityProvider string) error {
	task, err := NewEnrichEditionTask(isbn, priorityProvider)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task)
	return err
}

func (q *QueueClient) EnqueueCover(ctx context.Context, isbn string) error {
	task, err := NewFetchCoverTask(isbn)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task)
	return err
}

func (q *QueueClient) EnqueueHarvestStep(ctx context.Context, step WorkflowStep) error {
	payload, err := json.Marshal(step)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskHarvestStep, payload, asynq.Queue(QueueHarvest), asynq.MaxRetry(1))
	_, err = q.client.EnqueueContext(ctx, task)
	return err
}

// QueueWorkerConfig carries the Redis connection and the handler for each of
// the three queues. Concurrency is set by NewQueueWorker: one shared limit of
// 10 tasks, with no separate per-queue ceiling.
type QueueWorkerConfig struct {
	RedisOpt           asynq.RedisClientOpt
	EnrichmentHandler  asynq.HandlerFunc
	CoverHandler       asynq.HandlerFunc
	HarvestHandler     asynq.HandlerFunc
}

// NewQueueWorker builds the asynq.Server + mux wiring for the three
// queues, weighting enrichment highest, matching the teacher pattern of
// named priority queues processed proportionally rather than strictly.
func NewQueueWorker(cfg QueueWorkerConfig) (*asynq.Server, *asynq.ServeMux) {
	serverCfg := asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			QueueEnrichment: 10,
			QueueCover:      5,
			QueueHarvest:    1,
		},
		StrictPriority: false,
		RetryDelayFunc: retryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			Log(ctx).Error("task failed", "type", task.Type(), "retry", retried, "err", Sanitize(err.Error()))
		}),
	}
	server := asynq.NewServer(cfg.RedisOpt, serverCfg)

	mux := asynq.NewServeMux()
	if cfg.EnrichmentHandler != nil {
		mux.HandleFunc(TaskEnrichEdition, cfg.EnrichmentHandler)
	}
	if cfg.CoverHandler != nil {
		mux.HandleFunc(TaskFetchCover, cfg.CoverHandler)
	}
	if cfg.HarvestHandler != nil {
		mux.HandleFunc(TaskHarvestStep, cfg.HarvestHandler)
	}
	return server, mux
}

// retryDelay implements the three-attempt backoff from spec.md §4.7
// (1m, 5m, 15m) before the task is archived to asynq's dead-letter set.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delays := []time.Duration{1 * time.Minute, 5 * time.Minute, 15 * time.Minute}
	if n < len(delays) {
		return delays[n]
	}
	return delays[len(delays)-1]
}

// unmarshalTask decodes a task payload, used by handlers that accept a
// struct rather than the generated *EnrichEditionPayload/*FetchCoverPayload
// constructors above.
func unmarshalTask(task *asynq.Task, v any) error {
	return json.Unmarshal(task.Payload(), v)
}

// SkipRetry wraps an asynq handler's terminal, non-retryable validation
// failure so the task is acked instead of rescheduled, per spec.md §4.7
// ("permanent validation failures ack without retry").
func SkipRetry(err error) error {
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}
