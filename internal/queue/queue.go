package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bobarin/beatreel/internal/models"
)

const (
	QueueRuns = "queue:runs"

	// KeyLatestProgress holds the newest ProgressState as JSON.
	KeyLatestProgress = "progress:latest"
)

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	RunID     uuid.UUID `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks up to timeout for the next job. It returns nil, nil when none arrived.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueRun enqueues an orchestration run
func (q *Queue) EnqueueRun(ctx context.Context, runID uuid.UUID) error {
	job := &Job{
		ID:    uuid.New(),
		Type:  "orchestrate",
		RunID: runID,
	}
	return q.Enqueue(ctx, QueueRuns, job)
}

// PublishProgress stores the latest progress snapshot so every API instance can serve it.
func (q *Queue) PublishProgress(ctx context.Context, state models.ProgressState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return q.client.Set(ctx, KeyLatestProgress, data, 0).Err()
}

// LatestProgress returns the last published snapshot, or nil when none was published.
func (q *Queue) LatestProgress(ctx context.Context) (*models.ProgressState, error) {
	data, err := q.client.Get(ctx, KeyLatestProgress).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}

	var state models.ProgressState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &state, nil
}

const defaultPublishTimeout = 2 * time.Second

// ProgressPublisher adapts the queue to a progress sink. Report never blocks
// the caller: it leaves the newest snapshot in a one-slot buffer, replacing
// any snapshot not yet written, and Run writes it to Redis. Failures go to
// onError.
type ProgressPublisher struct {
	queue   *Queue
	timeout time.Duration
	onError func(error)
	latest  chan models.ProgressState
}

func NewProgressPublisher(q *Queue, timeout time.Duration, onError func(error)) *ProgressPublisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &ProgressPublisher{
		queue:   q,
		timeout: timeout,
		onError: onError,
		latest:  make(chan models.ProgressState, 1),
	}
}

func (p *ProgressPublisher) Report(state models.ProgressState) {
	for {
		select {
		case p.latest <- state:
			return
		default:
		}
		// Drop the stale snapshot and try again.
		select {
		case <-p.latest:
		default:
		}
	}
}

// Run publishes snapshots until ctx ends, then writes the one still pending.
func (p *ProgressPublisher) Run(ctx context.Context) {
	for {
		select {
		case state := <-p.latest:
			p.publish(state)
		case <-ctx.Done():
			select {
			case state := <-p.latest:
				p.publish(state)
			default:
			}
			return
		}
	}
}

func (p *ProgressPublisher) publish(state models.ProgressState) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.queue.PublishProgress(ctx, state); err != nil && p.onError != nil {
		p.onError(err)
	}
}
