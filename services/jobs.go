package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/carloz138/catalogo-magico-mx-sub005/models"
	awspkg "github.com/carloz138/catalogo-magico-mx-sub005/pkg/aws"
)

const (
	jobTTL   = 24 * time.Hour
	queueKey = "ingest:queue"
)

var ErrJobNotFound = errors.New("ingestion job not found")

// JobStore keeps ingestion job documents and their cancel flags.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.IngestionJob, error)
	Save(ctx context.Context, job *models.IngestionJob) error
	RequestCancel(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

// JobQueue hands job IDs to a worker.
type JobQueue interface {
	Enqueue(ctx context.Context, id string) error
}

func jobKey(id string) string    { return fmt.Sprintf("ingest:job:%s", id) }
func cancelKey(id string) string { return fmt.Sprintf("ingest:job:%s:cancel", id) }

// RedisJobStore stores jobs as JSON with a 24h TTL and doubles as the
// default queue.
type RedisJobStore struct {
	rdb *redis.Client
}

func NewRedisJobStore(rdb *redis.Client) *RedisJobStore {
	return &RedisJobStore{rdb: rdb}
}

func (r *RedisJobStore) Get(ctx context.Context, id string) (*models.IngestionJob, error) {
	val, err := r.rdb.Get(ctx, jobKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	var job models.IngestionJob
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", id, err)
	}
	return &job, nil
}

func (r *RedisJobStore) Save(ctx context.Context, job *models.IngestionJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, jobKey(job.ID), b, jobTTL).Err()
}

func (r *RedisJobStore) RequestCancel(ctx context.Context, id string) error {
	return r.rdb.Set(ctx, cancelKey(id), "1", jobTTL).Err()
}

func (r *RedisJobStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Exists(ctx, cancelKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisJobStore) Enqueue(ctx context.Context, id string) error {
	return r.rdb.RPush(ctx, queueKey, id).Err()
}

// Dequeue blocks up to timeout for the next job ID. It returns "" when the
// timeout passes with an empty queue.
func (r *RedisJobStore) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := r.rdb.BLPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// SQSJobQueue publishes job IDs to SQS instead of the Redis list.
type SQSJobQueue struct {
	consumer *awspkg.SQSConsumer
}

func NewSQSJobQueue(consumer *awspkg.SQSConsumer) *SQSJobQueue {
	return &SQSJobQueue{consumer: consumer}
}

func (q *SQSJobQueue) Enqueue(ctx context.Context, id string) error {
	return q.consumer.SendMessage(ctx, id)
}
