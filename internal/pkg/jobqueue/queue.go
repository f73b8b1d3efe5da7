package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis keys
	jobKeyPrefix  = "billing:job:"
	pendingKey    = "billing:jobs:pending"
	processingKey = "billing:jobs:processing"
	statsKey      = "billing:jobs:stats"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour

	defaultWorkers = 3
	pollTimeout    = time.Second
	stuckAfter     = 10 * time.Minute
	sweepInterval  = time.Minute
)

// Handler processes one job. A returned error marks the job failed and
// schedules a retry while retries remain.
type Handler func(ctx context.Context, job *Job) error

// Queue is a Redis list backed job queue. Jobs move from the pending list to
// the processing list while a worker holds them.
type Queue struct {
	client  *redis.Client
	workers int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	hmu      sync.RWMutex
	handlers map[JobType]Handler

	retryDelay func(attempt int) time.Duration
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Queue{
		client:     client,
		workers:    workers,
		handlers:   map[JobType]Handler{},
		retryDelay: func(attempt int) time.Duration { return time.Minute * time.Duration(attempt) },
	}
}

// Handle registers the handler for a job type. Register before Start.
func (q *Queue) Handle(jobType JobType, h Handler) {
	q.hmu.Lock()
	defer q.hmu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType JobType) (Handler, bool) {
	q.hmu.RLock()
	defer q.hmu.RUnlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Start launches the workers and the stuck job sweeper.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})

	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.sweeper()
}

// Stop signals the workers and waits for the running jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}
	close(q.stopCh)
	q.wg.Wait()
	q.running = false
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		job, err := q.dequeueJob(ctx)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			time.Sleep(pollTimeout)
			continue
		}
		q.processJob(ctx, job)
	}
}

func (q *Queue) sweeper() {
	defer q.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case now := <-ticker.C:
			if n := q.recoverStuck(context.Background(), now); n > 0 {
				log.Warnf("[JobQueue] Requeued %d stuck job(s)", n)
			}
		}
	}
}

// recoverStuck moves jobs that have been processing for longer than
// stuckAfter back to the pending list. Entries without job data are dropped.
func (q *Queue) recoverStuck(ctx context.Context, now time.Time) int {
	ids, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Reading processing list failed: %v", err)
		return 0
	}
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			q.client.LRem(ctx, processingKey, 1, id)
			continue
		}
		started := job.UpdatedAt
		if job.ProcessedAt != nil {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= stuckAfter {
			continue
		}
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered after " + now.Sub(started).Round(time.Second).String()
		job.UpdatedAt = now
		q.saveJob(ctx, job)

		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, processingKey, 1, id)
		pipe.RPush(ctx, pendingKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Errorf("[JobQueue] Requeue of stuck job %s failed: %v", id, err)
			continue
		}
		recovered++
	}
	return recovered
}

// EnqueueJob stores the job and appends it to the pending list.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, pendingKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	log.Debugf("[JobQueue] Enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

// dequeueJob blocks up to pollTimeout for the next job. redis.Nil means the
// pending list stayed empty.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, pendingKey, processingKey, pollTimeout).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.client.LRem(ctx, processingKey, 1, id)
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.saveJob(ctx, job)

	err := q.run(ctx, job)
	if err == nil {
		job.MarkAsCompleted()
		q.client.Del(ctx, jobKeyPrefix+job.ID)
		q.countStatus(ctx, JobStatusCompleted)
		q.client.LRem(ctx, processingKey, 1, job.ID)
		return
	}

	job.MarkAsFailed(err.Error())
	if job.IsRetryable() {
		job.MarkAsRetrying()
		log.Warnf("[JobQueue] %s job %s failed (attempt %d/%d): %v", job.Type, job.ID, job.RetryCount, job.MaxRetries, err)
		id := job.ID
		time.AfterFunc(q.retryDelay(job.RetryCount), func() {
			q.client.LPush(context.Background(), pendingKey, id)
		})
		q.countStatus(ctx, JobStatusRetrying)
	} else {
		log.Errorf("[JobQueue] %s job %s gave up after %d attempts: %v", job.Type, job.ID, job.RetryCount, err)
		q.countStatus(ctx, JobStatusFailed)
	}
	q.saveJob(ctx, job)
	q.client.LRem(ctx, processingKey, 1, job.ID)
}

func (q *Queue) run(ctx context.Context, job *Job) (err error) {
	h, ok := q.handler(job.Type)
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", job.Type, r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) saveJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Marshal job %s failed: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, jobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Saving job %s failed: %v", job.ID, err)
	}
}

func (q *Queue) countStatus(ctx context.Context, status JobStatus) {
	if err := q.client.HIncrBy(ctx, statsKey, string(status), 1).Err(); err != nil {
		log.Errorf("[JobQueue] Updating job stats failed: %v", err)
	}
}

// GetJob reads a job that has not completed yet. Completed jobs are deleted.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// GetJobStats returns how many jobs completed, failed for good or were
// retried since the counters were created.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, count := range raw {
		if n, err := strconv.ParseInt(count, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

// GetQueueSize returns the number of pending jobs.
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, pendingKey).Result()
}
