package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/animastudio/aihub/internal/config"
	"github.com/animastudio/aihub/pkg/logger"
)

const TaskTypeGenerate = "generate:process"

// GenerationTask is an asynchronous generation job. The outcome is
// persisted in the generation audit log by the dispatcher; callers poll
// the usage endpoints or consume dispatch events for completion.
type GenerationTask struct {
	JobID       string   `json:"job_id"`
	Prompt      string   `json:"prompt"`
	Backend     Backend  `json:"backend,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// TaskQueue defines the interface for generation job processing.
type TaskQueue interface {
	// Enqueue adds a job to the queue.
	Enqueue(task *GenerationTask) error
	// IsAsync returns true if the queue processes jobs via Redis workers.
	IsAsync() bool
	// Close gracefully shuts down the queue.
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config: a
// Redis-backed asynq queue when Redis is enabled and reachable, otherwise
// an in-process queue.
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to in-process mode: %v", err)
				globalTaskQueue = NewSyncQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] In-process queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
		}
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance.
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based).
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection before committing to async mode.
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(task *GenerationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeGenerate, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return err
	}

	logger.Infof("[AsyncQueue] Job enqueued: id=%s, queue=%s", info.ID, info.Queue)
	return nil
}

func (q *AsyncQueue) IsAsync() bool { return true }

func (q *AsyncQueue) Close() error { return q.client.Close() }

// SyncQueue implements TaskQueue with in-process goroutine execution.
type SyncQueue struct {
	processor func(context.Context, *GenerationTask) error
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function that executes jobs.
func (q *SyncQueue) SetProcessor(processor func(context.Context, *GenerationTask) error) {
	q.processor = processor
}

// Enqueue runs the job in a fresh goroutine so the HTTP response is not
// held up by the backend call.
func (q *SyncQueue) Enqueue(task *GenerationTask) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] No processor set, job %s dropped", task.JobID)
		return nil
	}

	go func() {
		if err := q.processor(context.Background(), task); err != nil {
			logger.Warnf("[SyncQueue] Job %s failed: %v", task.JobID, err)
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool { return false }

func (q *SyncQueue) Close() error { return nil }
