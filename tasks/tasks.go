package tasks

import (
	"github.com/tu-nv/action-classifier/predictor"
	"github.com/tu-nv/action-classifier/redis"
	"context"
	"fmt"
	"time"
)

const PredictionsDB redis.DB = 1

type TaskStatus string

const (
	TaskStatusSubmitted        TaskStatus = "submitted"
	TaskStatusStarted          TaskStatus = "started"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCompletedSuccess TaskStatus = "completed - success"
	TaskStatusCompletedFailure TaskStatus = "completed - failure"
	TaskStatusCanceled         TaskStatus = "canceled"
)

func (s TaskStatus) Complete() bool {
	return s == TaskStatusCompletedSuccess || s == TaskStatusCompletedFailure || s == TaskStatusCanceled
}

// PredictionTask is the Redis record of one queued prediction.
type PredictionTask struct {
	ID            string            `json:"id"`
	Request       predictor.Request `json:"request"`
	Status        TaskStatus        `json:"status"`
	Attempts      int               `json:"attempts"`
	SubmittedAt   *string           `json:"submitted_at"`
	StartedAt     *string           `json:"started_at"`
	CompletedAt   *string           `json:"completed_at"`
	Result        *predictor.Result `json:"result,omitempty"`
	ResultFileKey string            `json:"result_file_key,omitempty"`
	ErrorMessages []string          `json:"error_messages"`
}

// Store is the subset of the redis client used for task records.
type Store interface {
	GetJSON(ctx context.Context, key string, v interface{}) error
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	UpdateJSON(ctx context.Context, key string, v interface{}, update func() error) error
}

type Client struct {
	store Store
	close func() error
}

// NewClient connects to the predictions database and checks that it answers.
func NewClient(ctx context.Context) (*Client, error) {
	redisClient, err := redis.NewClient(PredictionsDB)
	if err != nil {
		return nil, err
	}
	if err = redisClient.Ping(ctx); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("redis predictions db is not reachable: %w", err)
	}
	return &Client{store: redisClient, close: redisClient.Close}, nil
}

func NewClientWithStore(store Store) *Client {
	return &Client{store: store}
}

func TaskKey(id string) string {
	return fmt.Sprintf("prediction-task:%s", id)
}

func (client *Client) Get(ctx context.Context, id string) (*PredictionTask, error) {
	var task PredictionTask
	if err := client.store.GetJSON(ctx, TaskKey(id), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update applies updateFunc to the stored task under the task lock.
func (client *Client) Update(ctx context.Context, id string, updateFunc func(task *PredictionTask)) error {
	var task PredictionTask
	return client.store.UpdateJSON(ctx, TaskKey(id), &task, func() error {
		updateFunc(&task)
		return nil
	})
}

func (client *Client) Close() error {
	if client.close == nil {
		return nil
	}
	return client.close()
}

const RFC3339Micro = "2006-01-02T15:04:05.000000-07:00"

func FormattedNow() *string {
	now := time.Now().UTC().Format(RFC3339Micro)
	return &now
}
