package worker

import (
	"github.com/tu-nv/action-classifier/predictor"
	"github.com/tu-nv/action-classifier/tasks"
	"context"
	"fmt"
)

type redisTransactions interface {
	getTask(ctx context.Context, id string) (*tasks.PredictionTask, error)
	onTaskStarted(ctx context.Context, task *Task) error
	onTaskCancelled(ctx context.Context, task *Task, errorMessages ...string) error
	onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error
	onTaskFailedWithError(ctx context.Context, task *Task, err error) error
	onTaskComplete(ctx context.Context, task *Task, result predictor.Result, resultFileKey string) error
	close()
}

type redisClientWrapper struct {
	tasksClient *tasks.Client
}

func (wrapper *redisClientWrapper) close() {
	_ = wrapper.tasksClient.Close()
}

func (wrapper *redisClientWrapper) getTask(ctx context.Context, id string) (*tasks.PredictionTask, error) {
	return wrapper.tasksClient.Get(ctx, id)
}

func (wrapper *redisClientWrapper) onTaskStarted(ctx context.Context, task *Task) error {
	return wrapper.tasksClient.Update(ctx, task.id, func(predictionTask *tasks.PredictionTask) {
		predictionTask.Status = tasks.TaskStatusStarted
		predictionTask.Attempts += 1
		predictionTask.StartedAt = tasks.FormattedNow()
		predictionTask.CompletedAt = nil
	})
}

func (wrapper *redisClientWrapper) onTaskCancelled(ctx context.Context, task *Task, errorMessages ...string) error {
	return wrapper.tasksClient.Update(ctx, task.id, func(predictionTask *tasks.PredictionTask) {
		predictionTask.Status = tasks.TaskStatusCanceled
		predictionTask.CompletedAt = tasks.FormattedNow()
		predictionTask.ErrorMessages = append(predictionTask.ErrorMessages, errorMessages...)
	})
}

func (wrapper *redisClientWrapper) onTaskExceededRetries(ctx context.Context, task *Task, maxRetries int) error {
	return wrapper.tasksClient.Update(ctx, task.id, func(predictionTask *tasks.PredictionTask) {
		predictionTask.Status = tasks.TaskStatusCompletedFailure
		predictionTask.CompletedAt = tasks.FormattedNow()
		predictionTask.ErrorMessages = append(
			predictionTask.ErrorMessages,
			fmt.Sprintf(
				"Task has exceeded retries. (Attempts: %d, max retries: %d )",
				predictionTask.Attempts,
				maxRetries,
			),
		)
	})
}

func (wrapper *redisClientWrapper) onTaskFailedWithError(ctx context.Context, task *Task, err error) error {
	return wrapper.tasksClient.Update(ctx, task.id, func(predictionTask *tasks.PredictionTask) {
		predictionTask.Status = tasks.TaskStatusFailed
		predictionTask.CompletedAt = tasks.FormattedNow()
		predictionTask.ErrorMessages = append(predictionTask.ErrorMessages, err.Error())
	})
}

func (wrapper *redisClientWrapper) onTaskComplete(ctx context.Context, task *Task, result predictor.Result, resultFileKey string) error {
	return wrapper.tasksClient.Update(ctx, task.id, func(predictionTask *tasks.PredictionTask) {
		predictionTask.Status = tasks.TaskStatusCompletedSuccess
		predictionTask.CompletedAt = tasks.FormattedNow()
		predictionTask.Result = &result
		predictionTask.ResultFileKey = resultFileKey
	})
}
