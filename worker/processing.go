package worker

import (
	"github.com/tu-nv/action-classifier/predictor"
	"github.com/tu-nv/action-classifier/tasks"
	"github.com/tu-nv/action-classifier/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// Message is the body of a prediction queue delivery.
type Message struct {
	TaskID string `json:"task_id"`
}

// ResultMessage is published to the result queue once a task settles.
type ResultMessage struct {
	TaskID string            `json:"task_id"`
	Status tasks.TaskStatus  `json:"status"`
	Result *predictor.Result `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Sender string            `json:"sender"`
}

type Task struct {
	id             string
	delivery       *amqp.Delivery
	predictionTask *tasks.PredictionTask
	log            *zerolog.Logger
}

var errEmptyTaskID = errors.New("message has no task_id")

func (worker *Worker) processMessage(ctx context.Context, delivery *amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, worker.config.TaskTimeout)
	defer cancel()

	rejectLogger := worker.log.With().Str("message_id", delivery.MessageId).Logger()
	task, err := worker.createTask(ctx, delivery)
	if err != nil {
		worker.log.Err(err).
			Str("message_id", delivery.MessageId).
			Str("body", string(delivery.Body)).
			Msg("Failed to create task for delivery")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	message, err := worker.processTask(ctx, task)
	if err != nil {
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.publishResult(task, message); err != nil {
		task.log.Err(err).Msg("Got error while publishing result message")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.acknowledgeDelivery(delivery); err != nil {
		task.log.Err(err).Msg("Failed to acknowledge delivery")
	}
	task.log.Info().Str("status", string(message.Status)).Msg("Finished processing RMQ message")
}

func (worker *Worker) createTask(ctx context.Context, delivery *amqp.Delivery) (*Task, error) {
	var message Message
	if err := json.Unmarshal(delivery.Body, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message, got error %w", err)
	}
	if message.TaskID == "" {
		return nil, errEmptyTaskID
	}
	predictionTask, err := worker.redis.getTask(ctx, message.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction task for message, got error %w", err)
	}
	taskLogger := worker.log.With().Str("tid", message.TaskID).Str("model", predictionTask.Request.Model).Logger()
	return &Task{
		id:             message.TaskID,
		delivery:       delivery,
		predictionTask: predictionTask,
		log:            &taskLogger,
	}, nil
}

// processTask runs the prediction and records the outcome. It returns an
// error only when the outcome could not be recorded, so the delivery is
// retried; prediction failures are recorded on the task and acknowledged.
func (worker *Worker) processTask(ctx context.Context, task *Task) (ResultMessage, error) {
	message := ResultMessage{TaskID: task.id, Sender: "action-classifier"}
	status, shouldPerform, err := worker.shouldPerformTask(ctx, task)
	if err != nil {
		task.log.Err(err).Msg("Got error while trying to decide whether to run task")
		return message, err
	}
	if !shouldPerform {
		message.Status = status
		message.Result = task.predictionTask.Result
		return message, nil
	}
	if err = worker.redis.onTaskStarted(ctx, task); err != nil {
		task.log.Err(err).Msg("Failed to update task info")
		return message, fmt.Errorf("failed to update task info: %w", err)
	}

	result, predictErr := worker.runPrediction(ctx, task)
	if predictErr != nil {
		task.log.Err(predictErr).Msg("Got error while running prediction")
		if err = worker.redis.onTaskFailedWithError(ctx, task, predictErr); err != nil {
			return message, err
		}
		message.Status = tasks.TaskStatusFailed
		message.Error = predictErr.Error()
		return message, nil
	}

	resultKey, err := worker.s3.saveResultFile(ctx, task, result)
	if err != nil {
		task.log.Err(err).Msg("Got error while trying to archive result")
		return message, err
	}
	task.log.Info().Int("class", result.Class).Str("label", result.Label).Msg("Prediction done, marking task as complete")
	if err = worker.redis.onTaskComplete(ctx, task, result, resultKey); err != nil {
		task.log.Err(err).Msg("Got error while trying to mark task as complete")
		return message, err
	}
	message.Status = tasks.TaskStatusCompletedSuccess
	message.Result = &result
	return message, nil
}

func (worker *Worker) runPrediction(ctx context.Context, task *Task) (result predictor.Result, err error) {
	defer utils.RecoverWithError(&err)
	task.log.Info().Msgf("Processing message from RMQ, attempt # %d", task.predictionTask.Attempts+1)
	return worker.predictor.Predict(ctx, task.predictionTask.Request)
}

func (worker *Worker) shouldPerformTask(ctx context.Context, task *Task) (tasks.TaskStatus, bool, error) {
	info := task.predictionTask

	if info.Status.Complete() {
		task.log.Info().Msg("Task is already done. (might indicate issue acking message with RMQ)")
		return info.Status, false, nil
	}
	if info.Attempts >= worker.config.TaskMaxRetries {
		task.log.Info().Msg("Prediction task has exceeded retries")
		err := worker.redis.onTaskExceededRetries(ctx, task, worker.config.TaskMaxRetries)
		return tasks.TaskStatusCompletedFailure, false, err
	}
	if err := ctx.Err(); err != nil {
		task.log.Info().Msg("Task deadline passed before start, cancelling")
		cancelErr := worker.redis.onTaskCancelled(context.Background(), task, err.Error())
		return tasks.TaskStatusCanceled, false, cancelErr
	}
	return "", true, nil
}
