package worker

import (
	"github.com/tu-nv/action-classifier/predictor"
	"github.com/tu-nv/action-classifier/tasks"
	"context"
	"errors"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

type failingMethod struct {
	fail bool
}

type withValue struct {
	fail          bool
	returnedValue interface{}
}

type predictorMock struct {
	config predictorMockConfig
	calls  predictorCall
}

type predictorMockConfig struct {
	fail   bool
	panics bool
	// when set, Predict signals started and waits for release
	started chan struct{}
	release chan struct{}
}

type predictorCall struct {
	predict bool
}

func (mock *predictorMock) Predict(_ context.Context, req predictor.Request) (predictor.Result, error) {
	mock.calls.predict = true
	if mock.config.release != nil {
		mock.config.started <- struct{}{}
		<-mock.config.release
	}
	if mock.config.panics {
		panic("predictor exploded")
	}
	if mock.config.fail {
		return predictor.Result{}, errors.New("prediction failed")
	}
	return predictor.Result{Model: req.Model, Version: "v1", Class: 1, Label: "WALKING"}, nil
}

type redisMock struct {
	config redisMockConfig
	calls  redisMockCalls
}

type redisMockConfig struct {
	getTask               withValue
	onTaskCancelled       failingMethod
	onTaskStarted         failingMethod
	onTaskExceededRetries failingMethod
	onTaskFailedWithError failingMethod
	onTaskComplete        failingMethod
}

type redisMockCalls struct {
	getTask               bool
	onTaskCancelled       bool
	onTaskStarted         bool
	onTaskExceededRetries bool
	onTaskFailedWithError bool
	onTaskComplete        bool
}

type rmqMock struct {
	config           rmqMockConfig
	calls            rmqMockCalls
	published        []ResultMessage
	deliveries       chan amqp.Delivery
	closed           bool
	ackedBeforeClose bool
}

type rmqMockConfig struct {
	publishResult       failingMethod
	acknowledgeDelivery failingMethod
}

type rmqMockCalls struct {
	publishResult       bool
	acknowledgeDelivery bool
	rejectDelivery      bool
}

type s3Mock struct {
	config s3MockConfig
	calls  s3MockCalls
}

type s3MockConfig struct {
	saveResultFile failingMethod
}

type s3MockCalls struct {
	saveResultFile bool
}

func (mock *s3Mock) close() {}

func (mock *rmqMock) close() {
	mock.closed = true
	mock.ackedBeforeClose = mock.calls.acknowledgeDelivery
}

func (mock *redisMock) close() {}

func (mock *redisMock) getTask(_ context.Context, id string) (*tasks.PredictionTask, error) {
	mock.calls.getTask = true
	if mock.config.getTask.fail {
		return nil, errors.New("failed to get prediction task")
	}
	switch value := mock.config.getTask.returnedValue.(type) {
	case tasks.PredictionTask:
		return &value, nil
	default:
		return &tasks.PredictionTask{
			ID:      id,
			Request: predictor.Request{Model: "action", Features: []float64{1, 2, 3}},
			Status:  tasks.TaskStatusSubmitted,
		}, nil
	}
}

func (mock *redisMock) onTaskStarted(context.Context, *Task) error {
	mock.calls.onTaskStarted = true
	if mock.config.onTaskStarted.fail {
		return errors.New("failed to update task on start")
	}
	return nil
}

func (mock *redisMock) onTaskCancelled(context.Context, *Task, ...string) error {
	mock.calls.onTaskCancelled = true
	if mock.config.onTaskCancelled.fail {
		return errors.New("failed to update task on cancel")
	}
	return nil
}

func (mock *redisMock) onTaskExceededRetries(context.Context, *Task, int) error {
	mock.calls.onTaskExceededRetries = true
	if mock.config.onTaskExceededRetries.fail {
		return errors.New("failed to update task on exceeded retries")
	}
	return nil
}

func (mock *redisMock) onTaskFailedWithError(context.Context, *Task, error) error {
	mock.calls.onTaskFailedWithError = true
	if mock.config.onTaskFailedWithError.fail {
		return errors.New("failed to update task on fail with error")
	}
	return nil
}

func (mock *redisMock) onTaskComplete(context.Context, *Task, predictor.Result, string) error {
	mock.calls.onTaskComplete = true
	if mock.config.onTaskComplete.fail {
		return errors.New("failed to update task on complete")
	}
	return nil
}

func (mock *rmqMock) rejectDelivery(*amqp.Delivery, *zerolog.Logger) {
	mock.calls.rejectDelivery = true
}

func (mock *rmqMock) getDeliveriesCh() <-chan amqp.Delivery {
	return mock.deliveries
}

func (mock *rmqMock) getReqChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (mock *rmqMock) getRespChanErrorsCh() <-chan *amqp.Error {
	return nil
}

func (mock *rmqMock) publishResult(_ *Task, message ResultMessage) error {
	mock.calls.publishResult = true
	if mock.config.publishResult.fail {
		return errors.New("failed to publish result")
	}
	mock.published = append(mock.published, message)
	return nil
}

func (mock *rmqMock) acknowledgeDelivery(*amqp.Delivery) error {
	mock.calls.acknowledgeDelivery = true
	if mock.config.acknowledgeDelivery.fail {
		return errors.New("failed to acknowledge delivery")
	}
	return nil
}

func (mock *s3Mock) saveResultFile(_ context.Context, task *Task, result predictor.Result) (string, error) {
	mock.calls.saveResultFile = true
	if mock.config.saveResultFile.fail {
		return "", errors.New("failed to upload result")
	}
	return resultFileKey(task, result), nil
}
