package worker

import (
	"github.com/tu-nv/action-classifier/logger"
	"github.com/tu-nv/action-classifier/predictor"
	"github.com/tu-nv/action-classifier/tasks"
	"context"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
	"reflect"
	"testing"
	"time"
)

type mockedClientsConfig struct {
	rmqMockConfig
	redisMockConfig
	s3MockConfig
	predictorMockConfig
}

type mockedClients struct {
	redis     *redisMock
	rmq       *rmqMock
	s3        *s3Mock
	predictor *predictorMock
}

type methodsCalls struct {
	redis     redisMockCalls
	rmq       rmqMockCalls
	s3        s3MockCalls
	predictor predictorCall
}

func testConfiguration(t *testing.T, config mockedClientsConfig, expectedCalls methodsCalls) *mockedClients {
	return testConfigurationWithBody(t, config, `{"task_id": "task-1"}`, expectedCalls)
}

func testConfigurationWithBody(t *testing.T, config mockedClientsConfig, body string, expectedCalls methodsCalls) *mockedClients {
	worker, mocks := configureWorker(config)
	worker.processMessage(context.Background(), &amqp.Delivery{
		Body: []byte(body),
	})
	calls := methodsCalls{
		redis:     mocks.redis.calls,
		rmq:       mocks.rmq.calls,
		s3:        mocks.s3.calls,
		predictor: mocks.predictor.calls,
	}
	if !reflect.DeepEqual(calls, expectedCalls) {
		t.Errorf("Got unexpected called methods set.\nExpected:\n%+v\nGot:\n%+v", expectedCalls, calls)
	}
	return mocks
}

func configureWorker(config mockedClientsConfig) (*Worker, *mockedClients) {
	redis := &redisMock{config: config.redisMockConfig}
	s3 := &s3Mock{config: config.s3MockConfig}
	rmq := &rmqMock{config: config.rmqMockConfig}
	service := &predictorMock{config: config.predictorMockConfig}

	log := logger.NewLogger("Test Worker")

	return &Worker{
			config:    Config{TaskMaxRetries: 3, TaskTimeout: time.Second},
			redis:     redis,
			s3:        s3,
			rmq:       rmq,
			log:       &log,
			predictor: service,
		}, &mockedClients{
			redis:     redis,
			rmq:       rmq,
			s3:        s3,
			predictor: service,
		}
}

func TestWorker(t *testing.T) {
	t.Run("Successful", testSuccessfulTask)
	t.Run("Failed to get prediction task", testGetTaskFailed)
	t.Run("Message without task id", testEmptyTaskID)
	t.Run("Message is not JSON", testMalformedMessage)
	t.Run("Already complete with success", testAlreadyCompletedSuccessfully)
	t.Run("Already cancelled", testAlreadyCancelled)
	t.Run("Exceeded attempts", testExceededAttempts)
	t.Run("Failed to update task in onTaskExceededRetries", testFailedToUpdateOnExceededRetries)
	t.Run("Failed to update task in onTaskStarted", testFailedToUpdateOnTaskStarted)
	t.Run("Failed due to prediction error", testPredictionError)
	t.Run("Failed due to predictor panic", testPredictorPanic)
	t.Run("Failed to update task in onTaskFailedWithError", testFailedToUpdateOnTaskFailedWithError)
	t.Run("Failed to archive result", testFailedToSaveToS3)
	t.Run("Failed to update task in onTaskComplete", testFailedToUpdateOnTaskComplete)
	t.Run("Failed to publish result", testFailedPublishResult)
	t.Run("Failed to acknowledge delivery", testFailedAckDelivery)
	t.Run("Deadline passed before start", testDeadlinePassed)
}

func testSuccessfulTask(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{},
		methodsCalls{
			redis:     redisMockCalls{getTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:       rmqMockCalls{publishResult: true, acknowledgeDelivery: true},
			s3:        s3MockCalls{saveResultFile: true},
			predictor: predictorCall{predict: true},
		},
	)
	require.Len(t, mocks.rmq.published, 1)
	message := mocks.rmq.published[0]
	require.Equal(t, "task-1", message.TaskID)
	require.Equal(t, tasks.TaskStatusCompletedSuccess, message.Status)
	require.NotNil(t, message.Result)
	require.Equal(t, "WALKING", message.Result.Label)
}

func testGetTaskFailed(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{getTask: withValue{fail: true}},
		},
		methodsCalls{
			redis: redisMockCalls{getTask: true},
			rmq:   rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testEmptyTaskID(t *testing.T) {
	testConfigurationWithBody(
		t,
		mockedClientsConfig{},
		"{}",
		methodsCalls{
			rmq: rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testMalformedMessage(t *testing.T) {
	testConfigurationWithBody(
		t,
		mockedClientsConfig{},
		"task-1",
		methodsCalls{
			rmq: rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testAlreadyCompletedSuccessfully(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getTask: withValue{
					returnedValue: tasks.PredictionTask{ID: "task-1", Status: tasks.TaskStatusCompletedSuccess},
				},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getTask: true},
			rmq:   rmqMockCalls{publishResult: true, acknowledgeDelivery: true},
		},
	)
	require.Equal(t, tasks.TaskStatusCompletedSuccess, mocks.rmq.published[0].Status)
}

func testAlreadyCancelled(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getTask: withValue{
					returnedValue: tasks.PredictionTask{ID: "task-1", Status: tasks.TaskStatusCanceled},
				},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getTask: true},
			rmq:   rmqMockCalls{publishResult: true, acknowledgeDelivery: true},
		},
	)
}

func testExceededAttempts(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getTask: withValue{
					returnedValue: tasks.PredictionTask{ID: "task-1", Status: tasks.TaskStatusFailed, Attempts: 3},
				},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getTask: true, onTaskExceededRetries: true},
			rmq:   rmqMockCalls{publishResult: true, acknowledgeDelivery: true},
		},
	)
	require.Equal(t, tasks.TaskStatusCompletedFailure, mocks.rmq.published[0].Status)
}

func testFailedToUpdateOnExceededRetries(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{
				getTask: withValue{
					returnedValue: tasks.PredictionTask{ID: "task-1", Attempts: 5},
				},
				onTaskExceededRetries: failingMethod{fail: true},
			},
		},
		methodsCalls{
			redis: redisMockCalls{getTask: true, onTaskExceededRetries: true},
			rmq:   rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testFailedToUpdateOnTaskStarted(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{onTaskStarted: failingMethod{fail: true}},
		},
		methodsCalls{
			redis: redisMockCalls{getTask: true, onTaskStarted: true},
			rmq:   rmqMockCalls{rejectDelivery: true},
		},
	)
}

func testPredictionError(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			predictorMockConfig: predictorMockConfig{fail: true},
		},
		methodsCalls{
			redis:     redisMockCalls{getTask: true, onTaskStarted: true, onTaskFailedWithError: true},
			rmq:       rmqMockCalls{publishResult: true, acknowledgeDelivery: true},
			predictor: predictorCall{predict: true},
		},
	)
	message := mocks.rmq.published[0]
	require.Equal(t, tasks.TaskStatusFailed, message.Status)
	require.Equal(t, "prediction failed", message.Error)
	require.Nil(t, message.Result)
}

func testPredictorPanic(t *testing.T) {
	mocks := testConfiguration(
		t,
		mockedClientsConfig{
			predictorMockConfig: predictorMockConfig{panics: true},
		},
		methodsCalls{
			redis:     redisMockCalls{getTask: true, onTaskStarted: true, onTaskFailedWithError: true},
			rmq:       rmqMockCalls{publishResult: true, acknowledgeDelivery: true},
			predictor: predictorCall{predict: true},
		},
	)
	require.Contains(t, mocks.rmq.published[0].Error, "predictor exploded")
}

func testFailedToUpdateOnTaskFailedWithError(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			predictorMockConfig: predictorMockConfig{fail: true},
			redisMockConfig:     redisMockConfig{onTaskFailedWithError: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:     redisMockCalls{getTask: true, onTaskStarted: true, onTaskFailedWithError: true},
			rmq:       rmqMockCalls{rejectDelivery: true},
			predictor: predictorCall{predict: true},
		},
	)
}

func testFailedToSaveToS3(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			s3MockConfig: s3MockConfig{saveResultFile: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:     redisMockCalls{getTask: true, onTaskStarted: true},
			rmq:       rmqMockCalls{rejectDelivery: true},
			s3:        s3MockCalls{saveResultFile: true},
			predictor: predictorCall{predict: true},
		},
	)
}

func testFailedToUpdateOnTaskComplete(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			redisMockConfig: redisMockConfig{onTaskComplete: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:     redisMockCalls{getTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:       rmqMockCalls{rejectDelivery: true},
			s3:        s3MockCalls{saveResultFile: true},
			predictor: predictorCall{predict: true},
		},
	)
}

func testFailedPublishResult(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			rmqMockConfig: rmqMockConfig{publishResult: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:     redisMockCalls{getTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:       rmqMockCalls{publishResult: true, rejectDelivery: true},
			s3:        s3MockCalls{saveResultFile: true},
			predictor: predictorCall{predict: true},
		},
	)
}

func testFailedAckDelivery(t *testing.T) {
	testConfiguration(
		t,
		mockedClientsConfig{
			rmqMockConfig: rmqMockConfig{acknowledgeDelivery: failingMethod{fail: true}},
		},
		methodsCalls{
			redis:     redisMockCalls{getTask: true, onTaskStarted: true, onTaskComplete: true},
			rmq:       rmqMockCalls{publishResult: true, acknowledgeDelivery: true},
			s3:        s3MockCalls{saveResultFile: true},
			predictor: predictorCall{predict: true},
		},
	)
}

func testDeadlinePassed(t *testing.T) {
	worker, mocks := configureWorker(mockedClientsConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker.processMessage(ctx, &amqp.Delivery{Body: []byte(`{"task_id": "task-1"}`)})

	require.Equal(t, redisMockCalls{getTask: true, onTaskCancelled: true}, mocks.redis.calls)
	require.Equal(t, rmqMockCalls{publishResult: true, acknowledgeDelivery: true}, mocks.rmq.calls)
	require.False(t, mocks.predictor.calls.predict)
	require.Equal(t, tasks.TaskStatusCanceled, mocks.rmq.published[0].Status)
}

func TestNoArchive(t *testing.T) {
	key, err := noArchive{}.saveResultFile(context.Background(), &Task{id: "task-1"}, predictor.Result{})
	require.NoError(t, err)
	require.Empty(t, key)
}

func TestResultFileKey(t *testing.T) {
	task := &Task{id: "task-1"}
	result := predictor.Result{Model: "action", Version: "v1"}
	require.Equal(t, "predictions/action/v1/task-1.json", resultFileKey(task, result))
}

func TestStartWorkerWaitsForInFlightTasks(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	worker, mocks := configureWorker(mockedClientsConfig{
		predictorMockConfig: predictorMockConfig{started: started, release: release},
	})
	mocks.rmq.deliveries = make(chan amqp.Delivery, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- worker.StartWorker(ctx)
	}()

	mocks.rmq.deliveries <- amqp.Delivery{Body: []byte(`{"task_id": "task-1"}`)}
	<-started
	cancel()

	select {
	case <-errCh:
		t.Fatal("worker stopped before the running task finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.True(t, mocks.rmq.closed)
	require.True(t, mocks.rmq.ackedBeforeClose)
}
