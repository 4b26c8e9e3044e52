package worker

import (
	"github.com/tu-nv/action-classifier/logger"
	"github.com/tu-nv/action-classifier/predictor"
	"github.com/tu-nv/action-classifier/rmq"
	"github.com/tu-nv/action-classifier/s3client"
	"github.com/tu-nv/action-classifier/tasks"
	"context"
	"fmt"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"sync"
	"time"
)

type Config struct {
	TaskMaxRetries int           `envconfig:"ACL_TASK_MAX_RETRIES" default:"3"`
	TaskTimeout    time.Duration `envconfig:"ACL_TASK_TIMEOUT" default:"30s"`
	ArchiveResults bool          `envconfig:"ACL_ARCHIVE_RESULTS" default:"false"`
}

type predictorService interface {
	Predict(ctx context.Context, req predictor.Request) (predictor.Result, error)
}

type Worker struct {
	config    Config
	redis     redisTransactions
	s3        s3Transactions
	rmq       rmqTransactions
	log       *zerolog.Logger
	predictor predictorService
}

func New(service predictorService) (*Worker, error) {
	log := logger.NewLogger("Worker")

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Error().Err(err).Msg("Could not read config")
		return nil, err
	}

	worker := Worker{
		config:    config,
		log:       &log,
		predictor: service,
		s3:        noArchive{},
	}
	if err := worker.refreshRMQClient(); err != nil {
		log.Error().Err(err).Msg("Could not create RMQ client")
		return nil, err
	}
	if err := worker.refreshRedisClient(); err != nil {
		log.Error().Err(err).Msg("Could not create Redis client")
		worker.rmq.close()
		return nil, err
	}
	if config.ArchiveResults {
		if err := worker.refreshS3Client(); err != nil {
			log.Error().Err(err).Msg("Could not create S3 client")
			worker.Close()
			return nil, err
		}
	}
	return &worker, nil
}

// StartWorker handles deliveries until ctx is done or a broken RMQ
// connection cannot be re-established. Clients are closed only after the
// deliveries already being processed are done.
func (worker *Worker) StartWorker(ctx context.Context) error {
	var inFlight sync.WaitGroup
	defer worker.Close()
	defer inFlight.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-worker.rmq.getDeliveriesCh():
			if ok {
				inFlight.Add(1)
				go func(delivery amqp.Delivery) {
					defer inFlight.Done()
					worker.processMessage(ctx, &delivery)
				}(delivery)
				continue
			}
			worker.log.Error().Msg("Deliveries channel closed, trying to refresh RMQ client")
			if err := worker.refreshRMQClient(); err != nil {
				return fmt.Errorf(
					"rmq deliveries channel has been closed and refresh returned error: %w",
					err,
				)
			}
		case rmqErr := <-worker.rmq.getRespChanErrorsCh():
			if rmqErr == nil {
				continue
			}
			worker.log.Err(rmqErr).Msg("Response connection received error, trying to refresh RMQ client")
			if err := worker.refreshRMQClient(); err != nil {
				return fmt.Errorf(
					"response connection received error and refresh failed with: %w",
					err,
				)
			}
		case rmqErr := <-worker.rmq.getReqChanErrorsCh():
			if rmqErr == nil {
				continue
			}
			worker.log.Err(rmqErr).Msg("Request connection received error, trying to refresh RMQ client")
			if err := worker.refreshRMQClient(); err != nil {
				return fmt.Errorf(
					"request connection received error and refresh failed with: %w",
					err,
				)
			}
		}
	}
}

func (worker *Worker) Close() {
	if worker.redis != nil {
		worker.redis.close()
	}
	if worker.s3 != nil {
		worker.s3.close()
	}
	if worker.rmq != nil {
		worker.rmq.close()
	}
}

func (worker *Worker) refreshRedisClient() error {
	worker.log.Info().Msg("Refreshing Redis client")
	if oldClient := worker.redis; oldClient != nil {
		defer oldClient.close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), worker.config.TaskTimeout)
	defer cancel()
	tasksClient, err := tasks.NewClient(ctx)
	if err != nil {
		worker.log.Err(err).Msg("Failed to refresh Redis client")
		return err
	}
	worker.redis = &redisClientWrapper{tasksClient}
	worker.log.Info().Msg("Refreshed Redis client")
	return nil
}

func (worker *Worker) refreshRMQClient() error {
	worker.log.Info().Msg("Refreshing RMQ client")
	if oldClient := worker.rmq; oldClient != nil {
		defer oldClient.close()
	}
	rmqClient, err := rmq.NewClient()
	if err != nil {
		worker.log.Err(err).Msg("Failed to refresh RMQ client")
		return err
	}
	worker.rmq = &rmqClientWrapper{rmqClient}
	worker.log.Info().Msg("Refreshed RMQ client")
	return nil
}

func (worker *Worker) refreshS3Client() error {
	worker.log.Info().Msg("Refreshing S3 client")
	if oldClient := worker.s3; oldClient != nil {
		defer oldClient.close()
	}
	s3Client, err := s3client.New()
	if err != nil {
		worker.log.Err(err).Msg("Failed to refresh S3 client")
		return err
	}
	worker.s3 = &s3ClientWrapper{s3Client}
	worker.log.Info().Msg("Refreshed S3 client")
	return nil
}
