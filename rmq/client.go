package rmq

import (
	"github.com/tu-nv/action-classifier/logger"
	"fmt"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

type Config struct {
	Host                    string `envconfig:"ACL_RMQ_HOST" required:"true"`
	Port                    string `envconfig:"ACL_RMQ_PORT" default:"5672"`
	Username                string `envconfig:"ACL_RMQ_USERNAME" required:"true"`
	Password                string `envconfig:"ACL_RMQ_PASSWORD" required:"true"`
	Exchange                string `envconfig:"ACL_RMQ_EXCHANGE" default:"action-classifier"`
	MaxParallelRequestCount int    `envconfig:"ACL_RMQ_MAX_PARALLEL_REQUESTS" default:"5"`
	PredictionQueue         string `envconfig:"ACL_RMQ_PREDICTION_QUEUE" default:"predictions"`
	ResultQueue             string `envconfig:"ACL_RMQ_RESULT_QUEUE" default:"prediction-results"`
}

// Client consumes prediction tasks on one connection and publishes results
// on another, so a blocked publisher does not stall consumption.
type Client struct {
	Deliveries     <-chan amqp.Delivery
	ReqChanErrors  <-chan *amqp.Error
	RespChanErrors <-chan *amqp.Error
	config         Config
	reqConn        *amqp.Connection
	respConn       *amqp.Connection
	respChannel    *amqp.Channel
	log            *zerolog.Logger
}

func ReadEnvironment() (Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	return config, err
}

func NewClient() (*Client, error) {
	log := logger.NewLogger("RMQ client")
	config, err := ReadEnvironment()
	if err != nil {
		log.Error().Err(err).Msg("Could not read env config")
		return nil, err
	}

	url := URL(config)
	respConn, respChannel, err := setup(url)
	if err != nil {
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	reqConn, reqChannel, err := setup(url)
	if err != nil {
		_ = respConn.Close()
		return nil, fmt.Errorf("failed connection: %w", err)
	}
	closeAll := func() {
		_ = reqConn.Close()
		_ = respConn.Close()
	}

	if err := reqChannel.ExchangeDeclare(config.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	for _, queue := range []string{config.PredictionQueue, config.ResultQueue} {
		if _, err := reqChannel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			closeAll()
			return nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := reqChannel.QueueBind(queue, queue, config.Exchange, false, nil); err != nil {
			closeAll()
			return nil, fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	if err := reqChannel.Qos(config.MaxParallelRequestCount, 0, false); err != nil {
		closeAll()
		return nil, fmt.Errorf("qos: %w", err)
	}

	deliveries, err := reqChannel.Consume(
		config.PredictionQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("consume deliveries: %w", err)
	}
	log.Info().Str("queue", config.PredictionQueue).Msg("Consuming prediction tasks")

	return &Client{
		Deliveries:     deliveries,
		ReqChanErrors:  reqChannel.NotifyClose(make(chan *amqp.Error, 1)),
		RespChanErrors: respChannel.NotifyClose(make(chan *amqp.Error, 1)),
		config:         config,
		reqConn:        reqConn,
		respConn:       respConn,
		respChannel:    respChannel,
		log:            &log,
	}, nil
}

func (c *Client) PublishResult(msg amqp.Publishing) error {
	return c.respChannel.Publish(
		c.config.Exchange,
		c.config.ResultQueue,
		false,
		false,
		msg)
}

func (c *Client) Close() {
	_ = c.reqConn.Close()
	_ = c.respConn.Close()
}

func URL(config Config) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", config.Username, config.Password, config.Host, config.Port)
}

func setup(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
