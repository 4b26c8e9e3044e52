package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"
	"time"
)

type DB int

type ReleaseLock func() error

var ErrNotFound = errors.New("redis key not found")

type Client struct {
	client         redis.UniversalClient
	lockExpiration time.Duration
	lockRetries    int
}

type Config struct {
	LockExpirationSeconds   int     `envconfig:"ACL_REDIS_LOCK_EXPIRATION" default:"3"`
	LockRetries             int     `envconfig:"ACL_REDIS_LOCK_RETRIES" default:"20"`
	Host                    string  `envconfig:"ACL_REDIS_HOST" required:"true"`
	Port                    string  `envconfig:"ACL_REDIS_PORT" default:"6379"`
	HASentinelPort          string  `envconfig:"ACL_REDIS_HA_SENTINEL_PORT" default:"26379"`
	HASentinelMasterName    string  `envconfig:"ACL_REDIS_HA_MASTER_NAME" default:"mymaster"`
	Password                string  `envconfig:"ACL_REDIS_AUTH_PASSWORD" default:""`
	AuthRequired            bool    `envconfig:"ACL_REDIS_AUTH_REQUIRED" default:"false"`
	HAMode                  bool    `envconfig:"ACL_REDIS_HA_MODE" default:"false"`
	HASentinelSocketTimeout float32 `envconfig:"ACL_REDIS_SOCKET_TIMEOUT" default:"0.5"`
}

func ReadEnvironment() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func NewClient(db DB) (*Client, error) {
	cfg, err := ReadEnvironment()
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(cfg, db), nil
}

func NewClientWithConfig(cfg *Config, db DB) *Client {
	var client redis.UniversalClient
	if cfg.HAMode {
		client = redis.NewFailoverClient(FailoverOptions(cfg, db))
	} else {
		client = redis.NewClient(Options(cfg, db))
	}
	return Wrap(client, time.Duration(cfg.LockExpirationSeconds)*time.Second, cfg.LockRetries)
}

// Wrap builds a Client around an existing connection.
func Wrap(client redis.UniversalClient, lockExpiration time.Duration, lockRetries int) *Client {
	return &Client{
		client:         client,
		lockExpiration: lockExpiration,
		lockRetries:    lockRetries,
	}
}

func FailoverOptions(cfg *Config, db DB) *redis.FailoverOptions {
	timeout := time.Duration(float64(cfg.HASentinelSocketTimeout) * float64(time.Second))
	options := redis.FailoverOptions{
		SentinelAddrs: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.HASentinelPort)},
		ReadTimeout:   timeout,
		WriteTimeout:  timeout,
		MaxRetries:    6,
		DB:            int(db),
		MasterName:    cfg.HASentinelMasterName,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return &options
}

func Options(cfg *Config, db DB) *redis.Options {
	options := redis.Options{
		Addr:       fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		MaxRetries: 6,
		DB:         int(db),
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return &options
}

// GetJSON decodes the value at key into v. A missing key returns ErrNotFound.
func (client *Client) GetJSON(ctx context.Context, key string, v interface{}) error {
	b, err := client.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// SetJSON stores v at key. A zero ttl keeps the key forever.
func (client *Client) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.client.Set(ctx, key, b, ttl).Err()
}

// UpdateJSON reads key into v, calls update and writes v back while holding
// the key's lock. The key keeps its expiration.
func (client *Client) UpdateJSON(ctx context.Context, key string, v interface{}, update func() error) (err error) {
	releaseLock, err := client.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()
	if err = client.GetJSON(ctx, key, v); err != nil {
		return err
	}
	if err = update(); err != nil {
		return err
	}
	return client.SetJSON(ctx, key, v, redis.KeepTTL)
}

func (client *Client) Lock(ctx context.Context, key string) (ReleaseLock, error) {
	locker := redislock.New(client.client)
	strategy := redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), client.lockRetries)
	lock, err := locker.Obtain(ctx, LockKey(key), client.lockExpiration, &redislock.Options{RetryStrategy: strategy})
	if err != nil {
		return nil, err
	}
	return func() error {
		return lock.Release(context.Background())
	}, nil
}

func LockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

func (client *Client) Ping(ctx context.Context) error {
	return client.client.Ping(ctx).Err()
}

func (client *Client) Close() error {
	return client.client.Close()
}
