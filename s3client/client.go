package s3client

import (
	"github.com/tu-nv/action-classifier/logger"
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"sync"
)

// Client reads model files from and writes prediction archives to a single
// bucket. The session is re-created once when a request fails.
type Client struct {
	mu         sync.RWMutex
	sess       *session.Session
	bucketName string
	env        EnvironmentConfig
}

type EnvironmentConfig struct {
	BucketName  string `envconfig:"ACL_STORAGE_BUCKET" required:"true"`
	Env         string `envconfig:"ACL_ENV" default:"prod"`
	Region      string `envconfig:"ACL_AWS_REGION" required:"true"`
	AwsEndpoint string `envconfig:"ACL_AWS_ENDPOINT_URL" default:""`
	AccessKeyID string `envconfig:"ACL_AWS_ACCESS_ID" default:""`
	AccessKey   string `envconfig:"ACL_AWS_ACCESS_KEY" default:""`
}

var clientLogger = logger.NewLogger("S3Client")
var sdkLogger = logger.NewLogger("S3-SDK")

var ErrNoSession = errors.New("s3 session is not initialized")

func New() (*Client, error) {
	var env EnvironmentConfig
	if err := envconfig.Process("", &env); err != nil {
		clientLogger.Err(err).Msg("Failed to get proper variables from environment")
		return nil, err
	}
	return NewWithConfig(env)
}

func NewWithConfig(env EnvironmentConfig) (*Client, error) {
	client := &Client{
		bucketName: env.BucketName,
		env:        env,
	}
	if err := client.refreshSession(); err != nil {
		return nil, err
	}
	return client, nil
}

func (client *Client) Bucket() string {
	return client.bucketName
}

func (client *Client) Download(ctx context.Context, key string) ([]byte, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(client.bucketName),
		Key:    aws.String(key),
	}
	res, err := client.download(ctx, params)
	if err == nil {
		return res, nil
	}
	if err = client.retryAfterRefresh(err); err != nil {
		return nil, err
	}
	return client.download(ctx, params)
}

func (client *Client) Upload(ctx context.Context, key string, data []byte) error {
	params := &s3manager.UploadInput{
		Bucket:      aws.String(client.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	err := client.upload(ctx, params)
	if err == nil {
		return nil
	}
	if err = client.retryAfterRefresh(err); err != nil {
		return err
	}
	params.Body = bytes.NewReader(data)
	return client.upload(ctx, params)
}

func (client *Client) Close() {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.sess = nil
}

func (client *Client) session() (*session.Session, error) {
	client.mu.RLock()
	defer client.mu.RUnlock()
	if client.sess == nil {
		return nil, ErrNoSession
	}
	return client.sess, nil
}

func (client *Client) retryAfterRefresh(cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	clientLogger.Error().Err(cause).Msg("Caught error while using S3 session, trying to refresh it")
	if err := client.refreshSession(); err != nil {
		return fmt.Errorf("%v; refreshing session: %w", cause, err)
	}
	clientLogger.Info().Msg("Successfully refreshed session")
	return nil
}

func (client *Client) download(ctx context.Context, params *s3.GetObjectInput) ([]byte, error) {
	sess, err := client.session()
	if err != nil {
		return nil, err
	}
	log := clientLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()
	sdkLog := sdkLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	downloader := s3manager.NewDownloader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	buf := aws.NewWriteAtBuffer([]byte{})

	log.Debug().Msg("Downloading file")
	size, err := downloader.DownloadWithContext(ctx, buf, params)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download file")
		return nil, err
	}
	log.Debug().Msgf("Downloaded %v bytes", size)
	return buf.Bytes(), nil
}

func (client *Client) upload(ctx context.Context, params *s3manager.UploadInput) error {
	sess, err := client.session()
	if err != nil {
		return err
	}
	sdkLog := sdkLogger.With().
		Str("key", *params.Key).
		Str("bucket", *params.Bucket).Logger()

	uploader := s3manager.NewUploader(sess.Copy(&aws.Config{Logger: getLogger(sdkLog)}))
	clientLogger.Debug().Str("key", *params.Key).Msg("Uploading the file")
	_, err = uploader.UploadWithContext(ctx, params)
	return err
}

func (client *Client) ec2Config() *aws.Config {
	return &aws.Config{
		Region:     aws.String(client.env.Region),
		MaxRetries: aws.Int(4),
		LogLevel:   aws.LogLevel(aws.LogDebug),
	}
}

func (client *Client) envConfig() *aws.Config {
	creds := credentials.NewStaticCredentials(client.env.AccessKeyID, client.env.AccessKey, "")
	cfg := aws.NewConfig().
		WithRegion(client.env.Region).
		WithMaxRetries(4).
		WithCredentials(creds).
		WithLogLevel(aws.LogDebug)

	if client.env.Env == "dev" && len(client.env.AwsEndpoint) > 0 {
		cfg = cfg.WithEndpoint(client.env.AwsEndpoint).
			WithS3ForcePathStyle(true)
	}
	return cfg
}

// refreshSession tries instance credentials first and falls back to the
// static credentials from the environment.
func (client *Client) refreshSession() error {
	sess, err := newVerifiedSession(client.ec2Config())
	if err == nil {
		client.setSession(sess)
		clientLogger.Info().Msg("S3 session successfully initialized using EC2")
		return nil
	}
	clientLogger.Info().Msg("Could not initialize S3 session using EC2, trying env credentials")
	if client.env.AccessKeyID == "" {
		client.setSession(nil)
		return fmt.Errorf("could not initialize S3 session: %w", err)
	}
	sess, err = newVerifiedSession(client.envConfig())
	if err != nil {
		client.setSession(nil)
		clientLogger.Error().Err(err).Msg("Could not initialize S3 session")
		return fmt.Errorf("could not initialize S3 session: %w", err)
	}
	client.setSession(sess)
	clientLogger.Info().Msg("S3 session successfully initialized using env credentials")
	return nil
}

func (client *Client) setSession(sess *session.Session) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.sess = sess
}

func newVerifiedSession(cfg *aws.Config) (*session.Session, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	if _, err = sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{}); err != nil {
		return nil, err
	}
	return sess, nil
}

type s3Logger struct {
	log zerolog.Logger
}

func getLogger(log zerolog.Logger) *s3Logger {
	return &s3Logger{log}
}

func (logger *s3Logger) Log(v ...interface{}) {
	//nolint
	logger.log.Debug().Msg(fmt.Sprint(v...))
}
