package main

import (
	"github.com/tu-nv/action-classifier/api"
	"github.com/tu-nv/action-classifier/logger"
	"github.com/tu-nv/action-classifier/model"
	"github.com/tu-nv/action-classifier/predictor"
	"github.com/tu-nv/action-classifier/redis"
	"github.com/tu-nv/action-classifier/s3client"
	"github.com/tu-nv/action-classifier/types"
	"github.com/tu-nv/action-classifier/worker"
	"context"
	"flag"
	"fmt"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

type Config struct {
	ConfigPath          string        `envconfig:"ACL_CONFIG_PATH" required:"true"`
	RestAPIActive       bool          `envconfig:"ACL_REST_API_ACTIVE" default:"true"`
	RestAPIPort         string        `envconfig:"ACL_REST_API_PORT" default:"10000"`
	WorkerActive        bool          `envconfig:"ACL_WORKER_ACTIVE" default:"false"`
	ModelReloadInterval time.Duration `envconfig:"ACL_MODEL_RELOAD_INTERVAL" default:"0"`
	S3ModelsActive      bool          `envconfig:"ACL_S3_MODELS_ACTIVE" default:"false"`
	PredictionCache     bool          `envconfig:"ACL_PREDICTION_CACHE_ACTIVE" default:"false"`
	PredictionCacheTTL  time.Duration `envconfig:"ACL_PREDICTION_CACHE_TTL" default:"10m"`
}

const (
	registryStartMaxRetries = 5
	retryDelay              = 5 * time.Second

	predictionCacheDB redis.DB = 2
)

func main() {
	logger.SetupLogging()
	mainLogger := logger.NewLogger("Main")
	fatalErrLogger := mainLogger.Fatal().Caller()
	wrap := flag.Bool("wrap", false, "run as a child process and wrap its logs")
	check := flag.Bool("check", false, "load and validate every model, then exit")
	flag.Parse()

	if *wrap {
		logger.WrapProcess(os.Args[0], childArgs(os.Args[1:])...)
		return
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		fatalErrLogger.Err(err).Msg("Failed to read environment")
		os.Exit(1)
	}

	var detectorConfig predictor.DetectorConfig
	if err := envconfig.Process("", &detectorConfig); err != nil {
		fatalErrLogger.Err(err).Msg("Failed to read detection environment")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *check {
		if err := checkModels(ctx, config, &mainLogger); err != nil {
			fatalErrLogger.Err(err).Msg("Model check failed")
			os.Exit(1)
		}
		mainLogger.Info().Msg("All models are valid. Exit...")
		return
	}

	// Load models
	registryChannel := make(chan *model.Registry)
	go func() {
		for retry := 0; retry < registryStartMaxRetries; retry++ {
			registry, err := loadRegistry(ctx, config, &mainLogger)
			if err != nil {
				mainLogger.Err(err).Msgf("Failed to load models. Retrying in %s", retryDelay)
				time.Sleep(retryDelay)
				continue
			}
			registryChannel <- registry
			return
		}
		fatalErrLogger.Msgf("Could not load models after %d retries, exiting", registryStartMaxRetries)
		os.Exit(1)
	}()

	// block until models load
	registry := <-registryChannel

	var cache predictor.Cache
	if config.PredictionCache {
		cacheClient, err := redis.NewClient(predictionCacheDB)
		if err != nil {
			fatalErrLogger.Err(err).Msg("Could not create prediction cache client")
			os.Exit(1)
		}
		defer func() { _ = cacheClient.Close() }()
		pingCtx, cancel := context.WithTimeout(ctx, retryDelay)
		err = cacheClient.Ping(pingCtx)
		cancel()
		if err != nil {
			fatalErrLogger.Err(err).Msg("Prediction cache is not reachable")
			os.Exit(1)
		}
		cache = cacheClient
	}
	service := predictor.NewService(registry, cache, config.PredictionCacheTTL)

	if config.ModelReloadInterval > 0 {
		go reloadPeriodically(ctx, registry, config.ModelReloadInterval, &mainLogger)
	}

	if config.RestAPIActive {
		go func() {
			mainLogger.Info().Msg("Starting API service")
			apiRequest := &api.Request{
				Service:  service,
				Sessions: predictor.NewSessions(service, detectorConfig),
			}
			host := fmt.Sprintf(":%s", config.RestAPIPort)
			server := &http.Server{Addr: host, Handler: apiRequest.Handler()}
			go func() {
				<-ctx.Done()
				_ = server.Shutdown(context.Background())
			}()
			mainLogger.Info().Msgf("REST API on %s", host)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fatalErrLogger.Err(err).Msg("REST API stopped with error")
				os.Exit(1)
			}
		}()
	}

	if !config.WorkerActive {
		<-ctx.Done()
		mainLogger.Info().Msg("Shutting down")
		return
	}

	mainLogger.Info().Msg("Start prediction worker")
	for ctx.Err() == nil {
		rmqWorker, err := worker.New(service)
		if err != nil {
			fatalErrLogger.Err(err).Msg("Could not initialize RMQ worker")
			os.Exit(1)
		}
		err = rmqWorker.StartWorker(ctx)
		if err != nil && ctx.Err() == nil {
			mainLogger.Err(err).Msgf("Worker returned with error. Launching new in %s", retryDelay)
			time.Sleep(retryDelay)
		}
	}
	mainLogger.Info().Msg("Shutting down")
}

// childArgs drops every form of the wrap flag so the child does not wrap
// itself again.
func childArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		name := strings.TrimLeft(arg, "-")
		if strings.HasPrefix(arg, "-") && (name == "wrap" || strings.HasPrefix(name, "wrap=")) {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func newRegistry(config Config) (*model.Registry, error) {
	cfgs, err := types.LoadConfigurations(config.ConfigPath)
	if err != nil {
		return nil, err
	}
	var downloader model.Downloader
	if config.S3ModelsActive {
		s3Client, err := s3client.New()
		if err != nil {
			return nil, err
		}
		downloader = s3Client
	}
	return model.NewRegistry(cfgs, downloader)
}

func loadRegistry(ctx context.Context, config Config, log *zerolog.Logger) (*model.Registry, error) {
	registry, err := newRegistry(config)
	if err != nil {
		return nil, err
	}
	log.Info().Strs("models", registry.Names()).Msg("Loaded configurations, starting models loading")
	if err = registry.ReloadAll(ctx); err != nil {
		return nil, err
	}
	log.Info().Msg("Models loaded")
	return registry, nil
}

func checkModels(ctx context.Context, config Config, log *zerolog.Logger) error {
	registry, err := loadRegistry(ctx, config, log)
	if err != nil {
		return err
	}
	for _, name := range registry.Names() {
		entry, _ := registry.Get(name)
		loaded, err := entry.Store.Current()
		if err != nil {
			return err
		}
		params := loaded.Classifier.Model()
		log.Info().
			Str("model", name).
			Str("version", loaded.Version).
			Int("classes", params.NumClasses()).
			Int("features", params.FeatureDim()).
			Msg("Model is valid")
	}
	return nil
}

func reloadPeriodically(ctx context.Context, registry *model.Registry, interval time.Duration, log *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.ReloadAll(ctx); err != nil {
				log.Err(err).Msg("Periodic model reload failed, keeping previous models")
			}
		}
	}
}
