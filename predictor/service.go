package predictor

import (
	"github.com/tu-nv/action-classifier/features"
	"github.com/tu-nv/action-classifier/logger"
	"github.com/tu-nv/action-classifier/model"
	"github.com/tu-nv/action-classifier/types"
	"github.com/tu-nv/action-classifier/utils"
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"time"
)

var ErrBadRequest = errors.New("bad prediction request")

// Request carries either a ready feature vector or raw per-channel sensor
// samples that are turned into features first.
type Request struct {
	Model    string      `json:"model"`
	Features []float64   `json:"features,omitempty"`
	Samples  [][]float64 `json:"samples,omitempty"`
}

type Result struct {
	Model          string    `json:"model"`
	Version        string    `json:"version"`
	Class          int       `json:"class"`
	Label          string    `json:"label"`
	Votes          []int     `json:"votes"`
	DecisionValues []float64 `json:"decision_values"`
	Cached         bool      `json:"cached"`
}

// Cache stores results by key. The redis client satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, v interface{}) error
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

type Service struct {
	registry *model.Registry
	cache    Cache
	cacheTTL time.Duration
	log      zerolog.Logger
}

// NewService returns a prediction service. cache may be nil.
func NewService(registry *model.Registry, cache Cache, cacheTTL time.Duration) *Service {
	return &Service{
		registry: registry,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      logger.NewLogger("Predictor"),
	}
}

func (s *Service) Registry() *model.Registry {
	return s.registry
}

func (s *Service) Predict(ctx context.Context, req Request) (Result, error) {
	entry, err := s.registry.Get(req.Model)
	if err != nil {
		return Result{}, err
	}
	loaded, err := entry.Store.Current()
	if err != nil {
		return Result{}, err
	}
	vector, err := featureVector(req)
	if err != nil {
		return Result{}, err
	}

	useCache := s.cache != nil && entry.Config.CachePredictions
	key := CacheKey(req.Model, loaded.Version, vector)
	if useCache {
		var cached Result
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			cached.Cached = true
			return cached, nil
		}
		s.log.Debug().Err(err).Str("key", key).Msg("Prediction cache miss")
	}

	prediction, err := loaded.Classifier.PredictDetailed(vector)
	if err != nil {
		return Result{}, fmt.Errorf("model %s: %w", req.Model, err)
	}
	result := Result{
		Model:          req.Model,
		Version:        loaded.Version,
		Class:          prediction.Class,
		Label:          label(entry.Config, prediction.Class, len(prediction.Votes)),
		Votes:          prediction.Votes,
		DecisionValues: prediction.DecisionValues,
	}
	if useCache {
		if err := s.cache.SetJSON(ctx, key, result, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Could not cache prediction")
		}
	}
	return result, nil
}

// label falls back to the action names for unlabeled models with one class
// per action.
func label(cfg types.Configuration, class int, numClasses int) string {
	if actions := features.ActionLabels(); len(cfg.Labels) == 0 && numClasses == len(actions) {
		return actions[class]
	}
	return cfg.Label(class)
}

func featureVector(req Request) ([]float64, error) {
	switch {
	case len(req.Features) > 0 && len(req.Samples) > 0:
		return nil, fmt.Errorf("%w: features and samples are mutually exclusive", ErrBadRequest)
	case len(req.Samples) > 0:
		vector, err := features.FromSamples(req.Samples)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return vector, nil
	case len(req.Features) > 0:
		return req.Features, nil
	}
	return nil, fmt.Errorf("%w: no features or samples given", ErrBadRequest)
}

func CacheKey(modelName string, version string, vector []float64) string {
	return fmt.Sprintf("prediction:%s:%s:%s", modelName, version, utils.FormatHash(utils.HashFloats(vector)))
}
