package model

import (
	"github.com/tu-nv/action-classifier/logger"
	"github.com/tu-nv/action-classifier/ml/svm"
	"github.com/tu-nv/action-classifier/utils"
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrNotLoaded = errors.New("model is not loaded")

// Loaded is one immutable generation of a model.
type Loaded struct {
	Classifier *svm.Classifier
	Version    string
	Source     string
	LoadedAt   time.Time
}

// Store holds the active generation of a named model. Reload builds a new
// generation and swaps the pointer, so readers see either the old or the new
// model and never a mix.
type Store struct {
	name      string
	source    Source
	overrides [][]byte
	reloadMu  sync.Mutex
	current   atomic.Pointer[Loaded]
	log       zerolog.Logger
}

func NewStore(name string, source Source, overrides ...[]byte) *Store {
	return &Store{
		name:      name,
		source:    source,
		overrides: overrides,
		log:       logger.NewLogger("ModelStore").With().Str("model", name).Logger(),
	}
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) Current() (*Loaded, error) {
	loaded := s.current.Load()
	if loaded == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, s.name)
	}
	return loaded, nil
}

// Reload fetches and validates the model. On failure the previous generation
// stays active and the error is returned. Reloads of one store run one at a
// time; Current never blocks.
func (s *Store) Reload(ctx context.Context) (*Loaded, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	data, err := s.source.Fetch(ctx)
	if err != nil {
		s.log.Err(err).Str("source", s.source.String()).Msg("Failed to fetch model")
		return nil, err
	}
	version := utils.FormatHash(utils.HashBytes(data))
	if prev := s.current.Load(); prev != nil && prev.Version == version {
		s.log.Debug().Str("version", version).Msg("Model unchanged, skipping reload")
		return prev, nil
	}

	params, err := Decode(data, s.overrides...)
	if err != nil {
		s.log.Err(err).Str("source", s.source.String()).Msg("Rejected model")
		return nil, fmt.Errorf("model %s: %w", s.name, err)
	}
	clf, err := svm.NewClassifier(params)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", s.name, err)
	}
	loaded := &Loaded{
		Classifier: clf,
		Version:    version,
		Source:     s.source.String(),
		LoadedAt:   time.Now().UTC(),
	}
	s.current.Store(loaded)
	s.log.Info().
		Str("version", version).
		Int("classes", params.NumClasses()).
		Int("features", params.FeatureDim()).
		Int("support_vectors", params.NumSupportVectors()).
		Str("kernel", params.Kernel().Kind.String()).
		Msg("Loaded model")
	return loaded, nil
}
