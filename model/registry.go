package model

import (
	"github.com/tu-nv/action-classifier/types"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownModel = errors.New("unknown model")

type Entry struct {
	Config types.Configuration
	Store  *Store
}

// Registry maps model names to stores. The set of models is fixed at
// construction; only the models themselves are reloaded.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry creates a store per configuration. downloader may be nil when no
// configuration uses the s3 source.
func NewRegistry(cfgs []types.Configuration, downloader Downloader) (*Registry, error) {
	entries := make(map[string]*Entry, len(cfgs))
	for _, cfg := range cfgs {
		if _, ok := entries[cfg.Name]; ok {
			return nil, fmt.Errorf("duplicate model name %q", cfg.Name)
		}
		source, err := sourceFor(cfg, downloader)
		if err != nil {
			return nil, err
		}
		var overrides [][]byte
		if len(cfg.Overrides) > 0 {
			patch, err := json.Marshal(cfg.Overrides)
			if err != nil {
				return nil, fmt.Errorf("model %s: encoding overrides: %w", cfg.Name, err)
			}
			overrides = append(overrides, patch)
		}
		entries[cfg.Name] = &Entry{
			Config: cfg,
			Store:  NewStore(cfg.Name, source, overrides...),
		}
	}
	return &Registry{entries: entries}, nil
}

func sourceFor(cfg types.Configuration, downloader Downloader) (Source, error) {
	switch cfg.Source {
	case types.SourceFile:
		return FileSource{Path: cfg.ResolvedPath()}, nil
	case types.SourceS3:
		if downloader == nil {
			return nil, fmt.Errorf("model %s uses s3 but no s3 client is configured", cfg.Name)
		}
		return S3Source{Client: downloader, Key: cfg.ResolvedPath()}, nil
	}
	return nil, fmt.Errorf("%w: model %s has unknown source %q", types.ErrInvalidConfig, cfg.Name, cfg.Source)
}

func (r *Registry) Get(name string) (*Entry, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return entry, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReloadAll reloads every model and joins the errors of those that failed.
func (r *Registry) ReloadAll(ctx context.Context) error {
	var errs []error
	for _, name := range r.Names() {
		if _, err := r.entries[name].Store.Reload(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
