package api

import (
	"github.com/tu-nv/action-classifier/ml/svm"
	"github.com/tu-nv/action-classifier/model"
	"github.com/tu-nv/action-classifier/predictor"
	"context"
	"encoding/json"
	"errors"
	"github.com/rs/zerolog"
	"io"
	"net/http"
	"time"
)

const maxBodyBytes = 1 << 20

type predictorService interface {
	Predict(ctx context.Context, req predictor.Request) (predictor.Result, error)
	Registry() *model.Registry
}

type sensorSessions interface {
	Observe(ctx context.Context, batch predictor.SensorBatch) (predictor.Detection, error)
}

// Request serves the REST API on top of a prediction service. /samples is
// only routed when Sessions is set.
type Request struct {
	Service  predictorService
	Sessions sensorSessions
}

type errorResponse struct {
	Error string `json:"error"`
}

// ModelInfo describes one registry entry for GET /models.
type ModelInfo struct {
	Name             string     `json:"name"`
	Loaded           bool       `json:"loaded"`
	Version          string     `json:"version,omitempty"`
	Source           string     `json:"source,omitempty"`
	LoadedAt         *time.Time `json:"loaded_at,omitempty"`
	Classes          int        `json:"classes,omitempty"`
	Features         int        `json:"features,omitempty"`
	Kernel           string     `json:"kernel,omitempty"`
	Labels           []string   `json:"labels,omitempty"`
	CachePredictions bool       `json:"cache_predictions"`
}

type reloadResponse struct {
	Models []ModelInfo `json:"models"`
	Error  string      `json:"error,omitempty"`
}

// Handler routes the API endpoints.
func (req *Request) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/predict", req.Predict)
	mux.HandleFunc("/reload", req.Reload)
	mux.HandleFunc("/models", req.Models)
	if req.Sessions != nil {
		mux.HandleFunc("/samples", req.Samples)
	}
	return mux
}

func (req *Request) Predict(w http.ResponseWriter, r *http.Request) {
	logger := makeRequestLogger(r)
	if !allowMethod(w, r, http.MethodPost, &logger) {
		return
	}

	msg, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, &logger, "Could not read request body")
		return
	}
	var request predictor.Request
	if err = json.Unmarshal(msg, &request); err != nil {
		writeError(w, http.StatusBadRequest, err, &logger, "Could not decode prediction request")
		return
	}

	logger = logger.With().Str("model", request.Model).Logger()
	result, err := req.Service.Predict(r.Context(), request)
	if err != nil {
		writeError(w, statusFor(err), err, &logger, "Prediction failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
	logger.Info().
		Int("status", http.StatusOK).
		Int("class", result.Class).
		Bool("cached", result.Cached).
		Msg("Finished processing request")
}

// Samples feeds sensor events to a detection session and returns the
// prediction made once the session's windows are full.
func (req *Request) Samples(w http.ResponseWriter, r *http.Request) {
	logger := makeRequestLogger(r)
	if !allowMethod(w, r, http.MethodPost, &logger) {
		return
	}

	msg, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, &logger, "Could not read request body")
		return
	}
	var batch predictor.SensorBatch
	if err = json.Unmarshal(msg, &batch); err != nil {
		writeError(w, http.StatusBadRequest, err, &logger, "Could not decode sensor batch")
		return
	}

	logger = logger.With().Str("session", batch.Session).Logger()
	detection, err := req.Sessions.Observe(r.Context(), batch)
	if err != nil {
		writeError(w, statusFor(err), err, &logger, "Detection failed")
		return
	}
	writeJSON(w, http.StatusOK, detection)
	event := logger.Debug().Bool("idle", detection.Idle).Bool("ready", detection.Ready)
	if detection.Result != nil {
		event = event.Str("action", detection.Result.Label)
	}
	event.Msg("Processed sensor batch")
}

func (req *Request) Reload(w http.ResponseWriter, r *http.Request) {
	logger := makeRequestLogger(r)
	if !allowMethod(w, r, http.MethodPost, &logger) {
		return
	}
	registry := req.Service.Registry()
	response := reloadResponse{}
	status := http.StatusOK
	if err := registry.ReloadAll(r.Context()); err != nil {
		logger.Err(err).Msg("Some models failed to reload")
		response.Error = err.Error()
		status = http.StatusInternalServerError
	}
	response.Models = describe(registry)
	writeJSON(w, status, response)
	logger.Info().Int("status", status).Msg("Finished reloading models")
}

func (req *Request) Models(w http.ResponseWriter, r *http.Request) {
	logger := makeRequestLogger(r)
	if !allowMethod(w, r, http.MethodGet, &logger) {
		return
	}
	writeJSON(w, http.StatusOK, describe(req.Service.Registry()))
}

func describe(registry *model.Registry) []ModelInfo {
	names := registry.Names()
	infos := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		entry, err := registry.Get(name)
		if err != nil {
			continue
		}
		info := ModelInfo{
			Name:             name,
			Labels:           entry.Config.Labels,
			CachePredictions: entry.Config.CachePredictions,
		}
		if loaded, err := entry.Store.Current(); err == nil {
			params := loaded.Classifier.Model()
			loadedAt := loaded.LoadedAt
			info.Loaded = true
			info.Version = loaded.Version
			info.Source = loaded.Source
			info.LoadedAt = &loadedAt
			info.Classes = params.NumClasses()
			info.Features = params.FeatureDim()
			info.Kernel = params.Kernel().Kind.String()
		}
		infos = append(infos, info)
	}
	return infos
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, predictor.ErrBadRequest), errors.Is(err, svm.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnknownModel):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, svm.ErrPredictionFailed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string, logger *zerolog.Logger) bool {
	if r.Method == method {
		return true
	}
	logger.Err(nil).Int("status", http.StatusMethodNotAllowed).Msgf("Only '%s' method is allowed here", method)
	w.Header().Set("Allow", method)
	http.Error(w, "", http.StatusMethodNotAllowed)
	return false
}

func writeError(w http.ResponseWriter, status int, err error, logger *zerolog.Logger, msg string) {
	logger.Err(err).Int("status", status).Msg(msg)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
