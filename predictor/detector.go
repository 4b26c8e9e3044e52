package predictor

import (
	"github.com/tu-nv/action-classifier/features"
	"context"
	"fmt"
	"sync"
	"time"
)

// DetectorConfig controls the per-session action detectors.
type DetectorConfig struct {
	// WindowSize is the number of samples per channel, 100 for 2s at 20ms.
	WindowSize int `envconfig:"ACL_DETECTION_WINDOW" default:"100"`
	// StaticLimit is how many consecutive STANDING or SITTING predictions
	// a session tolerates before it goes idle.
	StaticLimit int           `envconfig:"ACL_DETECTION_STATIC_LIMIT" default:"5"`
	SessionTTL  time.Duration `envconfig:"ACL_DETECTION_SESSION_TTL" default:"10m"`
}

// SensorBatch carries 3-axis sensor events of one session. Motion reports a
// significant motion event, which wakes an idle session.
type SensorBatch struct {
	Session string       `json:"session"`
	Model   string       `json:"model"`
	Linear  [][3]float64 `json:"linear,omitempty"`
	Gyro    [][3]float64 `json:"gyro,omitempty"`
	Gravity [][3]float64 `json:"gravity,omitempty"`
	Motion  bool         `json:"motion,omitempty"`
}

type Detection struct {
	Session      string  `json:"session"`
	Idle         bool    `json:"idle"`
	Ready        bool    `json:"ready"`
	StaticStreak int     `json:"static_streak"`
	Result       *Result `json:"result,omitempty"`
}

type predictFunc func(ctx context.Context, req Request) (Result, error)

// Detector turns a stream of sensor events into action predictions, one per
// observed batch once every window is full. Samples are dropped while idle.
type Detector struct {
	mu           sync.Mutex
	model        string
	recorder     *features.Recorder
	staticLimit  int
	prevClass    int
	staticStreak int
	idle         bool
	lastSeen     time.Time
}

func NewDetector(modelName string, cfg DetectorConfig) *Detector {
	return &Detector{
		model:       modelName,
		recorder:    features.NewRecorder(cfg.WindowSize),
		staticLimit: cfg.StaticLimit,
		prevClass:   -1,
	}
}

func (d *Detector) Observe(ctx context.Context, predict predictFunc, batch SensorBatch) (Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if batch.Motion && d.idle {
		d.resume()
	}
	detection := Detection{Session: batch.Session}
	if d.idle {
		detection.Idle = true
		return detection, nil
	}

	for _, e := range batch.Linear {
		d.recorder.AppendLinear(e[0], e[1], e[2])
	}
	for _, e := range batch.Gyro {
		d.recorder.AppendGyro(e[0], e[1], e[2])
	}
	for _, e := range batch.Gravity {
		d.recorder.AppendGravity(e[0], e[1], e[2])
	}
	if !d.recorder.Ready() {
		return detection, nil
	}
	detection.Ready = true

	vector, err := d.recorder.Features()
	if err != nil {
		return detection, err
	}
	result, err := predict(ctx, Request{Model: d.model, Features: vector})
	if err != nil {
		return detection, err
	}
	d.track(result.Class)
	detection.Result = &result
	detection.Idle = d.idle
	detection.StaticStreak = d.staticStreak
	return detection, nil
}

// track counts consecutive static predictions of the same action and puts
// the detector to sleep once the count passes the limit.
func (d *Detector) track(class int) {
	if class != d.prevClass {
		d.staticStreak = 0
		d.prevClass = class
	}
	if !features.ActionType(class).IsStatic() {
		return
	}
	d.staticStreak++
	if d.staticStreak > d.staticLimit {
		d.idle = true
		d.staticStreak = 0
	}
}

// resume wakes the detector. The buffers hold samples from before the idle
// period, so they are dropped.
func (d *Detector) resume() {
	d.idle = false
	d.staticStreak = 0
	d.prevClass = -1
	d.recorder.Reset()
}

// Sessions keeps one Detector per client session and forgets sessions that
// have not sent samples for SessionTTL.
type Sessions struct {
	mu        sync.Mutex
	service   *Service
	cfg       DetectorConfig
	detectors map[string]*Detector
	now       func() time.Time
}

func NewSessions(service *Service, cfg DetectorConfig) *Sessions {
	return &Sessions{
		service:   service,
		cfg:       cfg,
		detectors: map[string]*Detector{},
		now:       time.Now,
	}
}

func (s *Sessions) Observe(ctx context.Context, batch SensorBatch) (Detection, error) {
	if batch.Session == "" {
		return Detection{}, fmt.Errorf("%w: no session given", ErrBadRequest)
	}
	detector, err := s.detector(batch)
	if err != nil {
		return Detection{}, err
	}
	return detector.Observe(ctx, s.service.Predict, batch)
}

func (s *Sessions) detector(batch SensorBatch) (*Detector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)
	detector, ok := s.detectors[batch.Session]
	if ok {
		if batch.Model != "" && batch.Model != detector.model {
			return nil, fmt.Errorf("%w: session %s uses model %s", ErrBadRequest, batch.Session, detector.model)
		}
	} else {
		if _, err := s.service.registry.Get(batch.Model); err != nil {
			return nil, err
		}
		detector = NewDetector(batch.Model, s.cfg)
		s.detectors[batch.Session] = detector
		s.service.log.Info().Str("session", batch.Session).Str("model", batch.Model).Msg("Started detection session")
	}
	detector.lastSeen = now
	return detector, nil
}

func (s *Sessions) prune(now time.Time) {
	if s.cfg.SessionTTL <= 0 {
		return
	}
	for id, detector := range s.detectors {
		if now.Sub(detector.lastSeen) > s.cfg.SessionTTL {
			delete(s.detectors, id)
		}
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.detectors)
}
