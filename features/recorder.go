package features

import (
	"errors"
	"fmt"
)

type Channel int

const (
	LinearX Channel = iota
	LinearY
	LinearZ
	GyroX
	GyroY
	GyroZ
	GravityX
	GravityY
	GravityZ

	NumChannels = int(GravityZ) + 1
)

var channelNames = [NumChannels]string{
	"linear_x", "linear_y", "linear_z",
	"gyro_x", "gyro_y", "gyro_z",
	"gravity_x", "gravity_y", "gravity_z",
}

func (c Channel) String() string {
	if c < 0 || int(c) >= NumChannels {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// FeatureDim is the length of the vector produced by Recorder.Features.
const FeatureDim = NumChannels * 3

var ErrWindowNotFull = errors.New("sensor window is not full yet")

// Recorder keeps one sliding window per sensor channel. With the default
// 20ms sampling period a 2 second window holds 100 samples.
type Recorder struct {
	windows [NumChannels]*Window
}

func NewRecorder(windowSize int) *Recorder {
	var r Recorder
	for i := range r.windows {
		r.windows[i] = NewWindow(windowSize)
	}
	return &r
}

// AppendLinear, AppendGyro and AppendGravity take one 3-axis sensor event.
func (r *Recorder) AppendLinear(x, y, z float64) {
	r.appendAxes(LinearX, x, y, z)
}

func (r *Recorder) AppendGyro(x, y, z float64) {
	r.appendAxes(GyroX, x, y, z)
}

func (r *Recorder) AppendGravity(x, y, z float64) {
	r.appendAxes(GravityX, x, y, z)
}

func (r *Recorder) appendAxes(first Channel, x, y, z float64) {
	r.windows[first].Append(x)
	r.windows[first+1].Append(y)
	r.windows[first+2].Append(z)
}

func (r *Recorder) Ready() bool {
	for _, w := range r.windows {
		if !w.Full() {
			return false
		}
	}
	return true
}

// Reset drops all buffered samples.
func (r *Recorder) Reset() {
	for _, w := range r.windows {
		w.Reset()
	}
}

// Features returns mean, std and energy for every channel in channel order.
func (r *Recorder) Features() ([]float64, error) {
	if !r.Ready() {
		return nil, ErrWindowNotFull
	}
	samples := make([][]float64, NumChannels)
	for i, w := range r.windows {
		samples[i] = w.Snapshot()
	}
	return FromSamples(samples)
}

// FromSamples builds the feature vector from raw per-channel samples.
func FromSamples(samples [][]float64) ([]float64, error) {
	if len(samples) != NumChannels {
		return nil, fmt.Errorf("expected %d sensor channels, got %d", NumChannels, len(samples))
	}
	vector := make([]float64, 0, FeatureDim)
	for i, channel := range samples {
		stats, err := Extract(channel)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", Channel(i), err)
		}
		vector = append(vector, stats.Values()...)
	}
	return vector, nil
}
