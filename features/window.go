package features

import "sync"

// Window is a fixed-size ring buffer of sensor samples. Producers append
// while the detector takes snapshots, so access is guarded by a mutex.
type Window struct {
	mu    sync.Mutex
	data  []float64
	next  int
	count int
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{data: make([]float64, size)}
}

func (w *Window) Append(values ...float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, v := range values {
		w.data[w.next] = v
		w.next = (w.next + 1) % len(w.data)
		if w.count < len(w.data) {
			w.count++
		}
	}
}

// Snapshot returns the buffered samples oldest first.
func (w *Window) Snapshot() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, 0, w.count)
	if w.count < len(w.data) {
		return append(out, w.data[:w.count]...)
	}
	out = append(out, w.data[w.next:]...)
	return append(out, w.data[:w.next]...)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Window) Full() bool {
	return w.Len() == w.Size()
}

func (w *Window) Size() int {
	return len(w.data)
}

func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next = 0
	w.count = 0
}
