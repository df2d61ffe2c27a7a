package tools

import "sync"

// SampleWindow keeps the most recent fixed number of samples from a live
// stream. Producers push from the audio callback, consumers snapshot it
// whenever they want a spectrum.
type SampleWindow struct {
	mu      sync.Mutex
	samples []float64
	size    int
}

func NewSampleWindow(size int) *SampleWindow {
	if size <= 0 {
		size = FFTWindowSize
	}
	return &SampleWindow{
		samples: make([]float64, 0, size),
		size:    size,
	}
}

func (w *SampleWindow) Push(samples []float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, samples...)
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
}

func (w *SampleWindow) PushPCM16(p []byte) {
	w.Push(PCM16ToFloat64(p))
}

// Snapshot returns a copy of the buffered samples, oldest first.
func (w *SampleWindow) Snapshot() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]float64, len(w.samples))
	copy(out, w.samples)
	return out
}

func (w *SampleWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = w.samples[:0]
}
