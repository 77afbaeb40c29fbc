package gauge

// Wave is a fixed-capacity ring buffer of samples in 0..1.
type Wave struct {
	buf   []float64
	start int
	n     int
}

// NewWave creates a buffer holding up to capacity samples.
func NewWave(capacity int) *Wave {
	if capacity < 1 {
		capacity = DefaultWaveSamples
	}
	return &Wave{buf: make([]float64, capacity)}
}

// Push appends a sample, evicting the oldest when full.
func (w *Wave) Push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

// Samples returns the buffered samples, oldest first.
func (w *Wave) Samples() []float64 {
	out := make([]float64, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Last returns the newest n samples (fewer if not yet buffered).
func (w *Wave) Last(n int) []float64 {
	all := w.Samples()
	if n >= len(all) || n < 0 {
		return all
	}
	return all[len(all)-n:]
}

// Len returns the number of buffered samples.
func (w *Wave) Len() int { return w.n }

// Cap returns the buffer capacity.
func (w *Wave) Cap() int { return len(w.buf) }

// Reset empties the buffer.
func (w *Wave) Reset() {
	w.start = 0
	w.n = 0
}
