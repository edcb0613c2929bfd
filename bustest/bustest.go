// Package bustest provides an in-memory ad569x.Bus that records every write,
// for use in tests and dry runs where no hardware is attached.
package bustest

import (
	"sync"

	"github.com/ardnew/ad569x"
)

// Write is one recorded bus write.
type Write struct {
	Addr uint8
	Data []byte
}

// Recorder is an ad569x.Bus that stores a copy of each write. If FailAt is
// positive, the FailAt'th write (1-based, counted since the last Reset) is
// recorded and then returns Err.
type Recorder struct {
	FailAt int
	Err    error

	mu     sync.Mutex
	count  int
	writes []Write
}

// Write implements ad569x.Bus.
func (r *Recorder) Write(addr uint8, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]byte, len(buf))
	copy(data, buf)
	r.writes = append(r.writes, Write{Addr: addr, Data: data})

	r.count++
	if r.FailAt > 0 && r.count == r.FailAt {
		return r.Err
	}
	return nil
}

// Writes returns a copy of all recorded writes in order.
func (r *Recorder) Writes() []Write {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := make([]Write, len(r.writes))
	copy(w, r.writes)
	return w
}

// Frames returns the data of every recorded write as a frame. Writes that
// are not exactly ad569x.FrameSz bytes long are returned as zero frames.
func (r *Recorder) Frames() []ad569x.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := make([]ad569x.Frame, 0, len(r.writes))
	for _, w := range r.writes {
		fr, _ := ad569x.DecodeFrame(w.Data)
		f = append(f, fr)
	}
	return f
}

// Reset discards all recorded writes and restarts the FailAt count.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count = 0
	r.writes = nil
}
