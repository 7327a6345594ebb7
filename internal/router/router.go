// Package router fans caller audio out to every ready destination.
package router

import (
	"fmt"
	"log"
	"math"
	"sync"
)

// Destination receives routed audio frames.
type Destination interface {
	Send(frame []byte) error
	IsReady() bool
}

// DestinationFunc adapts a pair of funcs to Destination.
type DestinationFunc struct {
	SendFunc  func([]byte) error
	ReadyFunc func() bool
}

func (d DestinationFunc) Send(b []byte) error { return d.SendFunc(b) }

func (d DestinationFunc) IsReady() bool {
	if d.ReadyFunc == nil {
		return true
	}
	return d.ReadyFunc()
}

// Stats are per-destination counters.
type Stats struct {
	Frames   uint64
	Bytes    uint64
	Errors   uint64
	NotReady uint64
}

type entry struct {
	name  string
	dest  Destination
	stats Stats
}

// A stalled destination fails every frame, so only the first failure and
// every errLogEvery-th one after it are logged.
const errLogEvery = 250

type Router struct {
	mu         sync.Mutex
	dests      []*entry
	running    bool
	onActivity []func([]byte)
}

func New() *Router { return &Router{} }

// AddDestination registers d under name, replacing any previous one.
func (r *Router) AddDestination(name string, d Destination) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.dests {
		if e.name == name {
			e.dest = d
			e.stats = Stats{}
			return
		}
	}
	r.dests = append(r.dests, &entry{name: name, dest: d})
}

func (r *Router) RemoveDestination(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.dests {
		if e.name == name {
			r.dests = append(r.dests[:i], r.dests[i+1:]...)
			return
		}
	}
}

// OnActivity registers fn to receive every frame routed while running.
func (r *Router) OnActivity(fn func(frame []byte)) {
	r.mu.Lock()
	r.onActivity = append(r.onActivity, fn)
	r.mu.Unlock()
}

func (r *Router) Start() {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
}

func (r *Router) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// RouteAudio delivers frame to every ready destination. A failing
// destination never affects the others.
func (r *Router) RouteAudio(frame []byte) {
	if len(frame) == 0 {
		return
	}
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	dests := append([]*entry(nil), r.dests...)
	obs := append([]func([]byte){}, r.onActivity...)
	r.mu.Unlock()

	for _, e := range dests {
		if !e.dest.IsReady() {
			r.count(e, func(s *Stats) { s.NotReady++ })
			metricNotReady.WithLabelValues(e.name).Inc()
			continue
		}
		if err := safeSend(e.dest, frame); err != nil {
			st := r.count(e, func(s *Stats) { s.Errors++ })
			metricSendErrors.WithLabelValues(e.name).Inc()
			if st.Errors == 1 || st.Errors%errLogEvery == 0 {
				log.Printf("[router] send to %s failed (%d errors): %v", e.name, st.Errors, err)
			}
			continue
		}
		r.count(e, func(s *Stats) {
			s.Frames++
			s.Bytes += uint64(len(frame))
		})
		metricFrames.WithLabelValues(e.name).Inc()
	}

	for _, fn := range obs {
		fn(frame)
	}
}

// Stats returns a snapshot of counters keyed by destination name.
func (r *Router) Stats() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.dests))
	for _, e := range r.dests {
		out[e.name] = e.stats
	}
	return out
}

func (r *Router) count(e *entry, fn func(*Stats)) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&e.stats)
	return e.stats
}

func safeSend(d Destination, frame []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("destination panic: %v", p)
		}
	}()
	return d.Send(frame)
}

// RMS computes the root mean square of a PCM16LE frame.
func RMS(b []byte) float64 {
	if len(b) < 2 {
		return 0
	}
	var sum float64
	n := len(b) / 2
	for i := 0; i < n; i++ {
		sample := int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}
