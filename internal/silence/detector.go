// Package silence decides when the user has finished speaking.
//
// A Detector is fed audio activity and transcript events. When nothing has
// arrived for Threshold it fires exactly one SilenceEvent and considers the
// user silent until activity resumes.
package silence

import (
	"sync"
	"time"
)

const DefaultThreshold = 4000 * time.Millisecond

type SilenceEvent struct {
	Duration      time.Duration
	LastSpeechEnd time.Time
}

type ActivityEvent struct {
	Timestamp time.Time
}

type Detector struct {
	threshold time.Duration
	now       func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
	speaking     bool
	timer        *time.Timer
	gen          uint64
	stopped      bool

	obsMu      sync.RWMutex
	onSilence  []func(SilenceEvent)
	onActivity []func(ActivityEvent)
}

func New(threshold time.Duration) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold, now: time.Now, lastActivity: time.Now()}
}

func (d *Detector) Threshold() time.Duration { return d.threshold }

// OnSilence registers fn to be called on every silence event.
func (d *Detector) OnSilence(fn func(SilenceEvent)) {
	d.obsMu.Lock()
	d.onSilence = append(d.onSilence, fn)
	d.obsMu.Unlock()
}

// OnActivity registers fn to be called on each silent->speaking edge.
func (d *Detector) OnActivity(fn func(ActivityEvent)) {
	d.obsMu.Lock()
	d.onActivity = append(d.onActivity, fn)
	d.obsMu.Unlock()
}

func (d *Detector) OnAudioActivity() { d.activity(true) }

func (d *Detector) OnPartialTranscript() { d.activity(true) }

// OnFinalTranscript resets the timer without touching the speaking flag.
func (d *Detector) OnFinalTranscript() { d.activity(false) }

func (d *Detector) IsCurrentlySpeaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

func (d *Detector) TimeSinceLastActivity() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now().Sub(d.lastActivity)
}

// ForceSilence fires a silence event immediately, cancelling any pending timer.
func (d *Detector) ForceSilence() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.cancelLocked()
	ev := d.silenceLocked()
	d.mu.Unlock()
	d.emitSilence(ev)
}

// Stop cancels the pending timer. No events are emitted afterwards.
func (d *Detector) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.cancelLocked()
	d.speaking = false
	d.mu.Unlock()
}

func (d *Detector) activity(markSpeaking bool) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	now := d.now()
	d.lastActivity = now
	edge := markSpeaking && !d.speaking
	if markSpeaking {
		d.speaking = true
	}
	d.cancelLocked()
	gen := d.gen
	d.timer = time.AfterFunc(d.threshold, func() { d.fire(gen) })
	d.mu.Unlock()

	if edge {
		d.emitActivity(ActivityEvent{Timestamp: now})
	}
}

func (d *Detector) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	ev := d.silenceLocked()
	d.mu.Unlock()
	d.emitSilence(ev)
}

func (d *Detector) silenceLocked() SilenceEvent {
	d.speaking = false
	d.gen++
	return SilenceEvent{Duration: d.now().Sub(d.lastActivity), LastSpeechEnd: d.lastActivity}
}

func (d *Detector) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Detector) emitSilence(ev SilenceEvent) {
	d.obsMu.RLock()
	fns := append([]func(SilenceEvent){}, d.onSilence...)
	d.obsMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (d *Detector) emitActivity(ev ActivityEvent) {
	d.obsMu.RLock()
	fns := append([]func(ActivityEvent){}, d.onActivity...)
	d.obsMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
