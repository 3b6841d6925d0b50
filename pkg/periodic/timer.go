// Package periodic implements the single-shot, re-armed timer behind a
// component's lifecycle.timer block: fire after
// period*(1±fuzz), transition the owner Finished->Running, and re-arm
// unless the owner has been shut down.
package periodic

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Fire is invoked on every timer fire. It returns false if the owner was
// already Running (the fire is dropped/coalesced rather than queued).
type Fire func() (fired bool)

// Timer drives one component's periodic run re-execution.
type Timer struct {
	period time.Duration
	fuzz   float64
	fire   Fire

	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// New creates a Timer for a component declaring lifecycle.timer.period =
// period and lifecycle.timer.fuzz = fuzz (a fraction in [0,1]). The timer
// is not armed until Start is called.
func New(period time.Duration, fuzz float64, fire Fire) *Timer {
	return &Timer{period: period, fuzz: fuzz, fire: fire}
}

// Start arms the timer for its first fire.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.armLocked()
}

func (t *Timer) armLocked() {
	t.t = time.AfterFunc(t.nextDelay(), t.onFire)
}

func (t *Timer) nextDelay() time.Duration {
	if t.fuzz <= 0 {
		return t.period
	}
	jitter := 1 + (rand.Float64()*2-1)*t.fuzz
	d := time.Duration(float64(t.period) * jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func (t *Timer) onFire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.fire()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.armLocked()
	}
}

// Shutdown disarms the timer. No further fires occur after Shutdown
// returns; callers disarm timers before their shutdown steps run.
func (t *Timer) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.t != nil {
		t.t.Stop()
	}
}
