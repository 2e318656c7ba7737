package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for reading simulation time. Components that
// only need the current time depend on this rather than the controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// TimeController drives simulation time and notifies registered listeners.
// Every wall-clock Tick advances simulation time by Tick scaled by Speed.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration

	speed       float64
	currentTime time.Time

	listeners []func(time.Time)
}

// NewTimeController constructs a controller. A non-positive speed is
// treated as real time.
func NewTimeController(start time.Time, tick time.Duration, speed float64) *TimeController {
	if speed <= 0 {
		speed = 1
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		speed:       speed,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns simulation time passed since StartTime.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.StartTime)
}

// SetTime moves simulation time to t without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// Speed returns the simulation-to-wall-clock ratio.
func (tc *TimeController) Speed() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.speed
}

// SetSpeed changes the ratio used from the next tick on. Non-positive
// values are ignored.
func (tc *TimeController) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.speed = speed
}

// AddListener registers a callback invoked on every tick with the new
// simulation time.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start advances simulation time in a separate goroutine until ctx is
// cancelled. It returns a channel that is closed when the loop exits.
func (tc *TimeController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			tc.mu.Lock()
			step := time.Duration(float64(tc.Tick) * tc.speed)
			tc.currentTime = tc.currentTime.Add(step)
			simTime := tc.currentTime
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
