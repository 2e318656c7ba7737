package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotTracked is returned when an operation targets a satellite the
// motion model is not tracking.
var ErrNotTracked = errors.New("satellite is not tracked")

// PositionSample is one evaluation of a tracked satellite's state.
type PositionSample struct {
	SatelliteID    string
	Time           time.Time
	ElapsedSeconds float64
	Position       Vec3
	Velocity       Vec3
	Ground         GeoPoint
}

// PositionRecorder persists samples produced by UpdatePositions.
type PositionRecorder interface {
	RecordPositions(ctx context.Context, samples []PositionSample) error
}

type trackedSatellite struct {
	elements OrbitalElements
	since    time.Time
}

// MotionModel evaluates the circular-orbit kinematics for a set of tracked
// satellites. It owns no clock: callers supply the simulation time, usually
// from a timectrl.TimeController listener.
type MotionModel struct {
	mu       sync.RWMutex
	scene    Scene
	tracked  map[string]*trackedSatellite
	recorder PositionRecorder
}

// MotionModelOption customises MotionModel construction.
type MotionModelOption func(*MotionModel)

// WithScene sets the scene used to scale positions and velocities.
func WithScene(s Scene) MotionModelOption {
	return func(m *MotionModel) {
		m.scene = s
	}
}

// WithPositionRecorder attaches a recorder that receives every batch of
// samples computed by UpdatePositions.
func WithPositionRecorder(r PositionRecorder) MotionModelOption {
	return func(m *MotionModel) {
		m.recorder = r
	}
}

// NewMotionModel constructs a motion model with no tracked satellites.
func NewMotionModel(opts ...MotionModelOption) *MotionModel {
	m := &MotionModel{
		scene:   DefaultScene,
		tracked: make(map[string]*trackedSatellite),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Track starts tracking id with elapsed time measured from since. If id is
// already tracked its elements are replaced and the original start time is
// kept. It reports whether tracking was newly started.
func (m *MotionModel) Track(id string, el OrbitalElements, since time.Time) (bool, error) {
	if _, err := periodSeconds(el.Period); err != nil {
		return false, fmt.Errorf("track %q: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tracked[id]; ok {
		t.elements = el
		return false, nil
	}
	m.tracked[id] = &trackedSatellite{elements: el, since: since}
	return true, nil
}

// UpdateElements replaces the elements of a tracked satellite.
func (m *MotionModel) UpdateElements(id string, el OrbitalElements) error {
	if _, err := periodSeconds(el.Period); err != nil {
		return fmt.Errorf("update %q: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracked[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotTracked, id)
	}
	t.elements = el
	return nil
}

// Untrack stops tracking id and reports whether it was tracked.
func (m *MotionModel) Untrack(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracked[id]
	delete(m.tracked, id)
	return ok
}

// IsTracked reports whether id is tracked.
func (m *MotionModel) IsTracked(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tracked[id]
	return ok
}

// Tracked returns the sorted IDs of all tracked satellites.
func (m *MotionModel) Tracked() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.tracked))
	for id := range m.tracked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reset drops every tracked satellite.
func (m *MotionModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = make(map[string]*trackedSatellite)
}

// UpdatePositions evaluates every tracked satellite at simTime, hands the
// samples to the recorder (if any) and returns them ordered by satellite ID.
func (m *MotionModel) UpdatePositions(ctx context.Context, simTime time.Time) ([]PositionSample, error) {
	m.mu.RLock()
	scene := m.scene
	snapshot := make(map[string]trackedSatellite, len(m.tracked))
	for id, t := range m.tracked {
		snapshot[id] = *t
	}
	recorder := m.recorder
	m.mu.RUnlock()

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	samples := make([]PositionSample, 0, len(ids))
	for _, id := range ids {
		t := snapshot[id]
		elapsed := simTime.Sub(t.since).Seconds()

		pos, err := scene.Position(t.elements, elapsed)
		if err != nil {
			return nil, fmt.Errorf("position of %q: %w", id, err)
		}
		vel, err := scene.Velocity(t.elements, elapsed)
		if err != nil {
			return nil, fmt.Errorf("velocity of %q: %w", id, err)
		}
		ground, err := GroundPoint(t.elements, elapsed, t.since)
		if err != nil {
			return nil, fmt.Errorf("ground point of %q: %w", id, err)
		}

		samples = append(samples, PositionSample{
			SatelliteID:    id,
			Time:           simTime,
			ElapsedSeconds: elapsed,
			Position:       pos,
			Velocity:       vel,
			Ground:         ground,
		})
	}

	if recorder != nil && len(samples) > 0 {
		if err := recorder.RecordPositions(ctx, samples); err != nil {
			return samples, fmt.Errorf("record positions: %w", err)
		}
	}
	return samples, nil
}
