package kb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/orbit-visualizer/model"
)

// KnowledgeBase is an in-memory, thread-safe Store.
type KnowledgeBase struct {
	mu sync.RWMutex

	satellites map[string]*model.Satellite
	// order keeps satellite IDs in insertion order.
	order []string

	configurations map[string]*model.Configuration
	positions      map[string][]model.SatellitePosition

	preferences *model.Preferences
}

var _ Store = (*KnowledgeBase)(nil)

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		satellites:     make(map[string]*model.Satellite),
		configurations: make(map[string]*model.Configuration),
		positions:      make(map[string][]model.SatellitePosition),
	}
}

func (kb *KnowledgeBase) CountSatellites(ctx context.Context) (int, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.satellites), nil
}

func (kb *KnowledgeBase) ListSatellites(ctx context.Context, limit int) ([]model.Satellite, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	n := len(kb.order)
	if limit > 0 && limit < n {
		n = limit
	}
	res := make([]model.Satellite, 0, n)
	for _, id := range kb.order[:n] {
		res = append(res, cloneSatellite(*kb.satellites[id]))
	}
	return res, nil
}

func (kb *KnowledgeBase) GetSatellite(ctx context.Context, id string) (model.Satellite, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	s, ok := kb.satellites[id]
	if !ok {
		return model.Satellite{}, fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	return cloneSatellite(*s), nil
}

func (kb *KnowledgeBase) InsertSatellite(ctx context.Context, s model.Satellite) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.satellites[s.ID]; exists {
		return fmt.Errorf("%w: %q", ErrSatelliteExists, s.ID)
	}
	cp := cloneSatellite(s)
	kb.satellites[s.ID] = &cp
	kb.order = append(kb.order, s.ID)
	return nil
}

func (kb *KnowledgeBase) ReplaceSatellite(ctx context.Context, s model.Satellite) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, ok := kb.satellites[s.ID]; !ok {
		return fmt.Errorf("%w: %q", ErrSatelliteNotFound, s.ID)
	}
	cp := cloneSatellite(s)
	kb.satellites[s.ID] = &cp
	return nil
}

func (kb *KnowledgeBase) DeleteSatellite(ctx context.Context, id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, ok := kb.satellites[id]; !ok {
		return fmt.Errorf("%w: %q", ErrSatelliteNotFound, id)
	}
	delete(kb.satellites, id)
	for i, existing := range kb.order {
		if existing == id {
			kb.order = append(kb.order[:i], kb.order[i+1:]...)
			break
		}
	}
	return nil
}

func (kb *KnowledgeBase) CountConfigurations(ctx context.Context) (int, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.configurations), nil
}

func (kb *KnowledgeBase) ListConfigurations(ctx context.Context, limit int) ([]model.Configuration, error) {
	kb.mu.RLock()
	res := make([]model.Configuration, 0, len(kb.configurations))
	for _, c := range kb.configurations {
		res = append(res, cloneConfiguration(*c))
	}
	kb.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].SavedAt.Equal(res[j].SavedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].SavedAt.After(res[j].SavedAt)
	})
	if limit > 0 && limit < len(res) {
		res = res[:limit]
	}
	return res, nil
}

func (kb *KnowledgeBase) InsertConfiguration(ctx context.Context, c model.Configuration) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.configurations[c.ID]; exists {
		return fmt.Errorf("%w: %q", ErrConfigurationExists, c.ID)
	}
	cp := cloneConfiguration(c)
	kb.configurations[c.ID] = &cp
	return nil
}

func (kb *KnowledgeBase) DeleteConfiguration(ctx context.Context, id string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, ok := kb.configurations[id]; !ok {
		return fmt.Errorf("%w: %q", ErrConfigurationNotFound, id)
	}
	delete(kb.configurations, id)
	return nil
}

func (kb *KnowledgeBase) AddPositions(ctx context.Context, positions []model.SatellitePosition) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for _, p := range positions {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Velocity != nil {
			v := *p.Velocity
			p.Velocity = &v
		}
		kb.positions[p.SatelliteID] = append(kb.positions[p.SatelliteID], p)
	}
	return nil
}

func (kb *KnowledgeBase) ListPositions(ctx context.Context, q model.PositionQuery) ([]model.SatellitePosition, error) {
	kb.mu.RLock()
	stored := kb.positions[q.SatelliteID]
	res := make([]model.SatellitePosition, 0, len(stored))
	for _, p := range stored {
		if q.Matches(p) {
			res = append(res, p)
		}
	}
	kb.mu.RUnlock()

	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Timestamp.After(res[j].Timestamp)
	})
	if q.Limit > 0 && q.Limit < len(res) {
		res = res[:q.Limit]
	}
	return res, nil
}

func (kb *KnowledgeBase) DeletePositions(ctx context.Context, satelliteID string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	delete(kb.positions, satelliteID)
	return nil
}

func (kb *KnowledgeBase) GetPreferences(ctx context.Context) (model.Preferences, bool, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if kb.preferences == nil {
		return model.Preferences{}, false, nil
	}
	return *kb.preferences, true, nil
}

func (kb *KnowledgeBase) PutPreferences(ctx context.Context, p model.Preferences) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.preferences = &p
	return nil
}

// Ping always succeeds for the in-memory store.
func (kb *KnowledgeBase) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (kb *KnowledgeBase) Close() error { return nil }

// cloneSatellite copies the CustomParams map so callers cannot mutate
// stored state through it.
func cloneSatellite(s model.Satellite) model.Satellite {
	s.CustomParams = cloneParams(s.CustomParams)
	return s
}

func cloneConfiguration(c model.Configuration) model.Configuration {
	c.SatelliteParams = cloneParams(c.SatelliteParams)
	return c
}

func cloneParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
