// Package catalog owns the satellite catalog: stored satellites, saved
// configurations, viewer preferences and live position tracking.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/orbit-visualizer/core"
	"github.com/signalsfoundry/orbit-visualizer/internal/logging"
	"github.com/signalsfoundry/orbit-visualizer/internal/observability"
	"github.com/signalsfoundry/orbit-visualizer/kb"
	"github.com/signalsfoundry/orbit-visualizer/model"
	"github.com/signalsfoundry/orbit-visualizer/timectrl"
)

// ErrInvalidParameters is matched by every *ValidationError.
var ErrInvalidParameters = errors.New("invalid orbital parameters")

// MsgPeriodOverride reports a custom_params period that is not a positive
// number of minutes.
const MsgPeriodOverride = "Period override must be a positive number of minutes"

// ValidationError carries the messages produced by core.ValidateParameters.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidParameters, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidParameters }

// MetricsRecorder receives catalog gauges and validation failures.
type MetricsRecorder interface {
	SetCatalogCounts(satellites, configurations int)
	IncValidationFailures()
}

// TrackerMetrics receives live tracking measurements.
type TrackerMetrics interface {
	ObserveTick(d time.Duration)
	SetTracked(count int)
	AddSamples(n int)
	IncRecorderFailures()
}

// EventType names a catalog change.
type EventType string

const (
	SatelliteCreated EventType = "satellite_created"
	SatelliteUpdated EventType = "satellite_updated"
	SatelliteDeleted EventType = "satellite_deleted"
	TrackingStarted  EventType = "tracking_started"
	TrackingStopped  EventType = "tracking_stopped"
)

// Event describes one change. Satellite is nil for deletions and
// tracking events.
type Event struct {
	Type        EventType        `json:"type"`
	SatelliteID string           `json:"satellite_id"`
	Satellite   *model.Satellite `json:"satellite,omitempty"`
}

// PositionReport is the state of one satellite at an elapsed time.
type PositionReport struct {
	SatelliteID    string        `json:"satellite_id"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	Position       core.Vec3     `json:"position"`
	Velocity       core.Vec3     `json:"velocity"`
	Ground         core.GeoPoint `json:"ground"`
}

// Service implements catalog operations on top of a kb.Store.
type Service struct {
	store   kb.Store
	log     logging.Logger
	metrics MetricsRecorder
	tracker TrackerMetrics
	scene   core.Scene
	clock   timectrl.SimClock
	now     func() time.Time
	newID   func() string

	motion *core.MotionModel

	seedMu sync.Mutex

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// Option customises Service construction.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches a catalog metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTrackerMetrics attaches a tracking metrics recorder.
func WithTrackerMetrics(m TrackerMetrics) Option {
	return func(s *Service) { s.tracker = m }
}

// WithScene sets the scene used for positions, velocities and paths.
func WithScene(scene core.Scene) Option {
	return func(s *Service) { s.scene = scene }
}

// WithClock sets the simulation clock that stamps tracking start times.
func WithClock(c timectrl.SimClock) Option {
	return func(s *Service) { s.clock = c }
}

// WithNow overrides the wall clock used for record timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService builds a catalog backed by store.
func NewService(store kb.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   logging.Noop(),
		scene: core.DefaultScene,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
		subs:  make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.motion = core.NewMotionModel(
		core.WithScene(s.scene),
		core.WithPositionRecorder(storeRecorder{store: store}),
	)
	return s
}

// Scene returns the scene the service computes positions in.
func (s *Service) Scene() core.Scene { return s.scene }

// Ping checks that the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---- Satellites ----

// ListSatellites returns up to limit satellites, seeding the default set
// first when the catalog is empty.
func (s *Service) ListSatellites(ctx context.Context, limit int) ([]model.Satellite, error) {
	if err := s.seedIfEmpty(ctx); err != nil {
		return nil, err
	}
	sats, err := s.store.ListSatellites(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list satellites: %w", err)
	}
	return sats, nil
}

func (s *Service) seedIfEmpty(ctx context.Context) error {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	n, err := s.store.CountSatellites(ctx)
	if err != nil {
		return fmt.Errorf("count satellites: %w", err)
	}
	if n > 0 {
		return nil
	}

	seeded := 0
	for _, sat := range DefaultSatellites(s.now()) {
		if err := s.store.InsertSatellite(ctx, sat); err != nil {
			if errors.Is(err, kb.ErrSatelliteExists) {
				continue
			}
			return fmt.Errorf("seed %q: %w", sat.ID, err)
		}
		seeded++
	}
	s.log.Info(ctx, "seeded default satellites", logging.Int("count", seeded))
	s.refreshCounts(ctx)
	return nil
}

// GetSatellite returns a stored satellite.
func (s *Service) GetSatellite(ctx context.Context, id string) (model.Satellite, error) {
	return s.store.GetSatellite(ctx, id)
}

// Validate checks orbital parameters and counts failures.
func (s *Service) Validate(altitude, inclination, eccentricity float64) core.ValidationResult {
	res := core.ValidateParameters(altitude, inclination, eccentricity)
	if !res.Valid && s.metrics != nil {
		s.metrics.IncValidationFailures()
	}
	return res
}

// validateOrbit checks the stored orbital fields and the elements motion
// actually uses once custom_params overrides are applied.
func (s *Service) validateOrbit(sat model.Satellite) error {
	errs := core.ValidateParameters(sat.Altitude, sat.Inclination, sat.Eccentricity).Errors
	el := sat.Elements()
	for _, msg := range el.Validate().Errors {
		if !slices.Contains(errs, msg) {
			errs = append(errs, msg)
		}
	}
	if !(el.Period > 0) || math.IsInf(el.Period, 0) {
		errs = append(errs, MsgPeriodOverride)
	}
	if len(errs) == 0 {
		return nil
	}
	if s.metrics != nil {
		s.metrics.IncValidationFailures()
	}
	return &ValidationError{Errors: errs}
}

// CreateSatellite validates in, derives the period and stores a new
// satellite under a fresh ID.
func (s *Service) CreateSatellite(ctx context.Context, in model.SatelliteCreate) (model.Satellite, error) {
	ctx, span := observability.StartChildSpan(ctx, "catalog.CreateSatellite", "satellite", "")
	defer span.End()

	sat := model.Satellite{
		Name:         in.Name,
		Type:         in.Type,
		Altitude:     in.Altitude,
		Inclination:  in.Inclination,
		Eccentricity: in.Eccentricity,
		Color:        in.Color,
		Description:  in.Description,
		Active:       in.Active,
		CreatedAt:    s.now(),
		CustomParams: in.CustomParams,
	}
	if sat.Color == "" {
		sat.Color = model.DefaultSatelliteColor
	}
	if sat.CustomParams == nil {
		sat.CustomParams = map[string]any{}
	}
	sat.RecomputePeriod()
	if err := s.validateOrbit(sat); err != nil {
		return model.Satellite{}, err
	}
	sat.ID = s.newID()
	span.SetAttributes(attribute.String("entity_id", sat.ID))

	if err := s.store.InsertSatellite(ctx, sat); err != nil {
		span.RecordError(err)
		return model.Satellite{}, fmt.Errorf("create satellite: %w", err)
	}
	s.log.Info(ctx, "satellite created",
		logging.String("satellite_id", sat.ID),
		logging.String("name", sat.Name),
		logging.Float64("period_minutes", sat.Period),
	)
	s.refreshCounts(ctx)
	s.publish(Event{Type: SatelliteCreated, SatelliteID: sat.ID, Satellite: &sat})
	return sat, nil
}

// UpdateSatellite applies a partial update. Orbital fields are validated
// together with the stored values they are combined with.
func (s *Service) UpdateSatellite(ctx context.Context, id string, upd model.SatelliteUpdate) (model.Satellite, error) {
	ctx, span := observability.StartChildSpan(ctx, "catalog.UpdateSatellite", "satellite", id)
	defer span.End()

	current, err := s.store.GetSatellite(ctx, id)
	if err != nil {
		return model.Satellite{}, err
	}

	updated := upd.Apply(current)
	if upd.TouchesOrbit() {
		if err := s.validateOrbit(updated); err != nil {
			return model.Satellite{}, err
		}
	}

	if err := s.store.ReplaceSatellite(ctx, updated); err != nil {
		span.RecordError(err)
		return model.Satellite{}, fmt.Errorf("update satellite: %w", err)
	}
	if s.motion.IsTracked(id) {
		if err := s.motion.UpdateElements(id, updated.Elements()); err != nil && !errors.Is(err, core.ErrNotTracked) {
			s.log.Warn(ctx, "tracked elements not refreshed", logging.String("satellite_id", id), logging.Err(err))
		}
	}
	s.log.Info(ctx, "satellite updated", logging.String("satellite_id", id))
	s.publish(Event{Type: SatelliteUpdated, SatelliteID: id, Satellite: &updated})
	return updated, nil
}

// DeleteSatellite removes a satellite together with its recorded positions
// and stops tracking it.
func (s *Service) DeleteSatellite(ctx context.Context, id string) error {
	ctx, span := observability.StartChildSpan(ctx, "catalog.DeleteSatellite", "satellite", id)
	defer span.End()

	if err := s.store.DeleteSatellite(ctx, id); err != nil {
		return err
	}
	if s.motion.Untrack(id) {
		s.reportTracked()
	}
	if err := s.store.DeletePositions(ctx, id); err != nil {
		s.log.Warn(ctx, "positions not removed", logging.String("satellite_id", id), logging.Err(err))
	}
	s.log.Info(ctx, "satellite deleted", logging.String("satellite_id", id))
	s.refreshCounts(ctx)
	s.publish(Event{Type: SatelliteDeleted, SatelliteID: id})
	return nil
}

// OrbitPath samples one full revolution of a stored satellite.
func (s *Service) OrbitPath(ctx context.Context, id string, points int) ([]core.Vec3, error) {
	sat, err := s.store.GetSatellite(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.scene.Path(sat.Elements(), points)
}

// PositionAt evaluates a stored satellite elapsedSeconds after its
// creation time, which also anchors the ground point.
func (s *Service) PositionAt(ctx context.Context, id string, elapsedSeconds float64) (PositionReport, error) {
	sat, err := s.store.GetSatellite(ctx, id)
	if err != nil {
		return PositionReport{}, err
	}
	return s.report(sat, elapsedSeconds)
}

func (s *Service) report(sat model.Satellite, elapsed float64) (PositionReport, error) {
	el := sat.Elements()
	pos, err := s.scene.Position(el, elapsed)
	if err != nil {
		return PositionReport{}, err
	}
	vel, err := s.scene.Velocity(el, elapsed)
	if err != nil {
		return PositionReport{}, err
	}
	ground, err := core.GroundPoint(el, elapsed, sat.CreatedAt)
	if err != nil {
		return PositionReport{}, err
	}
	return PositionReport{
		SatelliteID:    sat.ID,
		ElapsedSeconds: elapsed,
		Position:       pos,
		Velocity:       vel,
		Ground:         ground,
	}, nil
}

// ---- Configurations ----

// ListConfigurations returns saved configurations newest first.
func (s *Service) ListConfigurations(ctx context.Context, limit int) ([]model.Configuration, error) {
	cfgs, err := s.store.ListConfigurations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	return cfgs, nil
}

// SaveConfiguration stores a new configuration.
func (s *Service) SaveConfiguration(ctx context.Context, in model.ConfigurationCreate) (model.Configuration, error) {
	c := model.Configuration{
		ID:                  s.newID(),
		Name:                in.Name,
		Description:         in.Description,
		SatelliteParams:     in.SatelliteParams,
		TimeSpeed:           in.TimeSpeed,
		SelectedSatelliteID: in.SelectedSatelliteID,
		SavedAt:             s.now(),
	}
	if c.SatelliteParams == nil {
		c.SatelliteParams = map[string]any{}
	}
	if err := s.store.InsertConfiguration(ctx, c); err != nil {
		return model.Configuration{}, fmt.Errorf("save configuration: %w", err)
	}
	s.log.Info(ctx, "configuration saved", logging.String("configuration_id", c.ID))
	s.refreshCounts(ctx)
	return c, nil
}

// DeleteConfiguration removes a saved configuration.
func (s *Service) DeleteConfiguration(ctx context.Context, id string) error {
	if err := s.store.DeleteConfiguration(ctx, id); err != nil {
		return err
	}
	s.refreshCounts(ctx)
	return nil
}

// ---- Preferences ----

// GetPreferences returns the stored preferences, or unsaved defaults.
func (s *Service) GetPreferences(ctx context.Context) (model.Preferences, error) {
	p, ok, err := s.store.GetPreferences(ctx)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	if !ok {
		p = model.DefaultPreferences()
		p.ID = s.newID()
		p.UpdatedAt = s.now()
	}
	return p, nil
}

// UpdatePreferences merges upd into the current preferences and stores
// the result.
func (s *Service) UpdatePreferences(ctx context.Context, upd model.PreferencesUpdate) (model.Preferences, error) {
	current, err := s.GetPreferences(ctx)
	if err != nil {
		return model.Preferences{}, err
	}
	next := upd.Apply(current)
	next.UpdatedAt = s.now()
	if err := s.store.PutPreferences(ctx, next); err != nil {
		return model.Preferences{}, fmt.Errorf("update preferences: %w", err)
	}
	return next, nil
}

// ---- Tracking ----

// StartTracking begins recording positions of a stored satellite on every
// Tick. Elapsed time is measured from the simulation time at this call.
// It reports whether tracking was newly started.
func (s *Service) StartTracking(ctx context.Context, id string) (bool, error) {
	sat, err := s.store.GetSatellite(ctx, id)
	if err != nil {
		return false, err
	}
	started, err := s.motion.Track(id, sat.Elements(), s.simNow())
	if err != nil {
		return false, err
	}
	if started {
		s.log.Info(ctx, "tracking started", logging.String("satellite_id", id))
		s.reportTracked()
		s.publish(Event{Type: TrackingStarted, SatelliteID: id})
	}
	return started, nil
}

// StopTracking stops recording positions of a satellite.
func (s *Service) StopTracking(ctx context.Context, id string) error {
	if !s.motion.Untrack(id) {
		if _, err := s.store.GetSatellite(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %q", core.ErrNotTracked, id)
	}
	s.log.Info(ctx, "tracking stopped", logging.String("satellite_id", id))
	s.reportTracked()
	s.publish(Event{Type: TrackingStopped, SatelliteID: id})
	return nil
}

// IsTracked reports whether positions of id are being recorded.
func (s *Service) IsTracked(id string) bool {
	return s.motion.IsTracked(id)
}

// Tracked lists the IDs of tracked satellites.
func (s *Service) Tracked() []string {
	return s.motion.Tracked()
}

// Positions returns recorded positions newest first.
func (s *Service) Positions(ctx context.Context, q model.PositionQuery) ([]model.SatellitePosition, error) {
	return s.store.ListPositions(ctx, q)
}

// Tick evaluates every tracked satellite at simTime and records the
// samples. It is meant to be registered as a timectrl listener.
func (s *Service) Tick(ctx context.Context, simTime time.Time) {
	start := time.Now()
	samples, err := s.motion.UpdatePositions(ctx, simTime)
	if s.tracker != nil {
		s.tracker.ObserveTick(time.Since(start))
	}
	if err != nil {
		s.log.Warn(ctx, "position tick failed", logging.Err(err), logging.Int("samples", len(samples)))
		if s.tracker != nil {
			s.tracker.IncRecorderFailures()
		}
		return
	}
	if s.tracker != nil {
		s.tracker.AddSamples(len(samples))
	}
}

func (s *Service) simNow() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return s.now()
}

func (s *Service) reportTracked() {
	if s.tracker != nil {
		s.tracker.SetTracked(len(s.motion.Tracked()))
	}
}

// ---- Events ----

// Subscribe registers fn for catalog events and returns a function that
// removes it. fn runs synchronously on the mutating goroutine and must not
// block.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Service) publish(ev Event) {
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Service) refreshCounts(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	sats, err := s.store.CountSatellites(ctx)
	if err != nil {
		s.log.Warn(ctx, "catalog count failed", logging.Err(err))
		return
	}
	cfgs, err := s.store.CountConfigurations(ctx)
	if err != nil {
		s.log.Warn(ctx, "configuration count failed", logging.Err(err))
		return
	}
	s.metrics.SetCatalogCounts(sats, cfgs)
}

// storeRecorder persists motion samples as SatellitePosition records.
type storeRecorder struct {
	store kb.Store
}

func (r storeRecorder) RecordPositions(ctx context.Context, samples []core.PositionSample) error {
	positions := make([]model.SatellitePosition, 0, len(samples))
	for _, smp := range samples {
		vel := smp.Velocity
		positions = append(positions, model.SatellitePosition{
			SatelliteID:    smp.SatelliteID,
			Timestamp:      smp.Time,
			ElapsedSeconds: smp.ElapsedSeconds,
			Position:       smp.Position,
			Velocity:       &vel,
			Altitude:       smp.Ground.AltitudeKm,
			Latitude:       smp.Ground.LatitudeDeg,
			Longitude:      smp.Ground.LongitudeDeg,
		})
	}
	return r.store.AddPositions(ctx, positions)
}
