package kb

import (
	"context"
	"errors"

	"github.com/signalsfoundry/orbit-visualizer/model"
)

var (
	// ErrSatelliteExists indicates a satellite with the same ID is stored.
	ErrSatelliteExists = errors.New("satellite already exists")
	// ErrSatelliteNotFound indicates a requested satellite was not found.
	ErrSatelliteNotFound = errors.New("satellite not found")
	// ErrConfigurationExists indicates a configuration with the same ID is stored.
	ErrConfigurationExists = errors.New("configuration already exists")
	// ErrConfigurationNotFound indicates a requested configuration was not found.
	ErrConfigurationNotFound = errors.New("configuration not found")
)

// Store persists satellites, configurations, recorded positions and the
// viewer preferences. Implementations must be safe for concurrent use.
type Store interface {
	CountSatellites(ctx context.Context) (int, error)
	// ListSatellites returns satellites in insertion order. limit <= 0
	// returns every satellite.
	ListSatellites(ctx context.Context, limit int) ([]model.Satellite, error)
	GetSatellite(ctx context.Context, id string) (model.Satellite, error)
	InsertSatellite(ctx context.Context, s model.Satellite) error
	// ReplaceSatellite overwrites an existing satellite.
	ReplaceSatellite(ctx context.Context, s model.Satellite) error
	DeleteSatellite(ctx context.Context, id string) error

	CountConfigurations(ctx context.Context) (int, error)
	// ListConfigurations returns configurations newest first.
	ListConfigurations(ctx context.Context, limit int) ([]model.Configuration, error)
	InsertConfiguration(ctx context.Context, c model.Configuration) error
	DeleteConfiguration(ctx context.Context, id string) error

	AddPositions(ctx context.Context, positions []model.SatellitePosition) error
	// ListPositions returns matching positions newest first.
	ListPositions(ctx context.Context, q model.PositionQuery) ([]model.SatellitePosition, error)
	DeletePositions(ctx context.Context, satelliteID string) error

	// GetPreferences returns the stored preferences, or false if none
	// have been saved yet.
	GetPreferences(ctx context.Context) (model.Preferences, bool, error)
	PutPreferences(ctx context.Context, p model.Preferences) error

	Ping(ctx context.Context) error
	Close() error
}
