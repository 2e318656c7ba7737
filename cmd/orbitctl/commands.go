package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/orbit-visualizer/core"
)

var errInvalidParameters = errors.New("orbital parameters are invalid")

type globalFlags struct {
	earthRadiusUnits float64
	pretty           bool
}

type orbitFlags struct {
	altitude     float64
	inclination  float64
	eccentricity float64
	period       float64
}

func (f *orbitFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.altitude, "altitude", 400, "Altitude above the surface in km")
	cmd.Flags().Float64Var(&f.inclination, "inclination", 0, "Inclination in degrees")
	cmd.Flags().Float64Var(&f.eccentricity, "eccentricity", 0, "Eccentricity (validated, not used by the position math)")
	cmd.Flags().Float64Var(&f.period, "period", 0, "Orbital period in minutes; derived from --altitude when 0")
}

func (f *orbitFlags) elements() core.OrbitalElements {
	period := f.period
	if period == 0 {
		period = core.PeriodFromAltitude(f.altitude)
	}
	return core.OrbitalElements{
		Altitude:     f.altitude,
		Inclination:  f.inclination,
		Eccentricity: f.eccentricity,
		Period:       period,
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "orbitctl",
		Short:         "Orbit kinematics from the command line",
		Long:          `Compute periods, validate parameters, and sample positions of simplified circular orbits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		if !(g.earthRadiusUnits > 0) || math.IsInf(g.earthRadiusUnits, 0) {
			return fmt.Errorf("--earth-radius-units must be a positive finite number, got %v", g.earthRadiusUnits)
		}
		return nil
	}
	root.PersistentFlags().Float64Var(&g.earthRadiusUnits, "earth-radius-units", core.DefaultEarthRadiusUnits, "Radius of the rendered Earth in scene units")
	root.PersistentFlags().BoolVar(&g.pretty, "pretty", false, "Indent JSON output")

	root.AddCommand(
		newPeriodCmd(g),
		newValidateCmd(g),
		newPositionCmd(g),
		newPathCmd(g),
	)
	return root
}

func newPeriodCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "period ALTITUDE_KM",
		Short: "Circular orbital period in minutes for an altitude",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			altitude, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("altitude %q: %w", args[0], err)
			}
			if altitude < 0 {
				return fmt.Errorf("altitude must not be negative")
			}
			return writeJSON(cmd, g, map[string]float64{
				"altitude":       altitude,
				"period_minutes": core.PeriodFromAltitude(altitude),
			})
		},
	}
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	f := &orbitFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check orbital parameters against the simulation limits",
		Long: `Prints the validation verdict. Exits non-zero when any rule fails.

Example:
  orbitctl validate --altitude 100 --inclination 200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := core.ValidateParameters(f.altitude, f.inclination, f.eccentricity)
			if err := writeJSON(cmd, g, res); err != nil {
				return err
			}
			if !res.Valid {
				return errInvalidParameters
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

type positionOutput struct {
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Period         float64        `json:"period"`
	Position       core.Vec3      `json:"position"`
	Velocity       core.Vec3      `json:"velocity"`
	Ground         *core.GeoPoint `json:"ground,omitempty"`
}

func newPositionCmd(g *globalFlags) *cobra.Command {
	f := &orbitFlags{}
	var (
		elapsed float64
		epoch   string
	)
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Scene position and velocity at an elapsed time",
		Long: `Evaluates the position elapsed seconds after the satellite crossed the +x axis.
With --epoch the sub-satellite point is included as well.

Example:
  orbitctl position --altitude 550 --inclination 53 --t 600 --epoch 2024-06-01T12:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			el := f.elements()
			scene := core.Scene{EarthRadiusUnits: g.earthRadiusUnits}
			pos, err := scene.Position(el, elapsed)
			if err != nil {
				return err
			}
			vel, err := scene.Velocity(el, elapsed)
			if err != nil {
				return err
			}
			out := positionOutput{ElapsedSeconds: elapsed, Period: el.Period, Position: pos, Velocity: vel}
			if epoch != "" {
				at, err := time.Parse(time.RFC3339Nano, epoch)
				if err != nil {
					return fmt.Errorf("epoch: %w", err)
				}
				gp, err := core.GroundPoint(el, elapsed, at)
				if err != nil {
					return err
				}
				out.Ground = &gp
			}
			return writeJSON(cmd, g, out)
		},
	}
	f.register(cmd)
	cmd.Flags().Float64Var(&elapsed, "t", 0, "Elapsed seconds")
	cmd.Flags().StringVar(&epoch, "epoch", "", "RFC3339 time of the +x crossing, enables the ground point")
	return cmd
}

func newPathCmd(g *globalFlags) *cobra.Command {
	f := &orbitFlags{}
	var points int
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Sample one full orbit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scene := core.Scene{EarthRadiusUnits: g.earthRadiusUnits}
			path, err := scene.Path(f.elements(), points)
			if err != nil {
				return err
			}
			return writeJSON(cmd, g, map[string]any{"points": path})
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&points, "points", 100, "Number of samples over one period")
	return cmd
}

func writeJSON(cmd *cobra.Command, g *globalFlags, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if g.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
