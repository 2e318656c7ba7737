package core

// Parameter limits enforced by ValidateParameters.
const (
	MinAltitudeKm   = 150.0
	MaxAltitudeKm   = 35786.0
	MinInclination  = 0.0
	MaxInclination  = 180.0
	MaxEccentricity = 1.0
)

// Validation messages, in the order they are reported.
const (
	MsgAltitudeTooLow    = "Altitude must be above 150km (atmospheric drag)"
	MsgAltitudeTooHigh   = "Altitude above 35,786km not supported in this simulation"
	MsgInclinationRange  = "Inclination must be between 0° and 180°"
	MsgEccentricityRange = "Eccentricity must be between 0 and 1 (elliptical orbit)"
)

// ValidationResult is the verdict of ValidateParameters. Warnings is
// reserved and currently always empty.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidateParameters checks orbital parameters against the simulation
// limits. Every rule is evaluated; all violations are reported.
func ValidateParameters(altitude, inclination, eccentricity float64) ValidationResult {
	errs := make([]string, 0, 4)

	if altitude < MinAltitudeKm {
		errs = append(errs, MsgAltitudeTooLow)
	}
	if altitude > MaxAltitudeKm {
		errs = append(errs, MsgAltitudeTooHigh)
	}
	if inclination < MinInclination || inclination > MaxInclination {
		errs = append(errs, MsgInclinationRange)
	}
	if eccentricity < 0 || eccentricity >= MaxEccentricity {
		errs = append(errs, MsgEccentricityRange)
	}

	return ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: []string{},
	}
}

// Validate runs ValidateParameters on the elements.
func (el OrbitalElements) Validate() ValidationResult {
	return ValidateParameters(el.Altitude, el.Inclination, el.Eccentricity)
}
