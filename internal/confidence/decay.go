// Package confidence aggregates field-level confidence into category, phase
// and pipeline scores.
package confidence

import (
	"math"
	"time"
)

// DecayConfig holds staleness decay parameters.
type DecayConfig struct {
	Grace    time.Duration `yaml:"grace" mapstructure:"grace"`
	HalfLife time.Duration `yaml:"half_life" mapstructure:"half_life"`
	Floor    float64       `yaml:"floor" mapstructure:"floor" validate:"gte=0,lte=1"`
}

// DefaultDecay returns a 24h grace period, a 30 day half-life and a 0.5 floor.
func DefaultDecay() DecayConfig {
	return DecayConfig{
		Grace:    24 * time.Hour,
		HalfLife: 30 * 24 * time.Hour,
		Floor:    0.5,
	}
}

// StalenessFactor returns the multiplier applied to a phase score whose
// oldest input is maxStaleness old.
// Formula: 1 within grace, else max(floor, 2^(-(age-grace)/halfLife)).
func StalenessFactor(maxStaleness time.Duration, d DecayConfig) float64 {
	if maxStaleness <= d.Grace {
		return 1
	}
	halfLife := d.HalfLife
	if halfLife <= 0 {
		halfLife = DefaultDecay().HalfLife
	}
	over := float64(maxStaleness-d.Grace) / float64(halfLife)
	decayed := math.Pow(2, -over)
	if decayed < d.Floor {
		return d.Floor
	}
	return decayed
}
