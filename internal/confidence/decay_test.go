package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const day = 24 * time.Hour

func TestStalenessFactor_WithinGrace(t *testing.T) {
	d := DefaultDecay()
	assert.Equal(t, 1.0, StalenessFactor(0, d))
	assert.Equal(t, 1.0, StalenessFactor(23*time.Hour, d))
	assert.Equal(t, 1.0, StalenessFactor(day, d))
}

func TestStalenessFactor_HalfLife(t *testing.T) {
	d := DecayConfig{Grace: day, HalfLife: 30 * day, Floor: 0.1}

	// One half-life past grace halves the factor.
	assert.InDelta(t, 0.5, StalenessFactor(31*day, d), 1e-9)
	assert.InDelta(t, 0.25, StalenessFactor(61*day, d), 1e-9)
}

func TestStalenessFactor_Floor(t *testing.T) {
	d := DefaultDecay()
	assert.Equal(t, 0.5, StalenessFactor(400*day, d))
}

func TestStalenessFactor_DefaultHalfLife(t *testing.T) {
	d := DecayConfig{Floor: 0}
	assert.InDelta(t, 0.5, StalenessFactor(30*day, d), 1e-9)
}

func TestStalenessFactor_Monotone(t *testing.T) {
	d := DefaultDecay()
	prev := 1.0
	for age := time.Duration(0); age < 120*day; age += 6 * time.Hour {
		got := StalenessFactor(age, d)
		assert.LessOrEqual(t, got, prev)
		prev = got
	}
}
