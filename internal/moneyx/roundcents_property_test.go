package moneyx

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRoundCents_Idempotent verifies rounding to cents is a projection:
// rounding an already-rounded amount must never move it further.
func TestRoundCents_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("roundCents(roundCents(x)) == roundCents(x)", prop.ForAll(
		func(v float64) bool {
			once := roundCents(v)
			twice := roundCents(once)
			return once == twice
		},
		gen.Float64Range(-1_000_000, 1_000_000),
	))

	properties.TestingRun(t)
}

// TestRoundCents_StaysWithinHalfCent verifies the rounded result never
// differs from the input by more than half a cent, the defining property
// of half-away-from-zero rounding to 2 decimal places.
func TestRoundCents_StaysWithinHalfCent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("|roundCents(x) - x| <= 0.005 + epsilon", prop.ForAll(
		func(v float64) bool {
			rounded := roundCents(v)
			return math.Abs(rounded-v) <= 0.0050001
		},
		gen.Float64Range(-1_000_000, 1_000_000),
	))

	properties.TestingRun(t)
}
