package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunReward(t *testing.T) {
	tests := []struct {
		name     string
		km       float64
		seconds  int64
		rate     float64
		expected int64
	}{
		{"10k at 10 km/h", 10, 3600, 1, 25},
		{"5k at 10 km/h", 5, 1800, 1, 10},
		{"5k walking", 5, 3600, 1, 5},
		{"fractional km floors", 3.7, 0, 1, 3},
		{"20k too fast for pace bonus", 20, 3600, 1, 50},
		{"21k at 10.5 km/h", 21, 7200, 1, 56},
		{"pace upper bound inclusive", 15, 3600, 1, 30},
		{"double rate", 5, 1800, 2, 15},
		{"no distance", 0, 600, 1, 0},
		{"negative distance", -3, 600, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RunReward(tt.km, tt.seconds, tt.rate))
		})
	}
}

func TestComputeRunReward_UsesConfiguredRate(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, int64(25), f.ledger.ComputeRunReward(10, 3600))
}
