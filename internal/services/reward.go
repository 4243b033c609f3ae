package services

import "math"

const (
	longRunKm     = 10.0
	longRunBonus  = 10
	ultraRunKm    = 20.0
	ultraRunBonus = 20

	paceMinKmh = 8.0
	paceMaxKmh = 15.0
	paceBonus  = 5
)

// RunReward is the XP earned for one run: floor(distance × rate), plus +10 at
// 10 km and another +20 at 20 km, plus +5 when the average pace is 8 to 15 km/h.
func RunReward(distanceKm float64, durationSeconds int64, perKmRate float64) int64 {
	if distanceKm <= 0 || perKmRate < 0 {
		return 0
	}
	reward := int64(math.Floor(distanceKm * perKmRate))
	if distanceKm >= longRunKm {
		reward += longRunBonus
	}
	if distanceKm >= ultraRunKm {
		reward += ultraRunBonus
	}
	if durationSeconds > 0 {
		kmh := distanceKm / (float64(durationSeconds) / 3600)
		if kmh >= paceMinKmh && kmh <= paceMaxKmh {
			reward += paceBonus
		}
	}
	return reward
}
