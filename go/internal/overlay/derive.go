// Package overlay turns raw war records into the scoreboard state shown on
// broadcast overlays.
package overlay

import "github.com/mcdev12/warboard/go/internal/models"

const (
	// PointsPerRace is the baseline number of points each team is credited
	// with per race before the differential is applied.
	PointsPerRace = 41

	// PlannedRaces is the number of races in a regular war.
	PlannedRaces = 12

	// CarryOverRaces is the extra race band counted after the planned races
	// run out. Counting past it reports zero races remaining.
	CarryOverRaces = 4
)

// Derive computes the overlay state for a war. A nil record yields nil.
func Derive(war *models.War) *models.OverlayState {
	if war == nil {
		return nil
	}

	total := 0
	for _, d := range war.Diff {
		total += d
	}
	n := len(war.Diff)

	var last *int
	if n > 0 {
		v := war.Diff[n-1]
		last = &v
	}

	return &models.OverlayState{
		TeamTag:        war.Tag,
		OpponentTag:    war.EnemyTag,
		HomeScore:      n*PointsPerRace + total/2,
		OpponentScore:  n*PointsPerRace - total/2,
		TotalDiff:      total,
		LastDiff:       last,
		RacesRemaining: RacesRemaining(n),
	}
}

// RacesRemaining reports how many races are left after played races.
func RacesRemaining(played int) int {
	r := PlannedRaces - played
	switch {
	case r >= 0:
		return r
	case r > -CarryOverRaces:
		return r + CarryOverRaces
	default:
		return 0
	}
}
