package models

// War is the raw record kept by the external store for one war.
// Diff holds per-race score differentials from the home team's perspective,
// oldest first. LastDiff is written by the producer but the overlay derives
// the latest differential from Diff.
type War struct {
	Tag        string `json:"tag"`
	EnemyTag   string `json:"enemy_tag"`
	HomeScore  []int  `json:"home_score"`
	EnemyScore []int  `json:"enemy_score"`
	Diff       []int  `json:"diff"`
	LastDiff   *int   `json:"last_diff"`
}

// OverlayState is the display-ready scoreboard snapshot pushed to overlays.
type OverlayState struct {
	TeamTag        string `json:"team_tag"`
	OpponentTag    string `json:"opponent_tag"`
	HomeScore      int    `json:"home_score"`
	OpponentScore  int    `json:"opponent_score"`
	TotalDiff      int    `json:"total_diff"`
	LastDiff       *int   `json:"last_diff"`
	RacesRemaining int    `json:"races_remaining"`
}

// Equal reports whether two snapshots would render identically. A nil state
// means the war is unavailable, so nil only equals nil.
func (s *OverlayState) Equal(other *OverlayState) bool {
	if s == nil || other == nil {
		return s == other
	}
	if (s.LastDiff == nil) != (other.LastDiff == nil) {
		return false
	}
	if s.LastDiff != nil && *s.LastDiff != *other.LastDiff {
		return false
	}
	return s.TeamTag == other.TeamTag &&
		s.OpponentTag == other.OpponentTag &&
		s.HomeScore == other.HomeScore &&
		s.OpponentScore == other.OpponentScore &&
		s.TotalDiff == other.TotalDiff &&
		s.RacesRemaining == other.RacesRemaining
}
