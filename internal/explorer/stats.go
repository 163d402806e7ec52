// Package explorer provides a throttled, retrying client for the Lichess
// opening explorer with a crash-safe local cache, so repeated lookups for the
// same position are cheap and idempotent.
package explorer

// MoveOutcome holds the aggregate results of one move in a position, from
// White's perspective.
type MoveOutcome struct {
	Wins   int `json:"wins" yaml:"wins"`
	Draws  int `json:"draws" yaml:"draws"`
	Losses int `json:"losses" yaml:"losses"`
	Games  int `json:"games" yaml:"games"`
}

// ExpectedScore returns (wins + 0.5*draws) / games, or 0 with no games.
func (m MoveOutcome) ExpectedScore() float64 {
	if m.Games == 0 {
		return 0
	}
	return (float64(m.Wins) + 0.5*float64(m.Draws)) / float64(m.Games)
}

// WinRate returns wins / games, or 0 with no games.
func (m MoveOutcome) WinRate() float64 {
	if m.Games == 0 {
		return 0
	}
	return float64(m.Wins) / float64(m.Games)
}

// PositionStats holds the aggregate statistics for a single position.
// Only moves with at least one recorded game are retained.
type PositionStats struct {
	TotalGames int                    `json:"total_games" yaml:"total_games"`
	White      int                    `json:"white" yaml:"white"`
	Draws      int                    `json:"draws" yaml:"draws"`
	Black      int                    `json:"black" yaml:"black"`
	Moves      map[string]MoveOutcome `json:"moves" yaml:"moves"`
}

// WhiteWinRate returns the share of games White won at this position,
// or 0 with no games.
func (s *PositionStats) WhiteWinRate() float64 {
	total := s.White + s.Draws + s.Black
	if total == 0 {
		return 0
	}
	return float64(s.White) / float64(total)
}

// ComprehensivePositionStats augments PositionStats with the same statistics
// split at the high-rating boundary, plus the per-move popularity delta
// between the two bands. Moves missing from either band have preference 0.
type ComprehensivePositionStats struct {
	PositionStats         `yaml:",inline"`
	HighRating            *PositionStats     `json:"high_rating,omitempty" yaml:"high_rating,omitempty"`
	LowRating             *PositionStats     `json:"low_rating,omitempty" yaml:"low_rating,omitempty"`
	HighRatingPreferences map[string]float64 `json:"high_rating_preferences,omitempty" yaml:"high_rating_preferences,omitempty"`
}

// HighRatingPreference returns the precomputed popularity delta for a move.
func (s *ComprehensivePositionStats) HighRatingPreference(san string) float64 {
	if s == nil {
		return 0
	}
	return s.HighRatingPreferences[san]
}

// explorerResponse is the wire format of the opening explorer.
type explorerResponse struct {
	White int `json:"white"`
	Draws int `json:"draws"`
	Black int `json:"black"`
	Moves []struct {
		SAN   string `json:"san"`
		White int    `json:"white"`
		Draws int    `json:"draws"`
		Black int    `json:"black"`
	} `json:"moves"`
}

// processResponse converts the wire format into PositionStats, dropping moves
// with zero recorded games.
func processResponse(resp *explorerResponse) *PositionStats {
	stats := &PositionStats{
		TotalGames: resp.White + resp.Draws + resp.Black,
		White:      resp.White,
		Draws:      resp.Draws,
		Black:      resp.Black,
		Moves:      make(map[string]MoveOutcome, len(resp.Moves)),
	}
	for _, mv := range resp.Moves {
		games := mv.White + mv.Draws + mv.Black
		if games == 0 {
			continue
		}
		stats.Moves[mv.SAN] = MoveOutcome{
			Wins:   mv.White,
			Draws:  mv.Draws,
			Losses: mv.Black,
			Games:  games,
		}
	}
	return stats
}

// computePreferences calculates each main-band move's popularity share in the
// high band minus its share in the low band. Moves absent from either band
// default to 0.
func computePreferences(main, high, low *PositionStats) map[string]float64 {
	prefs := make(map[string]float64, len(main.Moves))
	if high == nil || low == nil {
		return prefs
	}
	for san := range main.Moves {
		hi, inHigh := high.Moves[san]
		lo, inLow := low.Moves[san]
		if !inHigh || !inLow || high.TotalGames == 0 || low.TotalGames == 0 {
			prefs[san] = 0
			continue
		}
		highShare := float64(hi.Games) / float64(high.TotalGames)
		lowShare := float64(lo.Games) / float64(low.TotalGames)
		prefs[san] = highShare - lowShare
	}
	return prefs
}
