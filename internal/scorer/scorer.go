// Package scorer ranks candidate moves by a composite of win expectancy,
// high-rating popularity preference, and entropy-derived sharpness.
package scorer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/freeeve/repertoire/internal/explorer"
	"github.com/freeeve/repertoire/internal/rules"
)

// minSharpnessGames is the sample size below which a resulting position
// carries no usable sharpness signal.
const minSharpnessGames = 50

// StatsSource supplies position statistics for sharpness lookups.
type StatsSource interface {
	Stats(ctx context.Context, fen string, minRating, maxRating int, timeControls []string) (*explorer.PositionStats, error)
}

// Weights are the immutable per-run scoring weights.
type Weights struct {
	WinRate    float64 // weight for expected score
	Popularity float64 // weight for high-rating preference
	Sharpness  float64 // weight for entropy sharpness
}

// ScoreDetails is the full breakdown of one move's composite score.
type ScoreDetails struct {
	TotalScore     float64
	ExpectedScore  float64
	HighRatingPref float64 // normalized to [0,1]
	Sharpness      float64

	ExpectedScoreWeighted  float64
	HighRatingPrefWeighted float64
	SharpnessWeighted      float64

	Weights Weights
}

// Comment formats the score as a PGN annotation.
func (d ScoreDetails) Comment() string {
	return fmt.Sprintf("Score: %.3f [Win: %.3f, Pref: %.3f, Sharp: %.3f]",
		d.TotalScore, d.ExpectedScore, d.HighRatingPref, d.Sharpness)
}

// String formats the full weighted breakdown for console output.
func (d ScoreDetails) String() string {
	return fmt.Sprintf("Total: %.3f = Score: %.3f*%g + Pref: %.3f*%g + Sharp: %.3f*%g",
		d.TotalScore,
		d.ExpectedScore, d.Weights.WinRate,
		d.HighRatingPref, d.Weights.Popularity,
		d.Sharpness, d.Weights.Sharpness)
}

// AnalyzedMove is one scored candidate move.
type AnalyzedMove struct {
	SAN     string
	Outcome explorer.MoveOutcome
	Score   ScoreDetails
}

// Analyzer scores candidate moves. Sharpness lookups go through the stats
// source, so scoring a move may trigger one additional fetch for the
// resulting position.
type Analyzer struct {
	weights Weights
	stats   StatsSource
	rules   rules.Engine
}

// NewAnalyzer creates an analyzer with fixed weights.
func NewAnalyzer(weights Weights, stats StatsSource, eng rules.Engine) *Analyzer {
	return &Analyzer{weights: weights, stats: stats, rules: eng}
}

// EntropySharpness measures how constrained the opponent's replies are after
// playing san in the position: 0 when the move is illegal or the sample is
// too small, 1 when the opponent has a single recorded reply, otherwise
// 1 - normalized Shannon entropy of the reply distribution.
func (a *Analyzer) EntropySharpness(ctx context.Context, fen, san string, minRating, maxRating int, timeControls []string) float64 {
	nextFEN, err := a.rules.ApplySAN(fen, san)
	if err != nil {
		return 0
	}

	stats, err := a.stats.Stats(ctx, nextFEN, minRating, maxRating, timeControls)
	if err != nil || stats == nil || stats.TotalGames < minSharpnessGames {
		return 0
	}
	if len(stats.Moves) < 2 {
		return 1
	}

	var probs []float64
	for _, reply := range stats.Moves {
		p := float64(reply.Games) / float64(stats.TotalGames)
		if p > 0 {
			probs = append(probs, p)
		}
	}
	if len(probs) < 2 {
		return 1
	}

	// Shannon entropy H = -sum(p * log2 p), normalized by the maximum
	// entropy log2(n) for n equally likely replies.
	entropy := 0.0
	for _, p := range probs {
		entropy -= p * math.Log2(p)
	}
	maxEntropy := math.Log2(float64(len(probs)))
	sharpness := 1 - entropy/maxEntropy
	return clamp01(sharpness)
}

// ScoreMove computes the weighted composite score for one move. With no
// recorded games the result is zero-valued but still carries the weights.
func (a *Analyzer) ScoreMove(ctx context.Context, outcome explorer.MoveOutcome, totalGames int, highRatingPref float64,
	fen, san string, minRating, maxRating int, timeControls []string) ScoreDetails {

	if totalGames == 0 || outcome.Games == 0 {
		return ScoreDetails{Weights: a.weights}
	}

	expected := outcome.ExpectedScore()

	// Raw preference lives in roughly [-0.2, 0.2]; rescale to [0,1].
	normalizedPref := clamp01((highRatingPref + 0.2) / 0.4)

	sharpness := a.EntropySharpness(ctx, fen, san, minRating, maxRating, timeControls)

	return compose(expected, normalizedPref, sharpness, a.weights)
}

// compose assembles the weighted breakdown from the three normalized
// components.
func compose(expected, normalizedPref, sharpness float64, w Weights) ScoreDetails {
	d := ScoreDetails{
		ExpectedScore:  expected,
		HighRatingPref: normalizedPref,
		Sharpness:      sharpness,
		Weights:        w,
	}
	d.ExpectedScoreWeighted = expected * w.WinRate
	d.HighRatingPrefWeighted = normalizedPref * w.Popularity
	d.SharpnessWeighted = sharpness * w.Sharpness
	d.TotalScore = d.ExpectedScoreWeighted + d.HighRatingPrefWeighted + d.SharpnessWeighted
	return d
}

// AnalyzePosition scores every move whose popularity share meets the
// threshold and returns them sorted by total score, best first. Ties keep
// SAN order, so results are deterministic.
func (a *Analyzer) AnalyzePosition(ctx context.Context, stats *explorer.ComprehensivePositionStats, threshold float64,
	fen string, minRating, maxRating int, timeControls []string) []AnalyzedMove {

	if stats == nil || stats.TotalGames == 0 {
		return nil
	}

	// Map iteration order is random; walk moves in SAN order so the stable
	// sort below breaks score ties the same way every run.
	sans := make([]string, 0, len(stats.Moves))
	for san := range stats.Moves {
		sans = append(sans, san)
	}
	sort.Strings(sans)

	var analyzed []AnalyzedMove
	for _, san := range sans {
		outcome := stats.Moves[san]
		popularity := float64(outcome.Games) / float64(stats.TotalGames)
		if popularity < threshold {
			continue
		}
		pref := stats.HighRatingPreference(san)
		score := a.ScoreMove(ctx, outcome, stats.TotalGames, pref, fen, san, minRating, maxRating, timeControls)
		analyzed = append(analyzed, AnalyzedMove{SAN: san, Outcome: outcome, Score: score})
	}

	sort.SliceStable(analyzed, func(i, j int) bool {
		return analyzed[i].Score.TotalScore > analyzed[j].Score.TotalScore
	})
	return analyzed
}

// BestMove returns the top element of an already-sorted analysis.
func BestMove(analyzed []AnalyzedMove) (AnalyzedMove, bool) {
	if len(analyzed) == 0 {
		return AnalyzedMove{}, false
	}
	return analyzed[0], true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
