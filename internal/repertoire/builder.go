package repertoire

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/freeeve/repertoire/internal/explorer"
	"github.com/freeeve/repertoire/internal/rules"
	"github.com/freeeve/repertoire/internal/scorer"
)

// StatsProvider supplies position statistics for tree expansion.
type StatsProvider interface {
	scorer.StatsSource
	ComprehensiveStats(ctx context.Context, fen string, minRating, maxRating int, timeControls []string) (*explorer.ComprehensivePositionStats, error)
}

// ThresholdRule maps a depth range to a popularity threshold. A rule applies
// to every depth >= MinDepth that no higher-MinDepth rule covers.
type ThresholdRule struct {
	MinDepth  int
	Threshold float64
}

// DefaultThresholds is the standard four-bucket schedule: distinct thresholds
// for the first three plies, one shared threshold for everything deeper
// (which also covers a depth-0 root).
func DefaultThresholds(first, second, third, other float64) []ThresholdRule {
	return []ThresholdRule{
		{MinDepth: 0, Threshold: other},
		{MinDepth: 1, Threshold: first},
		{MinDepth: 2, Threshold: second},
		{MinDepth: 3, Threshold: third},
		{MinDepth: 4, Threshold: other},
	}
}

// Config configures a Builder.
type Config struct {
	MaxDepth        int             // plies beyond which no node expands
	MinGames        int             // sample-size floor per position
	WhiteWinCeiling float64         // fairness ceiling on White's win share at opponent-to-move nodes
	Thresholds      []ThresholdRule // per-depth popularity schedule
	MinRating       int
	MaxRating       int
	TimeControls    []string
	LogEvery        int            // log progress every N accepted moves
	Logger          zerolog.Logger // logger
}

// Builder grows the repertoire tree breadth-first. Processing is strictly
// sequential: all positions at one depth finish, lookups included, before the
// next depth starts.
type Builder struct {
	cfg        Config
	stats      StatsProvider
	analyzer   *scorer.Analyzer
	rules      rules.Engine
	thresholds []ThresholdRule // sorted by MinDepth descending
	log        zerolog.Logger

	moveCount int
}

// NewBuilder creates a builder. Zero config fields get workable defaults.
func NewBuilder(cfg Config, stats StatsProvider, analyzer *scorer.Analyzer, eng rules.Engine) (*Builder, error) {
	if stats == nil || analyzer == nil || eng == nil {
		return nil, fmt.Errorf("stats provider, analyzer and rules engine required")
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 10
	}
	if cfg.MinGames == 0 {
		cfg.MinGames = 200
	}
	if cfg.WhiteWinCeiling == 0 {
		cfg.WhiteWinCeiling = 1 // disabled
	}
	if cfg.WhiteWinCeiling < 0 || cfg.WhiteWinCeiling > 1 {
		return nil, fmt.Errorf("white win ceiling %v outside [0,1]", cfg.WhiteWinCeiling)
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = DefaultThresholds(0.05, 0.05, 0.05, 0.10)
	}
	if len(cfg.TimeControls) == 0 {
		cfg.TimeControls = []string{"blitz", "rapid"}
	}
	if cfg.LogEvery == 0 {
		cfg.LogEvery = 25
	}

	thresholds := append([]ThresholdRule(nil), cfg.Thresholds...)
	sort.SliceStable(thresholds, func(i, j int) bool {
		return thresholds[i].MinDepth > thresholds[j].MinDepth
	})

	return &Builder{
		cfg:        cfg,
		stats:      stats,
		analyzer:   analyzer,
		rules:      eng,
		thresholds: thresholds,
		log:        cfg.Logger,
	}, nil
}

// thresholdFor resolves the popularity threshold for a depth: the rule with
// the highest MinDepth not exceeding it.
func (b *Builder) thresholdFor(depth int) float64 {
	for _, rule := range b.thresholds {
		if rule.MinDepth <= depth {
			return rule.Threshold
		}
	}
	return b.thresholds[len(b.thresholds)-1].Threshold
}

// deepThreshold is the shared deep-ply threshold, used when selecting the
// forced own-side reply to an opponent move.
func (b *Builder) deepThreshold() float64 {
	return b.thresholds[0].Threshold
}

// BuildFromMoves builds a repertoire rooted at the position reached by
// applying a space-separated SAN sequence to the standard starting position.
// An empty sequence roots the tree at the starting position itself. Invalid
// moves are fatal.
func (b *Builder) BuildFromMoves(ctx context.Context, initialMoves string) (*Node, error) {
	fen := rules.StartingFEN()
	depth := 0

	for _, san := range strings.Fields(initialMoves) {
		next, err := b.rules.ApplySAN(fen, san)
		if err != nil {
			return nil, fmt.Errorf("invalid move in sequence %q: %s: %w", initialMoves, san, err)
		}
		fen = next
		depth++
	}

	label := strings.TrimSpace(initialMoves)
	if label == "" {
		label = RootMove
	}
	root := &Node{Move: label, FEN: fen}
	if err := b.run(ctx, root, depth); err != nil {
		return nil, err
	}
	return root, nil
}

// BuildFromFEN builds a repertoire rooted at an explicit position. An
// unparseable FEN is fatal.
func (b *Builder) BuildFromFEN(ctx context.Context, fen string) (*Node, error) {
	if err := b.rules.ValidateFEN(fen); err != nil {
		return nil, fmt.Errorf("invalid starting position: %w", err)
	}
	root := &Node{Move: RootMove, FEN: fen}
	if err := b.run(ctx, root, 0); err != nil {
		return nil, err
	}
	return root, nil
}

// workItem is one queued expansion: a node, its position, the ply depth, and
// whose turn it is there. The flag is always re-derived from the position so
// sides alternate strictly.
type workItem struct {
	node        *Node
	fen         string
	depth       int
	whiteToMove bool
}

// run drains the FIFO work queue. New work appends at the tail, so every node
// at depth d is processed before any node at depth d+1.
func (b *Builder) run(ctx context.Context, root *Node, depth int) error {
	whiteToMove, err := b.rules.WhiteToMove(root.FEN)
	if err != nil {
		return fmt.Errorf("root position: %w", err)
	}

	b.moveCount = 0
	queue := []workItem{{node: root, fen: root.FEN, depth: depth, whiteToMove: whiteToMove}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := queue[0]
		queue = queue[1:]
		queue = append(queue, b.processNode(ctx, item)...)
	}

	b.log.Info().Int("moves", b.moveCount).Int("nodes", root.Count()).Msg("repertoire complete")
	return nil
}

// processNode expands one node and returns the work items it spawned. Every
// failure below the root degrades to a termination reason on the node; a node
// ends with either children or exactly one reason.
func (b *Builder) processNode(ctx context.Context, item workItem) []workItem {
	node := item.node

	stats, err := b.stats.ComprehensiveStats(ctx, item.fen, b.cfg.MinRating, b.cfg.MaxRating, b.cfg.TimeControls)
	if err != nil {
		b.log.Warn().Err(err).Str("fen", item.fen).Msg("stats unavailable, terminating branch")
		node.TerminationReason = "API error"
		return nil
	}

	// The fairness ceiling applies where the opponent's previous move
	// produced the position: refuse to continue into lines already too good
	// for White.
	if !item.whiteToMove {
		if rate := stats.WhiteWinRate(); rate > b.cfg.WhiteWinCeiling {
			node.TerminationReason = fmt.Sprintf("White win rate %.1f%% > %.0f%%",
				rate*100, b.cfg.WhiteWinCeiling*100)
			return nil
		}
	}

	if item.depth >= b.cfg.MaxDepth {
		node.TerminationReason = "Max depth reached"
		return nil
	}

	if stats.TotalGames < b.cfg.MinGames {
		node.TerminationReason = fmt.Sprintf("Insufficient games (%d < %d)", stats.TotalGames, b.cfg.MinGames)
		return nil
	}

	threshold := b.thresholdFor(item.depth)
	analyzed := b.analyzer.AnalyzePosition(ctx, stats, threshold, item.fen,
		b.cfg.MinRating, b.cfg.MaxRating, b.cfg.TimeControls)
	if len(analyzed) == 0 {
		node.TerminationReason = fmt.Sprintf("No moves above %.0f%% threshold", threshold*100)
		return nil
	}

	policy := policyFor(item.whiteToMove)
	var spawned []workItem

	for _, mv := range analyzed {
		childFEN, err := b.rules.ApplySAN(item.fen, mv.SAN)
		if err != nil {
			// A move the stats source reports but the rules engine rejects
			// is skipped; its siblings still get processed.
			b.log.Warn().Err(err).Str("fen", item.fen).Str("san", mv.SAN).Msg("skipping unplayable move")
			continue
		}

		child := newChild(mv, childFEN)
		node.AddChild(child)
		b.countMove(child)

		switch policy {
		case ExpandAll:
			if next := b.enqueue(child, childFEN, item.depth+1); next != nil {
				spawned = append(spawned, *next)
			}
		case CollapseToBest:
			if next := b.answerOpponentMove(ctx, child, childFEN, item.depth); next != nil {
				spawned = append(spawned, *next)
			}
		}
	}

	node.SortChildren()
	return spawned
}

// answerOpponentMove attaches the single best own-side continuation under an
// opponent's reply and schedules it two plies deeper. The reply node itself
// is never expanded further.
func (b *Builder) answerOpponentMove(ctx context.Context, reply *Node, replyFEN string, depth int) *workItem {
	stats, err := b.stats.ComprehensiveStats(ctx, replyFEN, b.cfg.MinRating, b.cfg.MaxRating, b.cfg.TimeControls)
	if err != nil {
		b.log.Warn().Err(err).Str("fen", replyFEN).Msg("stats unavailable for reply")
		reply.TerminationReason = "API error"
		return nil
	}

	threshold := b.deepThreshold()
	analyzed := b.analyzer.AnalyzePosition(ctx, stats, threshold, replyFEN,
		b.cfg.MinRating, b.cfg.MaxRating, b.cfg.TimeControls)
	best, ok := scorer.BestMove(analyzed)
	if !ok {
		reply.TerminationReason = fmt.Sprintf("No moves above %.0f%% threshold", threshold*100)
		return nil
	}

	bestFEN, err := b.rules.ApplySAN(replyFEN, best.SAN)
	if err != nil {
		b.log.Warn().Err(err).Str("fen", replyFEN).Str("san", best.SAN).Msg("skipping unplayable reply")
		reply.TerminationReason = fmt.Sprintf("No moves above %.0f%% threshold", threshold*100)
		return nil
	}

	continuation := newChild(best, bestFEN)
	reply.AddChild(continuation)
	continuation.IsMainline = true
	b.countMove(continuation)

	return b.enqueue(continuation, bestFEN, depth+2)
}

// enqueue builds the work item for a freshly created node, deriving whose
// turn it is from the position itself.
func (b *Builder) enqueue(node *Node, fen string, depth int) *workItem {
	whiteToMove, err := b.rules.WhiteToMove(fen)
	if err != nil {
		b.log.Warn().Err(err).Str("fen", fen).Msg("cannot determine side to move")
		node.TerminationReason = "API error"
		return nil
	}
	return &workItem{node: node, fen: fen, depth: depth, whiteToMove: whiteToMove}
}

func newChild(mv scorer.AnalyzedMove, fen string) *Node {
	outcome := mv.Outcome
	score := mv.Score
	return &Node{Move: mv.SAN, FEN: fen, Outcome: &outcome, Score: &score}
}

func (b *Builder) countMove(latest *Node) {
	b.moveCount++
	if b.moveCount%b.cfg.LogEvery == 0 {
		b.log.Info().
			Int("moves", b.moveCount).
			Str("last_move", latest.Move).
			Float64("score", latest.TotalScore()).
			Msg("building repertoire")
	}
}
