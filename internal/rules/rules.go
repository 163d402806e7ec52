// Package rules wraps the chess rules engine: move legality, SAN application
// and side-to-move, all keyed by FEN strings.
package rules

import (
	"fmt"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// Engine validates and applies moves for the scorer and tree builder.
type Engine interface {
	// ApplySAN applies a move in short algebraic notation to the position and
	// returns the resulting FEN. Illegal or unparseable moves are errors.
	ApplySAN(fen, san string) (string, error)
	// WhiteToMove reports whose turn it is in the position.
	WhiteToMove(fen string) (bool, error)
	// ValidateFEN reports whether the position identifier parses.
	ValidateFEN(fen string) error
}

type pgnEngine struct{}

// New returns an Engine backed by the pgn move generator.
func New() Engine { return pgnEngine{} }

// StartingFEN returns the identifier of the standard starting position.
func StartingFEN() string {
	return pgn.NewStartingPosition().ToFEN()
}

func (pgnEngine) ApplySAN(fen, san string) (string, error) {
	pos, err := pgn.NewGame(fen)
	if err != nil {
		return "", fmt.Errorf("parse FEN %q: %w", fen, err)
	}

	// Check/mate suffixes are decoration, not part of the move.
	cleaned := strings.TrimSuffix(san, "#")
	cleaned = strings.TrimSuffix(cleaned, "+")

	mv, err := pgn.ParseSAN(pos, cleaned)
	if err != nil {
		return "", fmt.Errorf("parse move %q: %w", san, err)
	}
	if err := pgn.ApplyMove(pos, mv); err != nil {
		return "", fmt.Errorf("apply move %q: %w", san, err)
	}
	return pos.ToFEN(), nil
}

func (pgnEngine) WhiteToMove(fen string) (bool, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return false, fmt.Errorf("malformed FEN %q", fen)
	}
	switch fields[1] {
	case "w":
		return true, nil
	case "b":
		return false, nil
	default:
		return false, fmt.Errorf("malformed FEN %q: side to move %q", fen, fields[1])
	}
}

func (pgnEngine) ValidateFEN(fen string) error {
	if _, err := pgn.NewGame(fen); err != nil {
		return fmt.Errorf("parse FEN %q: %w", fen, err)
	}
	return nil
}
