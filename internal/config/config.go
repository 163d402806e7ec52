// Package config loads the build configuration from a YAML file plus the
// environment (.env is honored for the API token).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/freeeve/repertoire/internal/repertoire"
	"github.com/freeeve/repertoire/internal/scorer"
)

// Config mirrors the config.yaml layout.
type Config struct {
	Opening struct {
		// InitialMoves is a space-separated SAN sequence applied from the
		// standard starting position. Ignored when StartFEN is set.
		InitialMoves string `yaml:"initial_moves"`
		// StartFEN roots the repertoire at an explicit position.
		StartFEN string `yaml:"start_fen"`
	} `yaml:"opening"`

	Analysis struct {
		Depth                 int      `yaml:"depth"`
		MinRating             int      `yaml:"min_rating"`
		MaxRating             int      `yaml:"max_rating"`
		TimeControls          []string `yaml:"time_controls"`
		WinRateWeight         float64  `yaml:"win_rate_weight"`
		PopularityWeight      float64  `yaml:"popularity_weight"`
		SharpnessWeight       float64  `yaml:"sharpness_weight"`
		InitialThreshold      float64  `yaml:"initial_threshold"`
		SecondMoveThreshold   float64  `yaml:"second_move_threshold"`
		ThirdMoveThreshold    float64  `yaml:"third_move_threshold"`
		OtherMovesThreshold   float64  `yaml:"other_moves_threshold"`
		MinGames              int      `yaml:"min_games"`
		WhiteWinRateThreshold float64  `yaml:"white_win_rate_threshold"`
	} `yaml:"analysis"`

	API struct {
		BaseURL         string `yaml:"base_url"`
		QueryIntervalMS int    `yaml:"query_interval_ms"`
		ThrottleAlways  bool   `yaml:"throttle_always"`
	} `yaml:"api"`

	Cache struct {
		// File holds the full cache; .json or .yaml/.yml, optionally .zst.
		File string `yaml:"file"`
	} `yaml:"cache"`

	Output struct {
		PGNFile              string `yaml:"pgn_file"`
		IncludeScoreComments bool   `yaml:"include_score_comments"`
		ECODir               string `yaml:"eco_dir"`
	} `yaml:"output"`
}

// defaults returns a config pre-filled with workable values; Load unmarshals
// the file over it so absent keys keep their defaults.
func defaults() *Config {
	var c Config
	c.Analysis.Depth = 10
	c.Analysis.MinRating = 1600
	c.Analysis.MaxRating = 2500
	c.Analysis.TimeControls = []string{"blitz", "rapid"}
	c.Analysis.WinRateWeight = 0.5
	c.Analysis.PopularityWeight = 0.3
	c.Analysis.SharpnessWeight = 0.2
	c.Analysis.InitialThreshold = 0.02
	c.Analysis.SecondMoveThreshold = 0.03
	c.Analysis.ThirdMoveThreshold = 0.05
	c.Analysis.OtherMovesThreshold = 0.10
	c.Analysis.MinGames = 200
	c.Analysis.WhiteWinRateThreshold = 0.65
	c.API.QueryIntervalMS = 75
	c.API.ThrottleAlways = true
	c.Cache.File = "data/cache.json"
	c.Output.PGNFile = "repertoire.pgn"
	c.Output.IncludeScoreComments = true
	return &c
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := defaults()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Analysis.Depth <= 0 {
		return fmt.Errorf("analysis.depth must be positive, got %d", c.Analysis.Depth)
	}
	if c.Analysis.MinRating >= c.Analysis.MaxRating {
		return fmt.Errorf("analysis.min_rating %d must be below max_rating %d",
			c.Analysis.MinRating, c.Analysis.MaxRating)
	}
	if len(c.Analysis.TimeControls) == 0 {
		return fmt.Errorf("analysis.time_controls must not be empty")
	}
	for _, w := range []float64{c.Analysis.WinRateWeight, c.Analysis.PopularityWeight, c.Analysis.SharpnessWeight} {
		if w < 0 {
			return fmt.Errorf("scoring weights must not be negative")
		}
	}
	for _, th := range []float64{c.Analysis.InitialThreshold, c.Analysis.SecondMoveThreshold,
		c.Analysis.ThirdMoveThreshold, c.Analysis.OtherMovesThreshold} {
		if th < 0 || th > 1 {
			return fmt.Errorf("popularity thresholds must be in [0,1]")
		}
	}
	if c.Analysis.WhiteWinRateThreshold <= 0 || c.Analysis.WhiteWinRateThreshold > 1 {
		return fmt.Errorf("analysis.white_win_rate_threshold must be in (0,1], got %v",
			c.Analysis.WhiteWinRateThreshold)
	}
	if c.Analysis.MinGames < 0 {
		return fmt.Errorf("analysis.min_games must not be negative")
	}
	if c.Cache.File == "" {
		return fmt.Errorf("cache.file must be set")
	}
	if c.Output.PGNFile == "" {
		return fmt.Errorf("output.pgn_file must be set")
	}
	return nil
}

// Weights returns the scoring weights.
func (c *Config) Weights() scorer.Weights {
	return scorer.Weights{
		WinRate:    c.Analysis.WinRateWeight,
		Popularity: c.Analysis.PopularityWeight,
		Sharpness:  c.Analysis.SharpnessWeight,
	}
}

// ThresholdRules compiles the per-ply threshold knobs into the ordered
// first-match schedule the builder consumes.
func (c *Config) ThresholdRules() []repertoire.ThresholdRule {
	return repertoire.DefaultThresholds(
		c.Analysis.InitialThreshold,
		c.Analysis.SecondMoveThreshold,
		c.Analysis.ThirdMoveThreshold,
		c.Analysis.OtherMovesThreshold,
	)
}

// QueryInterval returns the minimum spacing between outbound queries.
func (c *Config) QueryInterval() time.Duration {
	return time.Duration(c.API.QueryIntervalMS) * time.Millisecond
}

// Title returns the PGN title for the configured opening.
func (c *Config) Title() string {
	if c.Opening.StartFEN != "" {
		return "Position Repertoire"
	}
	if c.Opening.InitialMoves != "" {
		return c.Opening.InitialMoves + " Repertoire"
	}
	return "Starting Position Repertoire"
}
