package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/freeeve/repertoire/internal/config"
	"github.com/freeeve/repertoire/internal/eco"
	"github.com/freeeve/repertoire/internal/explorer"
	"github.com/freeeve/repertoire/internal/logx"
	"github.com/freeeve/repertoire/internal/repertoire"
	"github.com/freeeve/repertoire/internal/rules"
	"github.com/freeeve/repertoire/internal/scorer"
)

func buildCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a repertoire tree and write it as PGN",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger := logx.NewLeveledLogger(level)

			if err := config.LoadEnvFile(".env"); err != nil {
				logger.Warn().Err(err).Msg("reading .env failed")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runBuild(cmd, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func runBuild(cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger) error {
	ctx := cmd.Context()

	cache, err := explorer.OpenCache(cfg.Cache.File, logger.With().Str("component", "cache").Logger())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	logger.Info().Str("file", cfg.Cache.File).Int("entries", cache.Len()).Msg("cache loaded")

	client := explorer.NewClient(explorer.ClientConfig{
		BaseURL:        cfg.API.BaseURL,
		APIToken:       os.Getenv("LICHESS_API_KEY"),
		QueryInterval:  cfg.QueryInterval(),
		ThrottleAlways: cfg.API.ThrottleAlways,
		Logger:         logger.With().Str("component", "explorer").Logger(),
	}, cache)

	eng := rules.New()
	analyzer := scorer.NewAnalyzer(cfg.Weights(), client, eng)

	builder, err := repertoire.NewBuilder(repertoire.Config{
		MaxDepth:        cfg.Analysis.Depth,
		MinGames:        cfg.Analysis.MinGames,
		WhiteWinCeiling: cfg.Analysis.WhiteWinRateThreshold,
		Thresholds:      cfg.ThresholdRules(),
		MinRating:       cfg.Analysis.MinRating,
		MaxRating:       cfg.Analysis.MaxRating,
		TimeControls:    cfg.Analysis.TimeControls,
		Logger:          logger.With().Str("component", "builder").Logger(),
	}, client, analyzer, eng)
	if err != nil {
		return fmt.Errorf("create builder: %w", err)
	}

	logger.Info().
		Int("depth", cfg.Analysis.Depth).
		Int("min_rating", cfg.Analysis.MinRating).
		Int("max_rating", cfg.Analysis.MaxRating).
		Strs("time_controls", cfg.Analysis.TimeControls).
		Int("min_games", cfg.Analysis.MinGames).
		Float64("white_win_ceiling", cfg.Analysis.WhiteWinRateThreshold).
		Msg("building repertoire")

	var root *repertoire.Node
	if cfg.Opening.StartFEN != "" {
		root, err = builder.BuildFromFEN(ctx, cfg.Opening.StartFEN)
	} else {
		root, err = builder.BuildFromMoves(ctx, cfg.Opening.InitialMoves)
	}
	if err != nil {
		return fmt.Errorf("build repertoire: %w", err)
	}

	gen := &repertoire.Generator{IncludeComments: cfg.Output.IncludeScoreComments}
	if cfg.Output.ECODir != "" {
		db := eco.NewDatabase()
		if err := db.LoadDir(cfg.Output.ECODir); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Output.ECODir).Msg("failed to load ECO database")
		} else {
			logger.Info().Int("openings", db.Count()).Msg("ECO database loaded")
			gen.ECO = db
		}
	}

	pgnText := gen.Generate(root, cfg.Title())
	if err := os.WriteFile(cfg.Output.PGNFile, []byte(pgnText), 0644); err != nil {
		return fmt.Errorf("write PGN: %w", err)
	}

	hits, misses := cache.Stats()
	logger.Info().
		Str("pgn", cfg.Output.PGNFile).
		Int("nodes", root.Count()).
		Int64("queries", client.Queries()).
		Uint64("cache_hits", hits).
		Uint64("cache_misses", misses).
		Msg("repertoire written")
	return nil
}
