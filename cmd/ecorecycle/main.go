package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/ecorecycle"
	"github.com/menta2k/ecorecycle/internal/config"
	"github.com/menta2k/ecorecycle/internal/logging"
)

var (
	configPath string
	email      string
	apiURL     string
	classifier string
	model      string
	verbose    bool
	jsonLog    bool
	timeout    time.Duration

	logger *zap.Logger
	cfg    *config.Config
	app    *ecorecycle.App
)

var rootCmd = &cobra.Command{
	Use:   "ecorecycle",
	Short: "Recycling assistant: classify items, learn where they go, earn points",
	Long: `ecorecycle classifies photos of waste items, tells you which bin they
belong in and keeps track of your recycling points.

Scan three items to unlock a short quiz; correct answers earn bonus points
that can be spent on partner rewards.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["standalone"] == "true" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, jsonLog || cfg.Logging.JSON)
		if err != nil {
			return err
		}

		app, err = ecorecycle.New(cfg, ecorecycle.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			if err := app.Close(); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("email") {
		c.User.Email = email
	}
	if flags.Changed("api-url") {
		c.API.BaseURL = apiURL
	}
	if flags.Changed("classifier") {
		c.Classifier.Kind = classifier
	}
	if flags.Changed("model") {
		c.Classifier.Model = model
	}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetConfigPath(), "Config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&email, "email", "e", "", "User email (or set ECORECYCLE_EMAIL)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend URL (or set ECORECYCLE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&classifier, "classifier", "", "Classifier: backend, ollama or llamacpp")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Vision model for ollama/llamacpp")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "Log as JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	scanCmd.Flags().StringVar(&saveDir, "save-dir", "", "Save a copy of each scanned photo in this directory")
	scanCmd.Flags().StringVar(&saveExt, "ext", "jpg", "Format of saved photos: jpg|png|webp")
	scanCmd.Flags().IntVar(&saveQuality, "quality", 90, "Quality of saved photos (1-100)")
	scanCmd.Flags().BoolVar(&lossless, "lossless", false, "Save WebP photos losslessly")
	scanCmd.Flags().BoolVar(&submitRecords, "record", false, "Submit a recycling record for each scan")

	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 20, "Number of records to show (0 = all)")
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "Export the records as JSON")
	recordsCmd.AddCommand(recordsSyncCmd)

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(pointsCmd)
	rootCmd.AddCommand(rewardsCmd)
	rootCmd.AddCommand(redeemCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
