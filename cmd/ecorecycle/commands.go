package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/ecorecycle"
	"github.com/menta2k/ecorecycle/internal/config"
	"github.com/menta2k/ecorecycle/internal/utils"
	"github.com/menta2k/ecorecycle/pkg/processing"
)

var (
	saveDir       string
	saveExt       string
	saveQuality   int
	lossless      bool
	submitRecords bool
	recordsLimit  int
	recordsJSON   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <photo|dir|url>...",
	Short: "Classify photos and show which bin each item goes in",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		sources, err := expandSources(args)
		if err != nil {
			return err
		}
		if saveDir != "" {
			if err := utils.EnsureDir(saveDir); err != nil {
				return err
			}
		}

		proc := processing.NewProcessor()
		for _, src := range sources {
			var res *ecorecycle.ScanResult
			if saveDir != "" {
				img, err := proc.LoadImageSmart(src)
				if err != nil {
					printError("%s: %v", src, err)
					continue
				}
				name := utils.UploadFilename(src, "photo")
				out := filepath.Join(saveDir, strings.TrimSuffix(name, filepath.Ext(name))+"."+saveExt)
				if err := proc.SaveImage(img, out, saveExt, saveQuality, lossless); err != nil {
					printError("save %s: %v", out, err)
				}
				res, err = app.ScanImage(ctx, name, img)
				if err != nil {
					printError("%s: %v", src, err)
					continue
				}
			} else {
				res, err = app.ScanFile(ctx, src)
				if err != nil {
					printError("%s: %v", src, err)
					continue
				}
			}
			printScan(src, res)

			if submitRecords {
				if _, err := app.SubmitRecord(ctx, ecorecycle.RecordFromScan(res.Photo)); err != nil {
					printError("record: %v", err)
				}
			}
		}

		printStatistics(app.Statistics())
		printNotices(app.Notices())
		return nil
	},
}

var quizCmd = &cobra.Command{
	Use:   "quiz <photo>...",
	Short: "Scan photos and take the quiz they unlock",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		sources, err := expandSources(args)
		if err != nil {
			return err
		}
		for _, src := range sources {
			res, err := app.ScanFile(ctx, src)
			if err != nil {
				printError("%s: %v", src, err)
				continue
			}
			printScan(src, res)
		}

		questions, err := app.StartQuiz(ctx)
		if err != nil {
			taken, required := app.Progress()
			return fmt.Errorf("%w: %d of %d", err, taken, required)
		}

		in := bufio.NewScanner(cmd.InOrStdin())
		answers := make(map[int]int, len(questions))
		for i, q := range questions {
			fmt.Printf("\n%s %s\n", heading.Sprintf("Pregunta %d/%d:", i+1, len(questions)), q.Text)
			for j, opt := range q.Options {
				fmt.Printf("  %d) %s\n", j+1, opt)
			}
			fmt.Print("> ")
			if !in.Scan() {
				break
			}
			if n, err := strconv.Atoi(strings.TrimSpace(in.Text())); err == nil && n >= 1 && n <= len(q.Options) {
				answers[i] = n - 1
			}
		}

		result, err := app.SubmitQuiz(ctx, answers)
		if err != nil {
			return err
		}
		printQuizResult(questions, result)
		printNotices(app.Notices())
		return nil
	},
}

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Show your point balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		state, err := app.RefreshPoints(ctx)
		if err != nil {
			return err
		}
		printPoints(app.Email(), state, app.PendingPoints())
		return nil
	},
}

var rewardsCmd = &cobra.Command{
	Use:   "rewards",
	Short: "List partner rewards",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		views, err := app.Rewards(ctx)
		if err != nil && len(views) == 0 {
			return err
		}
		printRewards(app.Points().Balance, views)
		return nil
	},
}

var redeemCmd = &cobra.Command{
	Use:   "redeem <reward-id>",
	Short: "Spend points on a reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid reward id %q", args[0])
		}
		receipt, err := app.Redeem(ctx, id)
		if err != nil {
			printNotices(app.Notices())
			return err
		}
		success.Println(receipt.Message)
		printPoints(app.Email(), app.Points(), app.PendingPoints())
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show your points history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		entries, err := app.History(ctx)
		if err != nil {
			return err
		}
		printHistory(entries)
		return nil
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List recycling records saved on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		recs, err := app.Records(ctx, recordsLimit)
		if err != nil {
			return err
		}
		if recordsJSON {
			return writeRecordsJSON(cmd.OutOrStdout(), recs)
		}
		printRecords(recs)
		return nil
	},
}

var recordsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send records that never reached the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		n, err := app.SyncRecords(ctx)
		fmt.Printf("%d records sent\n", n)
		return err
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe <photo>",
	Short: "Ask the vision model to describe a photo",
	Long:  "Checks that an ollama or llamacpp classifier actually receives the image.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		text, err := app.ProbeVision(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default configuration file",
	Annotations: map[string]string{"standalone": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if utils.FileExists(configPath) {
			return fmt.Errorf("%s already exists", configPath)
		}
		if err := config.Default().SaveToFile(configPath); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", configPath)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version",
	Annotations: map[string]string{"standalone": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ecorecycle", ecorecycle.GetVersion())
	},
}

// expandSources turns directories into the image files they contain
func expandSources(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			out = append(out, a)
			continue
		}
		info, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, a)
			continue
		}
		files, err := utils.ListImageFiles(a)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no photos found")
	}
	return out, nil
}
