package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/revmigrate/internal/config"
	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
	"github.com/ALT-F4-LLC/revmigrate/internal/load"
	"github.com/ALT-F4-LLC/revmigrate/internal/output"
	"github.com/ALT-F4-LLC/revmigrate/internal/sanitize"
)

var loadCmd = &cobra.Command{
	Use:   "load <records.jsonl>",
	Short: "Write an extracted record file into the destination store",
	Long: `Load merges every record into the destination store and queues a
pull request sync for each review and a profile refresh for each user.
Interrupted loads can be resumed with --skip.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)
		log := getLog(cmd)
		ctx := cmd.Context()

		admin, _ := cmd.Flags().GetString("admin")
		idsPath, _ := cmd.Flags().GetString("ids")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		skip, _ := cmd.Flags().GetInt("skip")
		yes, _ := cmd.Flags().GetBool("yes")

		if !ident.Pattern.MatchString(admin) {
			return cmdErr(fmt.Errorf("--admin must be a user identifier like github:123"), output.ErrValidation)
		}
		if skip < 0 {
			return cmdErr(fmt.Errorf("--skip must not be negative"), output.ErrValidation)
		}

		ids := ident.NewIdentity()
		if idsPath != "" {
			m, err := ident.LoadMap(idsPath)
			if err != nil {
				return cmdErr(err, output.ErrValidation)
			}
			ids = ident.New(m, ident.WithGhost(cfg.Ghost))
		}
		rules, err := sanitize.LoadRules(cfg.Exclusions)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return cmdErr(fmt.Errorf("opening record file: %w", err), output.ErrNotFound)
		}
		defer f.Close()

		if !w.JSONMode && !dryRun && !yes {
			var confirmed bool
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("Write %s into %s?", args[0], cfg.StoreURL)).
						Affirmative("Yes, load").
						Negative("Cancel").
						Value(&confirmed),
				),
			)

			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					w.Info("Cancelled.")
					return nil
				}
				return cmdErr(fmt.Errorf("interactive form failed: %w", err), output.ErrGeneral)
			}

			if !confirmed {
				w.Info("Cancelled.")
				return nil
			}
		}

		dst, err := openStore(cfg, log)
		if err != nil {
			return cmdErr(fmt.Errorf("opening destination store: %w", err), output.ErrGeneral)
		}
		defer dst.Close()

		progress := w.Progress("load", 0)
		loader := load.New(dst, ids, load.Options{
			Admin:       admin,
			UploadsURL:  cfg.UploadsURL,
			Rules:       rules,
			DryRun:      dryRun,
			Skip:        skip,
			Rate:        cfg.LoadRate,
			Concurrency: cfg.Concurrency,
			Progress:    progress,
			Log:         log,
		})

		log.Info("loading", zap.String("file", args[0]), zap.Bool("dry_run", dryRun), zap.Int("skip", skip))
		report, err := loader.Run(ctx, f)
		progress.Finish()
		if err != nil {
			ce := classify(err)
			if report != nil {
				w.Warn("Load stopped. Resume with --skip %d", report.Resume)
				ce.Data = report
			}
			return ce
		}
		if err := w.Report(report, report.Summary()); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		return nil
	},
}

func init() {
	loadCmd.Flags().String("admin", "", "User identifier that authors pull request sync jobs (required)")
	loadCmd.Flags().String("ids", "", "JSON object mapping identifiers once more while loading")
	loadCmd.Flags().Bool("dry-run", false, "Parse and rewrite every record without writing")
	loadCmd.Flags().Int("skip", 0, "Skip the first N records (resume an interrupted load)")
	loadCmd.Flags().Int(config.KeyLoadRate, 0, "Limit reading the record file to this many bytes per second")
	loadCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	_ = loadCmd.MarkFlagRequired("admin")
	rootCmd.AddCommand(loadCmd)
}
