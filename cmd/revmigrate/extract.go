package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/revmigrate/internal/extract"
	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
	"github.com/ALT-F4-LLC/revmigrate/internal/output"
	"github.com/ALT-F4-LLC/revmigrate/internal/recordio"
	"github.com/ALT-F4-LLC/revmigrate/internal/sanitize"
	"github.com/ALT-F4-LLC/revmigrate/internal/uploads"
)

var extractCmd = &cobra.Command{
	Use:   "extract <repos.json>",
	Short: "Extract every entity reachable from a list of repositories",
	Long: `Extract reads a JSON array of "owner/repo" names and writes the
organizations, repositories, rules, reviews, review maps and users they
reach to a record file, one JSON array per line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)
		log := getLog(cmd)
		ctx := cmd.Context()

		outPath, _ := cmd.Flags().GetString("out")
		idsPath, _ := cmd.Flags().GetString("ids")
		orgsPath, _ := cmd.Flags().GetString("orgs")
		downloads, _ := cmd.Flags().GetString("downloads")

		if downloads != "" && cfg.UploadsURL == "" {
			return cmdErr(fmt.Errorf("--downloads needs an uploads URL (--uploads-url)"), output.ErrValidation)
		}

		repos, err := extract.LoadRepos(args[0])
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		rules, err := sanitize.LoadRules(cfg.Exclusions)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		progress := w.Progress("extract", 0)
		var ids *ident.Mapper
		if idsPath != "" {
			m, err := ident.LoadMap(idsPath)
			if err != nil {
				return cmdErr(err, output.ErrValidation)
			}
			ids = ident.New(m, ident.WithGhost(cfg.Ghost))
		} else {
			ids = ident.NewIdentity(ident.WithGhost(cfg.Ghost), ident.OnDiscover(func(string) {
				progress.AddTotal(1)
			}))
		}

		var orgNames map[string]string
		if orgsPath != "" {
			if orgNames, err = ident.LoadOrgMap(orgsPath); err != nil {
				return cmdErr(err, output.ErrValidation)
			}
		}
		orgs := ident.NewOrgMapper(orgNames)

		var (
			dl    *uploads.Downloader
			sched uploads.Scheduler
		)
		if downloads != "" {
			if err := os.MkdirAll(downloads, 0o755); err != nil {
				return cmdErr(fmt.Errorf("creating download directory: %w", err), output.ErrGeneral)
			}
			dl = uploads.NewDownloader(ctx, downloads, cfg.UploadsURL, cfg.Concurrency, log)
			sched = dl
		}
		san := sanitize.New(rules, ids, orgs, uploads.NewSwapper(cfg.UploadsURL, sched))

		src, err := openStore(cfg, log)
		if err != nil {
			return cmdErr(fmt.Errorf("opening source store: %w", err), output.ErrGeneral)
		}
		defer src.Close()

		f, err := os.Create(outPath)
		if err != nil {
			return cmdErr(fmt.Errorf("creating %s: %w", outPath, err), output.ErrGeneral)
		}
		defer f.Close()
		buf := bufio.NewWriterSize(f, 1<<20)

		log.Info("extracting", zap.Int("repos", len(repos)), zap.String("out", outPath), zap.Bool("identity", ids.Identity()))
		walker := extract.New(src, recordio.NewWriter(buf), ids, orgs, san, extract.Options{
			Repos:       repos,
			Concurrency: cfg.Concurrency,
			Progress:    progress,
			Log:         log,
		})
		report, runErr := walker.Run(ctx)
		progress.Finish()

		if dl != nil {
			w.Info("Waiting for attachment downloads...")
			n, broken := dl.Wait()
			if report != nil {
				report.Downloaded, report.BrokenFiles = n, broken
			}
		}
		if err := buf.Flush(); err != nil && runErr == nil {
			runErr = fmt.Errorf("writing %s: %w", outPath, err)
		}
		if runErr != nil {
			ce := classify(runErr)
			if report != nil {
				ce.Data = report
			}
			return ce
		}
		if err := f.Close(); err != nil {
			return cmdErr(fmt.Errorf("closing %s: %w", outPath, err), output.ErrGeneral)
		}

		report.Output = outPath
		if err := w.Report(report, report.Summary()); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringP("out", "o", "records.jsonl", "Record file to write")
	extractCmd.Flags().String("ids", "", "JSON object mapping old user identifiers to new ones")
	extractCmd.Flags().String("orgs", "", "JSON object mapping old organization names to new ones")
	extractCmd.Flags().String("downloads", "", "Directory to download attachments into")
	rootCmd.AddCommand(extractCmd)
}
