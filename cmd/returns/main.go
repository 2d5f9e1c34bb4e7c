// Command returns is the batch ETL driver for the election-returns corpus:
// it parses each file's layout descriptor, reads the fixed-width raw text,
// applies registered per-file fixes, reshapes to long form, and merges
// everything into one table.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/returns-etl/internal/config"
	"github.com/JonMunkholm/returns-etl/internal/corpus"
	"github.com/JonMunkholm/returns-etl/internal/exceptions"
	"github.com/JonMunkholm/returns-etl/internal/export"
	"github.com/JonMunkholm/returns-etl/internal/logging"
	"github.com/JonMunkholm/returns-etl/internal/pipeline"
	"github.com/JonMunkholm/returns-etl/internal/warehouse"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "returns",
		Short:         "Batch ETL for the fixed-width election-returns corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load .env file if it exists (Overload overwrites existing env vars)
			if err := godotenv.Overload(); err == nil {
				slog.Info("loaded .env file (overwriting existing env vars)")
			}

			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			slog.Debug("configuration loaded", "config", cfg.String())
			return nil
		},
	}

	root.AddCommand(
		newRunCmd(&cfg),
		newFileCmd(&cfg),
		newManifestCmd(&cfg),
		newLoadCmd(&cfg),
	)
	return root
}

// runCorpus executes the full pipeline for the configured corpus.
func runCorpus(ctx context.Context, cfg *config.Config) (*pipeline.RunReport, error) {
	m, err := corpus.Load(cfg.Corpus.ManifestPath())
	if err != nil {
		return nil, err
	}
	runner := &pipeline.Runner{
		Root:    cfg.Corpus.Root,
		Workers: cfg.Pipeline.Workers,
		Log:     slog.Default(),
	}
	runCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.Timeout)
	defer cancel()
	return runner.Run(runCtx, m)
}

func reportFailures(report *pipeline.RunReport) error {
	for _, f := range report.Failures {
		slog.Error("file failed", "file_id", f.FileID, "error", f.Err)
	}
	if n := len(report.Failures); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, n+len(report.Processed))
	}
	return nil
}

func newRunCmd(cfg **config.Config) *cobra.Command {
	var outPath, flagsPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the whole corpus and export the merged table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := runCorpus(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			if err := export.WriteFile(outPath, report.Table); err != nil {
				return err
			}
			slog.Info("merged table written", "path", outPath, "rows", report.RowCount())
			if flagsPath != "" {
				f, err := os.Create(flagsPath)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := export.WriteFlags(f, report.Table.Flags); err != nil {
					return err
				}
				slog.Info("quality flags written", "path", flagsPath, "flags", len(report.Table.Flags))
			}
			return reportFailures(report)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "merged.csv", "output path for the merged table")
	cmd.Flags().StringVar(&flagsPath, "flags", "", "optional output path for quality flags")
	return cmd
}

func newFileCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "file <id>",
		Short: "Process a single corpus file and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			m, err := corpus.Load(c.Corpus.ManifestPath())
			if err != nil {
				return err
			}
			entry, ok := m.Lookup(args[0])
			if !ok {
				return fmt.Errorf("file id %q not in manifest", args[0])
			}
			runner := &pipeline.Runner{Root: c.Corpus.Root, Log: slog.Default()}
			res, err := pipeline.ProcessFile(cmd.Context(), slog.Default(), runner.Resolve(entry))
			if err != nil {
				return err
			}
			fmt.Printf("file %s: %d wide rows, %d long rows, %d flags (%s)\n",
				res.FileID, res.WideRows, len(res.Rows), len(res.Flags), res.Duration.Round(1e6))
			for _, f := range res.Flags {
				fmt.Printf("  [%s] %s %s\n", f.Kind, f.VarID, f.Detail)
			}
			return nil
		},
	}
}

func newManifestCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Validate and list the corpus manifest",
		RunE: func(_ *cobra.Command, _ []string) error {
			c := *cfg
			m, err := corpus.Load(c.Corpus.ManifestPath())
			if err != nil {
				return err
			}
			fmt.Printf("%d files, %d excluded, %d registered overrides\n",
				len(m.Files), len(m.Excluded), exceptions.Count())
			for _, e := range m.Sorted() {
				line := fmt.Sprintf("  %s  data=%s layout=%s", e.ID, e.Data, e.Layout)
				if ov, ok := exceptions.Lookup(e.ID); ok {
					line += fmt.Sprintf("  [override: %s]", ov.Reason)
				}
				fmt.Println(line)
			}
			for _, x := range m.Excluded {
				fmt.Printf("  %s  excluded: %s\n", x.ID, x.Reason)
			}
			return nil
		},
	}
}

func newLoadCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Process the whole corpus and bulk-load it into the warehouse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := *cfg
			if c.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required for load")
			}

			poolConfig, err := pgxpool.ParseConfig(c.Database.URL)
			if err != nil {
				return fmt.Errorf("parse database URL: %w", err)
			}
			poolConfig.MaxConns = int32(c.Database.MaxConns)
			poolConfig.MinConns = int32(c.Database.MinConns)

			ctx := cmd.Context()
			pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			report, err := runCorpus(ctx, c)
			if err != nil {
				return err
			}

			sink := warehouse.NewSink(pool, c.Database.BatchSize, slog.Default())
			if err := sink.EnsureSchema(ctx); err != nil {
				return err
			}
			loaded, err := sink.LoadRun(ctx, report)
			if err != nil {
				return err
			}
			slog.Info("warehouse load complete", "run_id", report.RunID, "rows", loaded)
			return reportFailures(report)
		},
	}
}
