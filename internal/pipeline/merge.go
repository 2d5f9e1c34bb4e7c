package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/returns-etl/internal/corpus"
	"github.com/JonMunkholm/returns-etl/internal/exceptions"
)

// Runner orchestrates the whole corpus: per-file pipelines fan out over a
// bounded worker pool, then the merger concatenates results in file-id
// order so output is deterministic regardless of scheduling.
type Runner struct {
	Root    string // corpus root; manifest paths are relative to it
	Workers int
	Log     *slog.Logger
}

// FileFailure records one file's fatal error. Failed files are reported,
// never silently dropped from the corpus.
type FileFailure struct {
	FileID string
	Err    error
}

// RunReport is the outcome of one corpus run. Every manifest id appears in
// exactly one of Processed, Failures, or Excluded.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Processed []string
	Failures  []FileFailure
	Excluded  []corpus.Exclusion
	Table     *MergedTable
}

// RowCount returns the number of merged long rows.
func (r *RunReport) RowCount() int {
	if r.Table == nil {
		return 0
	}
	return len(r.Table.Rows)
}

// Resolve turns a manifest entry into absolute input paths, selecting the
// registered sanitized substitute source when one exists.
func (r *Runner) Resolve(e corpus.Entry) FileSource {
	data := e.Data
	if ov, ok := exceptions.Lookup(e.ID); ok && ov.SubstituteSource != "" {
		data = ov.SubstituteSource
	}
	return FileSource{
		FileID:     e.ID,
		DataPath:   filepath.Join(r.Root, data),
		LayoutPath: filepath.Join(r.Root, e.Layout),
	}
}

// Run processes every manifest file and merges the results. Per-file errors
// are isolated: one file's failure never aborts the others, but it is
// recorded in the report. Run itself only fails on cancellation.
func (r *Runner) Run(ctx context.Context, m *corpus.Manifest) (*RunReport, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Excluded:  append([]corpus.Exclusion(nil), m.Excluded...),
	}
	log.Info("corpus run starting",
		"run_id", report.RunID,
		"files", len(m.Files),
		"excluded", len(m.Excluded),
		"workers", workers,
	)
	for _, x := range m.Excluded {
		log.Info("file excluded", "file_id", x.ID, "reason", x.Reason)
	}

	entries := m.Sorted()
	results := make([]*FileResult, len(entries))
	failures := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range entries {
		g.Go(func() error {
			res, err := ProcessFile(gctx, log, r.Resolve(entries[i]))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				log.Error("file failed", "file_id", entries[i].ID, "error", err)
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("corpus run cancelled: %w", err)
	}

	// Barrier reached: collect in manifest-id order.
	processed := make([]*FileResult, 0, len(entries))
	for i, e := range entries {
		if failures[i] != nil {
			report.Failures = append(report.Failures, FileFailure{FileID: e.ID, Err: failures[i]})
			continue
		}
		report.Processed = append(report.Processed, e.ID)
		processed = append(processed, results[i])
	}
	report.Table = Merge(processed)
	report.Duration = time.Since(report.StartedAt)

	log.Info("corpus run finished",
		"run_id", report.RunID,
		"processed", len(report.Processed),
		"failed", len(report.Failures),
		"excluded", len(report.Excluded),
		"rows", report.RowCount(),
		"flags", len(report.Table.Flags),
		"duration", report.Duration,
	)
	return report, nil
}

// presYearPattern matches a presidential-vote variable name and captures
// its election year.
var presYearPattern = regexp.MustCompile(`PRES[A-Z_]*?_(\d{4})`)

// Merge concatenates per-file results into the terminal table, auditing as
// it goes: duplicate (file, entity, variable) rows and presidential
// variables with a non-quadrennial year are flagged, preserved as-is, and
// never reclassified or dropped.
func Merge(results []*FileResult) *MergedTable {
	table := &MergedTable{}
	seen := make(map[string]bool)
	yearFlagged := make(map[string]bool)
	for _, res := range results {
		table.Flags = append(table.Flags, res.Flags...)
		for _, row := range res.Rows {
			key := row.SourceFile + "\x1f" + row.State + "\x1f" + row.UnitID + "\x1f" + row.UnitName + "\x1f" + row.VarID
			if seen[key] {
				table.Flags = append(table.Flags, QualityFlag{
					FileID: row.SourceFile,
					VarID:  row.VarID,
					Kind:   FlagDuplicateRow,
					Detail: fmt.Sprintf("duplicate entity row for unit %s/%s", row.State, row.UnitID),
				})
			}
			seen[key] = true

			varKey := row.SourceFile + "\x1f" + row.VarID
			if !yearFlagged[varKey] {
				if m := presYearPattern.FindStringSubmatch(row.Name); m != nil {
					if year, err := strconv.Atoi(m[1]); err == nil && year%4 != 0 {
						yearFlagged[varKey] = true
						table.Flags = append(table.Flags, QualityFlag{
							FileID: row.SourceFile,
							VarID:  row.VarID,
							Kind:   FlagAnomalousYear,
							Detail: fmt.Sprintf("presidential variable %s has non-quadrennial year %d", row.Name, year),
						})
					}
				}
			}

			table.Rows = append(table.Rows, row)
		}
	}
	return table
}
