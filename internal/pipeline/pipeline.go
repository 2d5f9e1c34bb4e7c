package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/returns-etl/internal/exceptions"
	"github.com/JonMunkholm/returns-etl/internal/fixedwidth"
	"github.com/JonMunkholm/returns-etl/internal/layout"
)

// FileSource is one dataset's resolved input paths. DataPath already points
// at the sanitized substitute when one is registered; that selection is the
// orchestrator's job, never the reader's.
type FileSource struct {
	FileID     string
	DataPath   string
	LayoutPath string
}

// ProcessFile runs the per-file pipeline: parse layout, reconcile with the
// registered override, read the fixed-width text, normalize identifier
// missing codes, reshape to long form. Each stage returns a new value; no
// shared state survives between files.
func ProcessFile(ctx context.Context, log *slog.Logger, src FileSource) (*FileResult, error) {
	start := time.Now()
	log = log.With("file_id", src.FileID)

	desc, err := layout.Parse(src.LayoutPath, src.FileID)
	if err != nil {
		return nil, err
	}

	ov, registered := exceptions.Lookup(src.FileID)
	if registered {
		log.Info("applying registered override", "reason", ov.Reason)
	}
	sch, flags := Reconcile(desc, ov)
	if err := sch.Validate(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := fixedwidth.ReadFile(src.DataPath, sch)
	if err != nil {
		return nil, err
	}
	if err := verifyRows(src.FileID, rows, sch); err != nil {
		return nil, err
	}

	rows = NormalizeIdentifiers(rows, sch, DefaultIdentifiers)
	long := Reshape(src.FileID, rows, sch, DefaultIdentifiers)

	log.Info("file processed",
		"wide_rows", len(rows),
		"long_rows", len(long),
		"flags", len(flags),
		"duration", time.Since(start),
	)

	return &FileResult{
		FileID:   src.FileID,
		Rows:     long,
		Flags:    flags,
		WideRows: len(rows),
		Duration: time.Since(start),
	}, nil
}
