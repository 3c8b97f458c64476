// Package export writes recorded runs to disk as JSON documents for
// downstream consumers that do not speak to the database.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazyhaar/drover/store"
)

// ErrEmptyRun is returned when a run has no results to export.
var ErrEmptyRun = fmt.Errorf("export: run has no results")

// Exporter writes run documents into a single directory.
type Exporter struct {
	dir    string
	logger *slog.Logger
}

// New creates an Exporter rooted at dir. The directory is created on
// first export.
func New(dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, logger: logger}
}

// Export writes run as workflow_<workflowID>_<timestamp>.json and
// returns the written path. Runs without results are rejected so
// consumers never see empty documents.
func (e *Exporter) Export(run store.Run) (string, error) {
	if len(run.Results) == 0 {
		return "", ErrEmptyRun
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("export: mkdir %s: %w", e.dir, err)
	}

	name := fmt.Sprintf("workflow_%d_%s.json", run.WorkflowID,
		run.FinishedAt.UTC().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: encode run %s: %w", run.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("export: write %s: %w", path, err)
	}

	e.logger.Info("export: wrote run", "run_id", run.ID, "path", path, "results", len(run.Results))
	return path, nil
}
