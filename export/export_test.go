package export_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/drover/action"
	"github.com/hazyhaar/drover/export"
	"github.com/hazyhaar/drover/store"
)

func TestExport_WritesRunDocument(t *testing.T) {
	dir := t.TempDir()
	e := export.New(dir, nil)

	finished := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	run := store.Run{
		ID:         "run-1",
		WorkflowID: 7,
		Status:     action.StatusSuccess,
		StartedAt:  finished.Add(-3 * time.Second),
		FinishedAt: finished,
		Results: []action.Result{
			{Status: action.StatusSuccess, Message: "navigated to https://x", URL: "https://x"},
		},
	}

	path, err := e.Export(run)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "workflow_7_20260823_103000.json" {
		t.Fatalf("export path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got store.Run
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "run-1" || len(got.Results) != 1 || got.Results[0].URL != "https://x" {
		t.Fatalf("exported document = %+v", got)
	}
}

func TestExport_RejectsEmptyRun(t *testing.T) {
	e := export.New(t.TempDir(), nil)

	_, err := e.Export(store.Run{ID: "run-2", WorkflowID: 1})
	if !errors.Is(err, export.ErrEmptyRun) {
		t.Fatalf("got %v, want ErrEmptyRun", err)
	}
}
