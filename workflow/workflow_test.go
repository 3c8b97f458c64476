package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/drover/action"
	"github.com/hazyhaar/drover/workflow"
)

type fakeStore struct {
	steps []workflow.Step
	err   error
}

func (s *fakeStore) LoadSteps(ctx context.Context, workflowID int64) ([]workflow.Step, error) {
	return s.steps, s.err
}

type recordingRunner struct {
	got     []action.Descriptor
	results []action.Result
}

func (r *recordingRunner) ExecuteWorkflow(ctx context.Context, descs []action.Descriptor) []action.Result {
	r.got = descs
	return r.results
}

func TestRun_SortsByOrderStable(t *testing.T) {
	store := &fakeStore{steps: []workflow.Step{
		{ID: 10, Order: 2, Action: action.Descriptor{Verb: action.VerbClick, Selector: "#second"}},
		{ID: 11, Order: 1, Action: action.Descriptor{Verb: action.VerbGoto, Value: "https://example.com"}},
		// Two steps share order 2; load order must be preserved.
		{ID: 12, Order: 2, Action: action.Descriptor{Verb: action.VerbClick, Selector: "#third"}},
	}}
	runner := &recordingRunner{}
	eng := workflow.New(store, runner, nil)

	if _, err := eng.Run(context.Background(), 7); err != nil {
		t.Fatal(err)
	}

	want := []string{"", "#second", "#third"}
	if len(runner.got) != 3 {
		t.Fatalf("runner got %d descriptors", len(runner.got))
	}
	for i, sel := range want {
		if runner.got[i].Selector != sel {
			t.Fatalf("descriptor %d selector = %q, want %q", i, runner.got[i].Selector, sel)
		}
	}
	if runner.got[0].Verb != action.VerbGoto {
		t.Fatal("order-1 step did not come first")
	}
}

func TestRun_PassesResultsThrough(t *testing.T) {
	store := &fakeStore{steps: []workflow.Step{
		{ID: 1, Order: 1, Action: action.Descriptor{Verb: action.VerbGoto, Value: "https://example.com"}},
	}}
	want := []action.Result{{Status: action.StatusError, Message: "boom"}}
	runner := &recordingRunner{results: want}
	eng := workflow.New(store, runner, nil)

	got, err := eng.Run(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Message != "boom" {
		t.Fatalf("results = %+v, want runner's ledger verbatim", got)
	}
}

func TestRun_LoadFailure(t *testing.T) {
	cause := errors.New("no such workflow")
	eng := workflow.New(&fakeStore{err: cause}, &recordingRunner{}, nil)

	_, err := eng.Run(context.Background(), 42)
	if !errors.Is(err, cause) {
		t.Fatalf("got %v, want wrapped load error", err)
	}
}
