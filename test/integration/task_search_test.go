package integration

import (
	"context"
	"testing"
	"time"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/domain/task"
	"github.com/erx/erx/internal/platform/search"
)

func taskSearchArguments(t *testing.T, query string) *search.Arguments {
	t.Helper()
	args := search.New(
		search.Parameter{Name: "authored-on", Column: "authored_on", Type: search.Date},
		search.Parameter{Name: "modified", Column: "last_modified", Type: search.Date},
		search.Parameter{Name: "status", Column: "status", Type: search.TaskStatus, Statuses: task.SearchStatuses()},
	)
	pairs, err := search.ParseQuery(query)
	if err != nil {
		t.Fatalf("ParseQuery(%q): %v", query, err)
	}
	if err := args.Parse(context.Background(), pairs, nil); err != nil {
		t.Fatalf("Parse(%q): %v", query, err)
	}
	return args
}

func TestTaskSearchAgainstStoredRows(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	repo := taskRepo(t, prescription.FlowTypeStatutory)

	kvnr := newPseudonym()
	january := createActivatedTask(t, ctx, repo, kvnr, time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC))
	february := createActivatedTask(t, ctx, repo, kvnr, time.Date(2024, 2, 15, 8, 0, 0, 0, time.UTC))
	march := createActivatedTask(t, ctx, repo, kvnr, time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC))

	// The March task is in progress, and a fourth task is cancelled and must
	// never appear in a patient listing.
	now := time.Date(2024, 3, 21, 8, 0, 0, 0, time.UTC)
	if err := repo.UpdateTaskStatusAndSecret(ctx, march, task.StatusInProgress, now, blob("secret-ct")); err != nil {
		t.Fatalf("transition march task: %v", err)
	}
	cancelled := createActivatedTask(t, ctx, repo, kvnr, time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC))
	if err := repo.UpdateTaskStatusAndSecret(ctx, cancelled, task.StatusCancelled, now, nil); err != nil {
		t.Fatalf("cancel fourth task: %v", err)
	}

	listIDs := func(t *testing.T, args *search.Arguments) []prescription.ID {
		t.Helper()
		tasks, err := repo.RetrieveAllTasksForPatient(ctx, kvnr, args)
		if err != nil {
			t.Fatalf("retrieve tasks: %v", err)
		}
		ids := make([]prescription.ID, len(tasks))
		for i, tk := range tasks {
			ids[i] = tk.ID
		}
		return ids
	}
	wantIDs := func(t *testing.T, got, want []prescription.ID) {
		t.Helper()
		if len(got) != len(want) {
			t.Fatalf("got %d tasks %v, want %d %v", len(got), got, len(want), want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("task %d = %s, want %s", i, got[i], want[i])
			}
		}
	}
	wantCount := func(t *testing.T, args *search.Arguments, want int) {
		t.Helper()
		count, err := repo.CountAllTasksForPatient(ctx, kvnr, args)
		if err != nil {
			t.Fatalf("count tasks: %v", err)
		}
		if count != want {
			t.Fatalf("count = %d, want %d", count, want)
		}
	}

	t.Run("unfiltered listing excludes cancelled", func(t *testing.T) {
		wantIDs(t, listIDs(t, nil), []prescription.ID{january, february, march})
		wantCount(t, nil, 3)
	})

	t.Run("ge keeps everything from the period start", func(t *testing.T) {
		args := taskSearchArguments(t, "authored-on=ge2024-02-01")
		wantIDs(t, listIDs(t, args), []prescription.ID{february, march})
		wantCount(t, args, 2)
	})

	t.Run("month value matches its whole period", func(t *testing.T) {
		args := taskSearchArguments(t, "authored-on=2024-02")
		wantIDs(t, listIDs(t, args), []prescription.ID{february})
	})

	t.Run("lt ends before the period start", func(t *testing.T) {
		args := taskSearchArguments(t, "authored-on=lt2024-02-01")
		wantIDs(t, listIDs(t, args), []prescription.ID{january})
	})

	t.Run("status name is translated to the stored form", func(t *testing.T) {
		args := taskSearchArguments(t, "status=in-progress")
		wantIDs(t, listIDs(t, args), []prescription.ID{march})
	})

	t.Run("unknown parameter names are dropped", func(t *testing.T) {
		args := taskSearchArguments(t, "frobnicate=x&authored-on=ge2024-02-01")
		wantIDs(t, listIDs(t, args), []prescription.ID{february, march})
	})

	t.Run("descending sort is honored", func(t *testing.T) {
		args := taskSearchArguments(t, "_sort=-authored-on")
		wantIDs(t, listIDs(t, args), []prescription.ID{march, february, january})
	})
}
