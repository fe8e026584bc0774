package statusapi

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/me/gridcwl/internal/report"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httptest.Server, *report.SQLiteStore) {
	t.Helper()
	store, err := report.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	srv := httptest.NewServer(New(store, testLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func TestListRunsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewClient(srv.URL)

	runs, err := client.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %v, want empty", runs)
	}
}

func TestGetRun(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t)

	run := &report.Run{
		ID:        "run-1",
		Workflow:  "reco.cwl",
		Status:    report.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	client := NewClient(srv.URL)
	got, err := client.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Workflow != "reco.cwl" || got.Status != report.StatusRunning {
		t.Errorf("run = %+v", got)
	}

	if _, err := client.GetRun(ctx, "missing"); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestPushAndListStatus(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t)

	run := &report.Run{ID: "run-2", Workflow: "sim.cwl", Status: report.StatusRunning, StartedAt: time.Now().UTC()}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	client := NewClient(srv.URL)
	err := client.PushStatus(ctx, "run-2", report.StatusUpdate{
		Step:        "simulate",
		Status:      report.StatusRunning,
		Minor:       report.MinorApplication,
		Application: "Gauss",
		Source:      "JobWrapper",
	})
	if err != nil {
		t.Fatalf("PushStatus: %v", err)
	}

	updates, err := client.ListStatus(ctx, "run-2")
	if err != nil {
		t.Fatalf("ListStatus: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	u := updates[0]
	if u.RunID != "run-2" || u.Step != "simulate" || u.Minor != report.MinorApplication {
		t.Errorf("update = %+v", u)
	}
	if u.Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}
}

func TestPushStatusRejectsEmptyStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewClient(srv.URL)

	err := client.PushStatus(context.Background(), "run-x", report.StatusUpdate{})
	if err == nil {
		t.Fatal("expected error for empty status")
	}
}
