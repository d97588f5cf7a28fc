package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/stagebridge/internal/store"
)

func TestSessionStoreLifecycle(t *testing.T) {
	t.Parallel()

	repo := NewSessionStore()
	ctx := context.Background()
	id := uuid.New()
	start := time.Unix(1700000000, 0).UTC()

	if err := repo.UpsertSessionStart(ctx, id, start); err != nil {
		t.Fatalf("UpsertSessionStart() error = %v", err)
	}
	if err := repo.UpsertSessionStart(ctx, id, start.Add(time.Minute)); err != nil {
		t.Fatalf("UpsertSessionStart() repeat error = %v", err)
	}
	run, err := repo.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if run.Status != store.SessionRunning || !run.StartedAt.Equal(start) || run.FinishedAt != nil {
		t.Fatalf("unexpected running session %+v", run)
	}

	msg := "stage b: boom"
	for _, stage := range []store.StageRun{
		{SessionID: id, Stage: "b", Seq: 5, Status: store.StageFailed, ErrorMessage: &msg},
		{SessionID: id, Stage: "a", Seq: 3, Status: store.StageDone},
	} {
		if err := repo.RecordStage(ctx, stage); err != nil {
			t.Fatalf("RecordStage() error = %v", err)
		}
	}
	msg = "mutated"
	stages, err := repo.ListStages(ctx, id, 0, 0)
	if err != nil {
		t.Fatalf("ListStages() error = %v", err)
	}
	if len(stages) != 2 || stages[0].Stage != "a" || stages[1].Stage != "b" {
		t.Fatalf("expected stages ordered by seq, got %+v", stages)
	}
	if *stages[1].ErrorMessage != "stage b: boom" {
		t.Fatalf("expected stored error message to be a copy, got %q", *stages[1].ErrorMessage)
	}

	if err := repo.CompleteSession(ctx, id, start.Add(time.Hour), store.SessionSuccess, 6, nil); err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}
	final, err := repo.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if final.Status != store.SessionSuccess || final.FinishedAt == nil || final.Events != 6 {
		t.Fatalf("expected completed session, got %+v", final)
	}
}

func TestSessionStoreGetMissing(t *testing.T) {
	t.Parallel()

	_, err := NewSessionStore().GetSession(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionStoreListFiltersAndPages(t *testing.T) {
	t.Parallel()

	repo := NewSessionStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = uuid.New()
		if err := repo.UpsertSessionStart(ctx, ids[i], base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("UpsertSessionStart() error = %v", err)
		}
	}
	if err := repo.CompleteSession(ctx, ids[0], base.Add(time.Hour), store.SessionFailed, 7, nil); err != nil {
		t.Fatalf("CompleteSession() error = %v", err)
	}

	all, err := repo.ListSessions(ctx, nil, 2, 1)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != ids[2] || all[1].ID != ids[1] {
		t.Fatalf("expected newest-first page [2,1], got %+v", all)
	}

	failed := store.SessionFailed
	onlyFailed, err := repo.ListSessions(ctx, &failed, 10, 0)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(onlyFailed) != 1 || onlyFailed[0].ID != ids[0] {
		t.Fatalf("expected single failed session, got %+v", onlyFailed)
	}

	empty, err := repo.ListSessions(ctx, nil, 10, 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page, got %+v err=%v", empty, err)
	}
}
