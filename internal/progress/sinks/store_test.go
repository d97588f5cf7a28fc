package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stagebridge/internal/progress"
	"github.com/JakeFAU/stagebridge/internal/store"
)

// TestStoreSinkPersistsRecords ensures lifecycle records map onto repository calls.
func TestStoreSinkPersistsRecords(t *testing.T) {
	t.Parallel()

	repo := &fakeSessionRepo{}
	sink := NewStoreSink(repo, nil)
	sessionUUID := uuid.New()

	require.NoError(t, sink.Consume(context.Background(), sessionRecords(progress.UUIDToBytes(sessionUUID), time.Now())))

	require.Equal(t, []uuid.UUID{sessionUUID}, repo.starts)
	require.Len(t, repo.stages, 2)
	require.Equal(t, "a", repo.stages[0].Stage)
	require.Equal(t, store.StageDone, repo.stages[0].Status)
	require.Nil(t, repo.stages[0].ErrorMessage)
	require.Equal(t, store.StageFailed, repo.stages[1].Status)
	require.Equal(t, "stage b: boom", *repo.stages[1].ErrorMessage)
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.SessionSuccess, repo.completes[0].status)
	require.Equal(t, int64(6), repo.completes[0].events)
}

func TestStoreSinkMapsResults(t *testing.T) {
	t.Parallel()

	require.Equal(t, store.SessionSuccess, sessionStatus(progress.ResultSuccess))
	require.Equal(t, store.SessionFailed, sessionStatus(progress.ResultFailed))
	require.Equal(t, store.SessionCanceled, sessionStatus(progress.ResultCanceled))
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeSessionRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Record{
		{SessionID: progress.UUIDToBytes(uuid.New()), Kind: progress.KindSessionStart, TS: time.Now()},
	})
	require.ErrorContains(t, err, "upsert session start")
}

func TestStoreSinkNilRepository(t *testing.T) {
	t.Parallel()

	var sink *StoreSink
	require.NoError(t, sink.Consume(context.Background(), nil))
}

type completeCall struct {
	id     uuid.UUID
	status store.SessionStatus
	events int64
	errMsg *string
}

type fakeSessionRepo struct {
	fail      bool
	starts    []uuid.UUID
	stages    []store.StageRun
	completes []completeCall
}

func (f *fakeSessionRepo) UpsertSessionStart(_ context.Context, id uuid.UUID, _ time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.starts = append(f.starts, id)
	return nil
}

func (f *fakeSessionRepo) CompleteSession(
	_ context.Context,
	id uuid.UUID,
	_ time.Time,
	status store.SessionStatus,
	events int64,
	errMsg *string,
) error {
	if f.fail {
		return assertErr("complete")
	}
	f.completes = append(f.completes, completeCall{id: id, status: status, events: events, errMsg: errMsg})
	return nil
}

func (f *fakeSessionRepo) RecordStage(_ context.Context, run store.StageRun) error {
	if f.fail {
		return assertErr("stage")
	}
	f.stages = append(f.stages, run)
	return nil
}

func (f *fakeSessionRepo) GetSession(context.Context, uuid.UUID) (store.SessionRun, error) {
	return store.SessionRun{}, assertErr("read")
}

func (f *fakeSessionRepo) ListSessions(context.Context, *store.SessionStatus, int, int) ([]store.SessionRun, error) {
	return nil, assertErr("list")
}

func (f *fakeSessionRepo) ListStages(context.Context, uuid.UUID, int, int) ([]store.StageRun, error) {
	return nil, assertErr("stages")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
