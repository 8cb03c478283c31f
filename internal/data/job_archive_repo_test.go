package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/cashier/internal/domain/model"
	apperrors "github.com/target/cashier/internal/errors"
	"github.com/target/cashier/internal/testutil"
)

func finishedRecord(id string, status model.JobStatus) model.JobRecord {
	created := testutil.TestTime()
	started := created.Add(time.Second)
	finished := created.Add(5 * time.Second)
	rec := model.JobRecord{
		ID:           id,
		Kind:         model.JobKindDeposit,
		Status:       status,
		CreatedAt:    created,
		StartedAt:    &started,
		FinishedAt:   &finished,
		ArtifactRefs: []string{"s3://artifacts/jobs/" + id + "/01-submit.png"},
		StepHistory: []model.StepResult{
			{Name: "authenticate", Status: model.StepStatusOK, StartedAt: started, FinishedAt: started},
		},
	}
	if status == model.JobStatusSucceeded {
		rec.Result = json.RawMessage(`{"kind":"deposit","target":"pruebita","amount":100}`)
	} else {
		rec.Error = testutil.StringPtr("step failed: submit")
		rec.ErrorCode = string(apperrors.ErrCodeStep)
	}
	return rec
}

func TestJobArchiveRepo_SaveAndGet(t *testing.T) {
	testutil.WithEphemeralDB(t, func(db *sql.DB) {
		repo := NewJobArchiveRepo(db)
		ctx := context.Background()

		rec := finishedRecord("job-ok", model.JobStatusSucceeded)
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Get(ctx, "job-ok")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, model.JobStatusSucceeded, got.Status)
		assert.WithinDuration(t, *rec.FinishedAt, *got.FinishedAt, time.Millisecond)
		assert.Equal(t, rec.ArtifactRefs, got.ArtifactRefs)
		require.Len(t, got.StepHistory, 1)
		assert.Equal(t, "authenticate", got.StepHistory[0].Name)
		assert.JSONEq(t, string(rec.Result), string(got.Result))
		assert.Nil(t, got.Error)
	})
}

func TestJobArchiveRepo_Upsert(t *testing.T) {
	testutil.WithEphemeralDB(t, func(db *sql.DB) {
		repo := NewJobArchiveRepo(db)
		ctx := context.Background()

		require.NoError(t, repo.Save(ctx, finishedRecord("job-1", model.JobStatusFailed)))
		expired := finishedRecord("job-1", model.JobStatusFailed)
		expired.Status = model.JobStatusExpired
		require.NoError(t, repo.Save(ctx, expired))

		got, err := repo.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusExpired, got.Status)
		assert.Equal(t, string(apperrors.ErrCodeStep), got.ErrorCode)
		require.NotNil(t, got.Error)
		assert.Equal(t, "step failed: submit", *got.Error)
		assert.Nil(t, got.Result)
	})
}

func TestJobArchiveRepo_GetMissing(t *testing.T) {
	testutil.WithEphemeralDB(t, func(db *sql.DB) {
		_, err := NewJobArchiveRepo(db).Get(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestJobArchiveRepo_DeleteFinishedBefore(t *testing.T) {
	testutil.WithEphemeralDB(t, func(db *sql.DB) {
		repo := NewJobArchiveRepo(db)
		ctx := context.Background()
		require.NoError(t, repo.Save(ctx, finishedRecord("old", model.JobStatusSucceeded)))

		n, err := repo.DeleteFinishedBefore(ctx, testutil.TestTime())
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = repo.DeleteFinishedBefore(ctx, testutil.TestTime().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestJobArchiveRepo_Guards(t *testing.T) {
	ctx := context.Background()
	var nilRepo *JobArchiveRepo
	assert.ErrorIs(t, nilRepo.Save(ctx, model.JobRecord{}), ErrArchiveNotConfigured)
	_, err := nilRepo.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrArchiveNotConfigured)

	repo := NewJobArchiveRepo(&sql.DB{})
	assert.ErrorIs(t, repo.Save(ctx, model.JobRecord{}), ErrJobIDRequired)
	_, err = repo.Get(ctx, "")
	assert.ErrorIs(t, err, ErrJobIDRequired)

	err = repo.Save(ctx, model.JobRecord{ID: "x", Status: model.JobStatusRunning})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")
}
