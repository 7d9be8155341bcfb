package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/fitter"
)

func prepareMock(t *testing.T, driver string) (*FitRunService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &FitRunService{DB: sqlx.NewDb(db, driver)}, mock
}

func testFitRun() *FitRun {
	run := &FitRun{
		RunID:     "4b7c0c4e-7a43-4c1e-9d2f-0b5f3c8e2a11",
		History:   "ridgecrest.yaml",
		Mode:      "quad",
		Voxels:    24,
		SubVoxels: 6,
		Threads:   4,
		Elapsed:   1.25,
		CreatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	run.SetResult(nil)
	run.SetMLE(&fitter.StatVoxel{GridPoint: fitter.GridPoint{
		B: 1.0, Alpha: 1.0, C: 0.01, P: 1.1, Productivity: 0.02, BranchRatio: 0.5,
	}}, -123.5)
	return run
}

func TestFitRun_SetResult(t *testing.T) {
	var run FitRun
	run.SetResult(&fiterr.FitError{Kind: fiterr.Timeout, Completed: 0.4})
	assert.Equal(t, "timeout", run.Status)
	assert.Equal(t, 0.4, run.Completed)

	run.SetResult(sql.ErrConnDone)
	assert.Equal(t, "error", run.Status)

	run.SetResult(nil)
	assert.Equal(t, "ok", run.Status)
	assert.Equal(t, 1.0, run.Completed)
}

func TestFitRunService_Insert(t *testing.T) {
	service, mock := prepareMock(t, "mysql")
	run := testFitRun()

	mock.ExpectExec(`INSERT INTO etasfit_fit_runs \(run_id,history,mode,status`).
		WithArgs(
			run.RunID, "ridgecrest.yaml", "quad", "ok",
			24, 6, 4,
			1.0, 1.25,
			-123.5, 1.0, 1.0, 0.01, 1.1, 0.02, 0.5,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(7, 1))

	require.NoError(t, service.Insert(context.Background(), run))
	assert.Equal(t, int64(7), run.GID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFitRunService_Query(t *testing.T) {
	service, mock := prepareMock(t, "mysql")
	run := testFitRun()

	rows := sqlmock.NewRows(append([]string{"gid"}, FitRunColumns...)).
		AddRow(append([]driver.Value{int64(7)},
			run.RunID, run.History, run.Mode, run.Status,
			int64(24), int64(6), int64(4),
			1.0, 1.25,
			-123.5, 1.0, 1.0, 0.01, 1.1, 0.02, 0.5,
			run.CreatedAt)...).
		AddRow(append([]driver.Value{int64(6)},
			"a1", run.History, "cp", "timeout",
			int64(24), int64(6), int64(1),
			0.25, 90.0,
			nil, 0.0, 0.0, 0.0, 0.0, 0.0, 0.0,
			run.CreatedAt.Add(-time.Hour))...)

	mock.ExpectQuery(`SELECT \* FROM etasfit_fit_runs WHERE \(status = \? AND history = \?\) ORDER BY created_at DESC, gid DESC LIMIT 5`).
		WithArgs("ok", "ridgecrest.yaml").
		WillReturnRows(rows)

	runs, err := service.Query(context.Background(), FitRunQueryOptions{
		Status:  "ok",
		History: "ridgecrest.yaml",
		Limit:   5,
	})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, int64(7), runs[0].GID)
	assert.Equal(t, run.RunID, runs[0].RunID)
	assert.True(t, runs[0].MLELogLikelihood.Valid)
	assert.Equal(t, -123.5, runs[0].MLELogLikelihood.Float64)
	assert.Equal(t, 1.1, runs[0].MLEP)
	assert.True(t, run.CreatedAt.Equal(runs[0].CreatedAt))

	assert.Equal(t, "timeout", runs[1].Status)
	assert.False(t, runs[1].MLELogLikelihood.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFitRunService_Get(t *testing.T) {
	service, mock := prepareMock(t, "postgres")

	mock.ExpectQuery(`SELECT \* FROM etasfit_fit_runs WHERE run_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(append([]string{"gid"}, FitRunColumns...)))

	_, err := service.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDialect(t *testing.T) {
	for driver, quote := range map[string]string{
		"mysql":    "`",
		"postgres": `"`,
		"sqlite3":  "`",
	} {
		d := GetDialect(driver)
		ddl := d.FitRunsTableSQL()
		assert.Contains(t, ddl, "etasfit_fit_runs")
		for _, c := range FitRunColumns {
			assert.Contains(t, ddl, quote+c+quote, "%s %s", driver, c)
		}
	}
}
