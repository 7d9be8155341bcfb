package service

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quakelab/etasfit/pkg/fiterr"
	"github.com/quakelab/etasfit/pkg/fitter"
)

var log = logrus.WithField("component", "service")

const FitRunsTable = "etasfit_fit_runs"

// FitRunColumns are the columns written by FitRunService.Insert.
var FitRunColumns = []string{
	"run_id", "history", "mode", "status",
	"voxels", "sub_voxels", "threads",
	"completed", "elapsed",
	"mle_log_likelihood", "mle_b", "mle_alpha", "mle_c", "mle_p", "mle_productivity", "mle_branch_ratio",
	"created_at",
}

// FitRun records the outcome of one grid search.
type FitRun struct {
	GID int64 `json:"gid,omitempty" db:"gid"`

	RunID   string `json:"runID" db:"run_id"`
	History string `json:"history" db:"history"`
	Mode    string `json:"mode" db:"mode"`

	// Status is "ok" or the kind of the fit failure
	Status string `json:"status" db:"status"`

	Voxels    int `json:"voxels" db:"voxels"`
	SubVoxels int `json:"subVoxels" db:"sub_voxels"`
	Threads   int `json:"threads" db:"threads"`

	Completed float64 `json:"completed" db:"completed"`

	// Elapsed is in seconds
	Elapsed float64 `json:"elapsed" db:"elapsed"`

	MLELogLikelihood sql.NullFloat64 `json:"mleLogLikelihood" db:"mle_log_likelihood"`
	MLEB             float64         `json:"mleB" db:"mle_b"`
	MLEAlpha         float64         `json:"mleAlpha" db:"mle_alpha"`
	MLEC             float64         `json:"mleC" db:"mle_c"`
	MLEP             float64         `json:"mleP" db:"mle_p"`
	MLEProductivity  float64         `json:"mleProductivity" db:"mle_productivity"`
	MLEBranchRatio   float64         `json:"mleBranchRatio" db:"mle_branch_ratio"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// SetMLE copies the maximum likelihood voxel into the record.
func (r *FitRun) SetMLE(v *fitter.StatVoxel, logLikelihood float64) {
	r.MLELogLikelihood = sql.NullFloat64{Float64: logLikelihood, Valid: true}
	r.MLEB = v.B
	r.MLEAlpha = v.Alpha
	r.MLEC = v.C
	r.MLEP = v.P
	r.MLEProductivity = v.Productivity
	r.MLEBranchRatio = v.BranchRatio
}

// SetResult fills the status and completion from the error Run returned.
func (r *FitRun) SetResult(err error) {
	if err == nil {
		r.Status = "ok"
		r.Completed = 1
		return
	}

	r.Status = "error"
	if fe, ok := fiterr.AsFitError(err); ok {
		r.Status = fe.Kind.String()
		r.Completed = fe.Completed
	}
}

func (r *FitRun) values() []interface{} {
	return []interface{}{
		r.RunID, r.History, r.Mode, r.Status,
		r.Voxels, r.SubVoxels, r.Threads,
		r.Completed, r.Elapsed,
		r.MLELogLikelihood, r.MLEB, r.MLEAlpha, r.MLEC, r.MLEP, r.MLEProductivity, r.MLEBranchRatio,
		r.CreatedAt,
	}
}

type FitRunService struct {
	DB *sqlx.DB
}

func (s *FitRunService) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(GetDialect(s.DB.DriverName()).PlaceholderFormat())
}

func (s *FitRunService) Insert(ctx context.Context, run *FitRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query, args, err := s.builder().
		Insert(FitRunsTable).
		Columns(FitRunColumns...).
		Values(run.values()...).
		ToSql()
	if err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "unable to insert fit run %s", run.RunID)
	}

	if gid, err := res.LastInsertId(); err == nil {
		run.GID = gid
	}

	log.Infof("recorded fit run %s: %s, %d voxels", run.RunID, run.Status, run.Voxels)
	return nil
}

// Get returns the fit run of runID, or sql.ErrNoRows.
func (s *FitRunService) Get(ctx context.Context, runID string) (*FitRun, error) {
	query, args, err := s.builder().
		Select("*").
		From(FitRunsTable).
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var run FitRun
	if err := s.DB.GetContext(ctx, &run, query, args...); err != nil {
		return nil, err
	}
	return &run, nil
}

type FitRunQueryOptions struct {
	Status  string
	History string
	Since   time.Time
	Limit   uint64
}

// Query returns the matching fit runs, latest first.
func (s *FitRunService) Query(ctx context.Context, options FitRunQueryOptions) ([]FitRun, error) {
	var conds sq.And
	if options.Status != "" {
		conds = append(conds, sq.Eq{"status": options.Status})
	}
	if options.History != "" {
		conds = append(conds, sq.Eq{"history": options.History})
	}
	if !options.Since.IsZero() {
		conds = append(conds, sq.GtOrEq{"created_at": options.Since})
	}

	sel := s.builder().
		Select("*").
		From(FitRunsTable).
		OrderBy("created_at DESC", "gid DESC")
	if len(conds) > 0 {
		sel = sel.Where(conds)
	}
	if options.Limit > 0 {
		sel = sel.Limit(options.Limit)
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()
	return s.scanRows(rows)
}

func (s *FitRunService) scanRows(rows *sqlx.Rows) (runs []FitRun, err error) {
	for rows.Next() {
		var run FitRun
		if err := rows.StructScan(&run); err != nil {
			return runs, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}
