package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"staypermit/internal/components/assert"
	"staypermit/internal/components/telemetry"
	"staypermit/internal/portal"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

const (
	report_db_query = "db.query"
	report_save_run = "store.save-run"
)

// MakeTx is a function that creates a db transaction
type MakeTx = func() (tx *Queries, discard, commit func() error, err error)

func NewMakeTx(db *sql.DB) MakeTx {
	return func() (tx *Queries, discard, commit func() error, err error) {
		sqltx, err := db.Begin()
		if err != nil {
			return nil, nil, nil, err
		}
		return New(sqltx),
			func() error {
				return sqltx.Rollback()
			},
			func() error {
				return sqltx.Commit()
			},
			nil
	}
}

// Store keeps the history of runs and the latest known state of every
// application in sqlite.
type Store struct {
	db     *sql.DB
	qry    *Queries
	makeTx MakeTx
	tel    telemetry.API
}

// Open opens (and creates) the database at path, ":memory:" works for tests.
func Open(ctx context.Context, path string, tel telemetry.API) (Store, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("store", tel)

	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return Store{}, err
	}
	// a second connection to :memory: would open a different database
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, Schema)
	if err != nil {
		db.Close()
		return Store{}, fmt.Errorf("apply schema: %w", err)
	}

	return Store{
		db:     db,
		qry:    New(db),
		makeTx: NewMakeTx(db),
		tel:    tel,
	}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) Queries() *Queries {
	return s.qry
}

func outcomeOf(runErr error) string {
	switch {
	case runErr == nil:
		return "ok"
	case errors.Is(runErr, portal.ErrNothingExtracted):
		return "nothing"
	default:
		return runErr.Error()
	}
}

// SaveRun records a run, its per category outcomes and upserts every record
// it produced, all in one transaction.
func (s Store) SaveRun(ctx context.Context, report portal.Report, runErr error) (int64, error) {
	tx, discard, commit, err := s.makeTx()
	if err != nil {
		s.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return 0, err
	}
	defer discard()

	runID, err := tx.CreateRun(ctx, CreateRunParams{
		StartedAt:  report.Started.Unix(),
		FinishedAt: report.Finished.Unix(),
		Records:    int64(report.Records.Len()),
		Observed:   int64(report.Stats.Observed),
		Duplicates: int64(report.Stats.Duplicates),
		Malformed:  int64(report.Stats.Malformed),
		Keyless:    int64(report.Stats.Keyless),
		Outcome:    outcomeOf(runErr),
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "CreateRun")
		return 0, err
	}

	for _, outcome := range report.Categories {
		errText := ""
		if outcome.Err != nil {
			errText = outcome.Err.Error()
		}
		err = tx.AddCategoryOutcome(ctx, AddCategoryOutcomeParams{
			RunID:     runID,
			Category:  outcome.Category,
			Status:    string(outcome.Status),
			Pages:     int64(outcome.Pages),
			RowCount:  int64(outcome.Rows),
			Discarded: int64(outcome.Discarded),
			Error:     errText,
		})
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "AddCategoryOutcome", outcome.Category)
			return 0, err
		}
	}

	for values := range report.Records.Rows() {
		err = tx.UpsertApplication(ctx, runID, values)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "UpsertApplication")
			return 0, err
		}
	}

	err = commit()
	if err != nil {
		s.tel.ReportBroken(report_save_run, fmt.Errorf("commit: %w", err))
		return 0, err
	}
	s.tel.ReportDebug("run saved", runID, report.Records.Len())
	return runID, nil
}
