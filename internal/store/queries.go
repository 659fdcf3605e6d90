package store

import (
	"context"
	"database/sql"
	"fmt"

	"staypermit/internal/records"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type CreateRunParams struct {
	StartedAt  int64
	FinishedAt int64
	Records    int64
	Observed   int64
	Duplicates int64
	Malformed  int64
	Keyless    int64
	Outcome    string
}

const createRun = `insert into run (
    started_at, finished_at, records, observed, duplicates, malformed, keyless, outcome
) values (?, ?, ?, ?, ?, ?, ?, ?)
returning id`

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createRun,
		arg.StartedAt,
		arg.FinishedAt,
		arg.Records,
		arg.Observed,
		arg.Duplicates,
		arg.Malformed,
		arg.Keyless,
		arg.Outcome,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

type AddCategoryOutcomeParams struct {
	RunID     int64
	Category  string
	Status    string
	Pages     int64
	RowCount  int64
	Discarded int64
	Error     string
}

const addCategoryOutcome = `insert into category_outcome (
    run_id, category, status, pages, row_count, discarded, error
) values (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) AddCategoryOutcome(ctx context.Context, arg AddCategoryOutcomeParams) error {
	_, err := q.db.ExecContext(ctx, addCategoryOutcome,
		arg.RunID,
		arg.Category,
		arg.Status,
		arg.Pages,
		arg.RowCount,
		arg.Discarded,
		arg.Error,
	)
	return err
}

const upsertApplication = `insert into application (
    payment_date, service_type, product_category, application_number,
    application_date, guarantor, name, sex, birth_date, nationality,
    passport_number, product_type, destination, application_position,
    application_status, first_seen_run, last_seen_run
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (application_number) do update set
    payment_date = excluded.payment_date,
    service_type = excluded.service_type,
    product_category = excluded.product_category,
    application_date = excluded.application_date,
    guarantor = excluded.guarantor,
    name = excluded.name,
    sex = excluded.sex,
    birth_date = excluded.birth_date,
    nationality = excluded.nationality,
    passport_number = excluded.passport_number,
    product_type = excluded.product_type,
    destination = excluded.destination,
    application_position = excluded.application_position,
    application_status = excluded.application_status,
    last_seen_run = excluded.last_seen_run`

// UpsertApplication stores values (in records.Schema order) as observed by
// runID. first_seen_run is only set on insert.
func (q *Queries) UpsertApplication(ctx context.Context, runID int64, values []string) error {
	if len(values) != len(records.Schema) {
		return fmt.Errorf("upsert application: got %d values, expected %d", len(values), len(records.Schema))
	}
	args := make([]any, 0, len(values)+2)
	for _, v := range values {
		args = append(args, v)
	}
	args = append(args, runID, runID)
	_, err := q.db.ExecContext(ctx, upsertApplication, args...)
	return err
}

type Application struct {
	Values       []string
	FirstSeenRun int64
	LastSeenRun  int64
}

const getApplication = `select
    payment_date, service_type, product_category, application_number,
    application_date, guarantor, name, sex, birth_date, nationality,
    passport_number, product_type, destination, application_position,
    application_status, first_seen_run, last_seen_run
from application where application_number = ?`

func (q *Queries) GetApplication(ctx context.Context, applicationNumber string) (Application, error) {
	row := q.db.QueryRowContext(ctx, getApplication, applicationNumber)
	values := make([]string, len(records.Schema))
	dest := make([]any, 0, len(values)+2)
	for i := range values {
		dest = append(dest, &values[i])
	}
	var out Application
	dest = append(dest, &out.FirstSeenRun, &out.LastSeenRun)
	err := row.Scan(dest...)
	out.Values = values
	return out, err
}

const countApplications = `select count(*) from application`

func (q *Queries) CountApplications(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countApplications).Scan(&n)
	return n, err
}

type Run struct {
	ID         int64
	StartedAt  int64
	FinishedAt int64
	Records    int64
	Observed   int64
	Duplicates int64
	Malformed  int64
	Keyless    int64
	Outcome    string
}

const listRuns = `select
    id, started_at, finished_at, records, observed, duplicates, malformed, keyless, outcome
from run order by id desc limit ?`

func (q *Queries) ListRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Run
	for rows.Next() {
		var r Run
		err := rows.Scan(
			&r.ID,
			&r.StartedAt,
			&r.FinishedAt,
			&r.Records,
			&r.Observed,
			&r.Duplicates,
			&r.Malformed,
			&r.Keyless,
			&r.Outcome,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type CategoryOutcome struct {
	Category  string
	Status    string
	Pages     int64
	RowCount  int64
	Discarded int64
	Error     string
}

const getCategoryOutcomes = `select
    category, status, pages, row_count, discarded, error
from category_outcome where run_id = ? order by rowid`

func (q *Queries) GetCategoryOutcomes(ctx context.Context, runID int64) ([]CategoryOutcome, error) {
	rows, err := q.db.QueryContext(ctx, getCategoryOutcomes, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CategoryOutcome
	for rows.Next() {
		var c CategoryOutcome
		err := rows.Scan(&c.Category, &c.Status, &c.Pages, &c.RowCount, &c.Discarded, &c.Error)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
