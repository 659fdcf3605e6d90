package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"staypermit/internal/components/telemetry"
	"staypermit/internal/portal"
	"staypermit/internal/records"

	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) Store {
	s, err := Open(context.Background(), ":memory:", telemetry.NewRecordingAPI())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func row(number, status string) records.RawRow {
	return records.RawRow{
		"2024-01-01", "SVC", "CAT", number, "2024-01-02",
		"PT Penjamin", "John Doe", "L", "1990-05-06", "AUS",
		"P1234567", "ITAS", "Bekerja", "Verifikator", status,
	}
}

func report(started time.Time, rows ...records.RawRow) portal.Report {
	set, stats := records.Assemble(rows)
	return portal.Report{
		Started:  started,
		Finished: started.Add(time.Minute),
		Categories: []portal.CategoryOutcome{
			{Category: "Verifikasi", Status: portal.OutcomeOK, Pages: 2, Rows: len(rows)},
			{Category: "Ditolak", Status: portal.OutcomeEmpty, Err: portal.ErrEmptyCategory},
		},
		Stats:   stats,
		Records: set,
	}
}

func TestSaveRunUpsertsByApplicationNumber(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	first, err := s.SaveRun(ctx, report(start, row("APP001", "Verifikasi"), row("APP002", "Verifikasi")), nil)
	require.NoError(t, err)
	second, err := s.SaveRun(ctx, report(start.Add(24*time.Hour), row("APP001", "Disetujui")), nil)
	require.NoError(t, err)
	require.Greater(t, second, first)

	n, err := s.Queries().CountApplications(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	app, err := s.Queries().GetApplication(ctx, "APP001")
	require.NoError(t, err)
	require.Equal(t, "Disetujui", app.Values[records.ColApplicationStatus])
	require.Equal(t, first, app.FirstSeenRun)
	require.Equal(t, second, app.LastSeenRun)

	app, err = s.Queries().GetApplication(ctx, "APP002")
	require.NoError(t, err)
	require.Equal(t, first, app.LastSeenRun)
}

func TestSaveRunRecordsOutcomes(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	id, err := s.SaveRun(ctx, report(time.Unix(1700000000, 0), row("APP001", "x"), row("APP001", "y"), row("", "z")), nil)
	require.NoError(t, err)

	runs, err := s.Queries().ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, id, runs[0].ID)
	require.Equal(t, int64(1), runs[0].Records)
	require.Equal(t, int64(1), runs[0].Duplicates)
	require.Equal(t, int64(1), runs[0].Keyless)
	require.Zero(t, runs[0].Malformed)
	require.Equal(t, "ok", runs[0].Outcome)
	require.Equal(t, int64(60), runs[0].FinishedAt-runs[0].StartedAt)

	outcomes, err := s.Queries().GetCategoryOutcomes(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []CategoryOutcome{
		{Category: "Verifikasi", Status: "ok", Pages: 2, RowCount: 3},
		{Category: "Ditolak", Status: "empty", Error: portal.ErrEmptyCategory.Error()},
	}, outcomes)
}

func TestOutcomeOf(t *testing.T) {
	require.Equal(t, "ok", outcomeOf(nil))
	require.Equal(t, "nothing", outcomeOf(portal.ErrNothingExtracted))
	require.Equal(t, "boom", outcomeOf(errors.New("boom")))
}

func TestUpsertApplicationRejectsWrongWidth(t *testing.T) {
	s := setup(t)
	err := s.Queries().UpsertApplication(context.Background(), 1, []string{"a"})
	require.Error(t, err)
}
