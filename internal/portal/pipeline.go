package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staypermit/internal/browser"
	"staypermit/internal/components/assert"
	"staypermit/internal/components/chrono"
	"staypermit/internal/components/telemetry"
	"staypermit/internal/config"
	"staypermit/internal/records"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	report_runner_run      = "runner.run"
	report_runner_category = "runner.category"
	report_runner_assemble = "runner.assemble"
	report_runner_cleanup  = "runner.cleanup"
)

var (
	tracer = otel.Tracer("staypermit.portal")
	meter  = otel.Meter("staypermit.portal")

	pagesCounter, _      = meter.Int64Counter("portal.pages")
	rowsCounter, _       = meter.Int64Counter("portal.rows")
	duplicatesCounter, _ = meter.Int64Counter("portal.duplicates")
	malformedCounter, _  = meter.Int64Counter("portal.malformed_rows")
	keylessCounter, _    = meter.Int64Counter("portal.keyless_rows")
)

// Launcher starts the browser session a run drives.
type Launcher func(ctx context.Context) (browser.Session, error)

type OutcomeStatus string

const (
	OutcomeOK          OutcomeStatus = "ok"
	OutcomeEmpty       OutcomeStatus = "empty"
	OutcomeUnavailable OutcomeStatus = "unavailable"
	// OutcomePartial means pagination got stuck, the pages read before are kept.
	OutcomePartial OutcomeStatus = "partial"
)

type CategoryOutcome struct {
	Category  string
	Status    OutcomeStatus
	Pages     int
	Rows      int
	Discarded int
	Err       error
}

// Report is the result of one run.
type Report struct {
	Started    time.Time
	Finished   time.Time
	Categories []CategoryOutcome
	Stats      records.Stats
	Records    records.RecordSet
}

type Runner struct {
	cfg    config.Config
	launch Launcher
	time   chrono.API
	tel    telemetry.API

	// newToken overrides the table handle tokens in tests
	newToken func() string
}

func NewRunner(cfg config.Config, launch Launcher, time chrono.API, tel telemetry.API) Runner {
	assert.NotNil(launch)
	assert.NotNil(time)
	assert.NotNil(tel)
	return Runner{
		cfg:    cfg,
		launch: launch,
		time:   time,
		tel:    telemetry.NewScopedAPI("portal", tel),
	}
}

// Run authenticates, walks every configured category in order and assembles
// the record set. The browser session is closed before Run returns, whatever
// happened. Only missing credentials, a failed launch or a failed login abort
// the run; category and page faults are recorded in the report.
// ErrNothingExtracted is returned alongside the report when no category
// produced a record.
func (r Runner) Run(ctx context.Context, cred Credential) (report Report, err error) {
	err = cred.Validate()
	if err != nil {
		return Report{}, err
	}

	ctx, span := tracer.Start(ctx, "Run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	report.Started = r.time.Now()

	session, err := r.launch(ctx)
	if err != nil {
		r.tel.ReportBroken(report_runner_run, fmt.Errorf("launch: %w", err))
		return report, err
	}
	defer func() {
		closeErr := session.Close()
		if closeErr != nil {
			r.tel.ReportBroken(report_runner_cleanup, closeErr)
		}
	}()

	err = NewAuthenticator(r.cfg, r.tel).Authenticate(ctx, session, cred)
	if err != nil {
		return report, err
	}

	sync := NewSynchronizer(r.cfg, r.tel)
	if r.newToken != nil {
		sync.newToken = r.newToken
	}
	nav := NewNavigator(r.cfg, r.tel)
	walker := NewWalker(r.cfg, sync, r.tel)
	walker.onPage = func(ctx context.Context, view ActiveView, _ int, rows int) {
		attrs := metric.WithAttributes(attribute.String("category", view.Category.ID))
		pagesCounter.Add(ctx, 1, attrs)
		rowsCounter.Add(ctx, int64(rows), attrs)
	}

	var raw []records.RawRow
	var prev *TableHandle
	for _, cat := range r.cfg.Categories {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		outcome, rows, last := r.visit(ctx, session, nav, sync, walker, cat, prev)
		if last != nil {
			prev = last
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		raw = append(raw, rows...)
		report.Categories = append(report.Categories, outcome)
		r.tel.ReportCount(fmt.Sprintf("category.%s.rows", cat.ID), int64(outcome.Rows))
	}

	report.Records, report.Stats = r.assemble(ctx, raw)
	report.Finished = r.time.Now()

	span.SetAttributes(
		attribute.Int("records", report.Records.Len()),
		attribute.Int("duplicates", report.Stats.Duplicates),
		attribute.Int("malformed", report.Stats.Malformed),
		attribute.Int("keyless", report.Stats.Keyless),
	)
	r.tel.ReportCount("records", int64(report.Records.Len()))

	if report.Records.Len() == 0 {
		r.tel.ReportWarning(report_runner_run, ErrNothingExtracted)
		return report, ErrNothingExtracted
	}
	return report, nil
}

func (r Runner) visit(
	ctx context.Context,
	page browser.Page,
	nav *Navigator,
	sync Synchronizer,
	walker Walker,
	cat config.Category,
	prev *TableHandle,
) (outcome CategoryOutcome, rows []records.RawRow, last *TableHandle) {
	ctx, span := tracer.Start(ctx, "Category")
	span.SetAttributes(attribute.String("category", cat.ID))
	defer func() {
		span.SetAttributes(
			attribute.String("status", string(outcome.Status)),
			attribute.Int("pages", outcome.Pages),
		)
		if outcome.Err != nil && outcome.Status != OutcomeEmpty {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, outcome.Err.Error())
		}
		span.End()
	}()

	outcome = CategoryOutcome{Category: cat.Name}

	view, err := nav.OpenCategory(ctx, page, cat)
	if err != nil {
		outcome.Status = OutcomeUnavailable
		outcome.Err = err
		return outcome, nil, nil
	}

	handle, err := sync.AwaitFreshTable(ctx, page, view, prev)
	if errors.Is(err, ErrEmptyCategory) {
		r.tel.ReportWarning(report_runner_category, "no records", cat.Name)
		outcome.Status = OutcomeEmpty
		outcome.Err = err
		return outcome, nil, nil
	}
	if err != nil {
		r.tel.ReportBroken(report_runner_category, err, cat.Name)
		outcome.Status = OutcomeUnavailable
		outcome.Err = err
		return outcome, nil, nil
	}
	handle = r.applyPageSize(ctx, page, nav, sync, view, handle)

	walk, err := walker.Walk(ctx, page, view, handle)
	outcome.Pages = walk.Pages
	outcome.Rows = len(walk.Rows)
	outcome.Discarded = walk.Discarded
	outcome.Status = OutcomeOK
	if err != nil {
		outcome.Status = OutcomePartial
		outcome.Err = err
	}
	return outcome, walk.Rows, &walk.Last
}

// applyPageSize selects the configured page size and re-synchronizes when
// that made the table reload. When the reload cannot be observed the handle
// taken before is kept as long as its rows are still attached.
func (r Runner) applyPageSize(
	ctx context.Context,
	page browser.Page,
	nav *Navigator,
	sync Synchronizer,
	view ActiveView,
	handle TableHandle,
) TableHandle {
	changed, err := nav.SelectPageSize(ctx, page, view)
	if err != nil || !changed {
		return handle
	}

	resized, err := sync.AwaitFreshTable(ctx, page, view, &handle)
	if err == nil {
		return resized
	}
	attached, stampErr := page.Stamped(ctx, handle.Token)
	if stampErr != nil || !attached {
		r.tel.ReportBroken(report_navigator_page_size, fmt.Errorf("table lost after page size change: %w", err), view.Category.Name)
		return handle
	}
	r.tel.ReportWarning(report_navigator_page_size, fmt.Errorf("page size change did not reload: %w", err), view.Category.Name)
	return handle
}

func (r Runner) assemble(ctx context.Context, raw []records.RawRow) (records.RecordSet, records.Stats) {
	assembler := records.NewAssembler()
	for _, row := range raw {
		err := assembler.Add(row)
		if err != nil {
			r.tel.ReportWarning(report_runner_assemble, err, []string(row))
		}
	}
	stats := assembler.Stats()
	duplicatesCounter.Add(ctx, int64(stats.Duplicates))
	malformedCounter.Add(ctx, int64(stats.Malformed))
	keylessCounter.Add(ctx, int64(stats.Keyless))
	r.tel.ReportCount("duplicates", int64(stats.Duplicates))
	r.tel.ReportCount("malformed", int64(stats.Malformed))
	r.tel.ReportCount("keyless", int64(stats.Keyless))
	return assembler.RecordSet(), stats
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
