package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staypermit/internal/browser"
	"staypermit/internal/components/assert"
	"staypermit/internal/components/telemetry"
	"staypermit/internal/config"

	"github.com/google/uuid"
)

const (
	report_synchronizer_await = "synchronizer.await-fresh-table"
)

// TableHandle identifies one rendered row set of a table. Rows are stamped
// with Token when the handle is taken, the handle goes stale once none of
// them are attached anymore.
type TableHandle struct {
	Token   string
	Table   string
	Rows    string
	Stamped int
}

type Synchronizer struct {
	timeout  time.Duration
	waiter   Waiter
	newToken func() string
	tel      telemetry.API
}

func NewSynchronizer(cfg config.Config, tel telemetry.API) Synchronizer {
	assert.NotNil(tel)
	return Synchronizer{
		timeout:  cfg.Timeouts.Table.Std(),
		waiter:   Waiter{Poll: cfg.Timeouts.Poll.Std()},
		newToken: uuid.NewString,
		tel:      tel,
	}
}

// AwaitFreshTable waits for the view's table to hold rows that do not belong
// to prev and takes a handle on every row the table then shows. It waits for whichever comes first, prev
// going stale or a fresh data row rendering, then for the fresh rows, all
// within one table timeout. ErrEmptyCategory is returned when no fresh data
// row ever renders.
func (s Synchronizer) AwaitFreshTable(ctx context.Context, page browser.Page, view ActiveView, prev *TableHandle) (TableHandle, error) {
	started := time.Now()

	exclude := ""
	if prev != nil {
		exclude = prev.Token
	}
	fresh := PresenceOfRow{Rows: view.Rows, Exclude: exclude}

	var cond WaitCondition = fresh
	if prev != nil {
		cond = AnyOf{StalenessOf{Token: prev.Token}, fresh}
	}
	err := s.waiter.Await(ctx, page, s.timeout, cond)
	if err != nil {
		return TableHandle{}, s.classify(view, err)
	}

	if prev != nil {
		// prev going stale only means the table started reloading
		remaining := max(s.timeout-time.Since(started), s.waiter.Poll)
		err = s.waiter.Await(ctx, page, remaining, fresh)
		if err != nil {
			return TableHandle{}, s.classify(view, err)
		}
	}

	// a reload may keep some row nodes (a longer page appends to the rows
	// already shown), so every row of the table joins the new handle
	token := s.newToken()
	stamped, err := page.Stamp(ctx, view.Rows, token)
	if err != nil {
		s.tel.ReportBroken(report_synchronizer_await, fmt.Errorf("stamp rows: %w", err), view.Category.Name)
		return TableHandle{}, err
	}
	s.tel.ReportDebug("fresh table", view.Category.Name, token, stamped, time.Since(started).String())

	return TableHandle{
		Token:   token,
		Table:   view.Table,
		Rows:    view.Rows,
		Stamped: stamped,
	}, nil
}

func (s Synchronizer) classify(view ActiveView, err error) error {
	if errors.Is(err, ErrWaitTimeout) {
		return fmt.Errorf("%s: %w", view.Category.Name, ErrEmptyCategory)
	}
	return err
}
