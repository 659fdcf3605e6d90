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
	"staypermit/internal/records"
)

const (
	report_walker_walk = "walker.walk"
)

type nextState int

const (
	nextUnknown nextState = iota
	nextAbsent
	nextDisabled
	nextEnabled
)

func (s nextState) String() string {
	switch s {
	case nextAbsent:
		return "absent"
	case nextDisabled:
		return "disabled"
	case nextEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// nextProbe holds once the state of the next page control can be told, the
// state it saw is left in state.
type nextProbe struct {
	view          ActiveView
	disabledClass string
	state         *nextState
}

func (p nextProbe) Describe() string {
	return "next page control state " + p.view.NextControl
}

func (p nextProbe) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	*p.state = nextUnknown

	control, err := page.Exists(ctx, p.view.NextControl)
	if err != nil {
		return false, err
	}
	container := false
	if p.view.NextContainer != "" {
		container, err = page.Exists(ctx, p.view.NextContainer)
		if err != nil {
			return false, err
		}
	}
	if !control && !container {
		*p.state = nextAbsent
		return true, nil
	}

	if container {
		disabled, err := controlDisabled(ctx, page, p.view.NextContainer, p.disabledClass)
		if err != nil {
			return false, err
		}
		if disabled {
			*p.state = nextDisabled
			return true, nil
		}
	}
	if !control {
		// an enabled looking container without anything to click
		return false, nil
	}
	disabled, err := controlDisabled(ctx, page, p.view.NextControl, p.disabledClass)
	if err != nil {
		return false, err
	}
	if disabled {
		*p.state = nextDisabled
	} else {
		*p.state = nextEnabled
	}
	return true, nil
}

// CategoryWalk is what a walk over the pages of one category produced.
type CategoryWalk struct {
	Pages     int
	Clicks    int
	Rows      []records.RawRow
	Discarded int
	// Last is the handle of the last page read, the next category uses it to
	// tell its own table apart.
	Last TableHandle
}

// Walker reads every page of a category, following the next page control.
type Walker struct {
	sync          Synchronizer
	extractor     Extractor
	waiter        Waiter
	control       time.Duration
	maxPages      int
	disabledClass string
	tel           telemetry.API

	// onPage is called after every page read
	onPage func(ctx context.Context, view ActiveView, page, rows int)
}

func NewWalker(cfg config.Config, sync Synchronizer, tel telemetry.API) Walker {
	assert.NotNil(tel)
	assert.Positive(cfg.MaxPages)
	return Walker{
		sync:          sync,
		waiter:        Waiter{Poll: cfg.Timeouts.Poll.Std()},
		control:       cfg.Timeouts.Control.Std(),
		maxPages:      cfg.MaxPages,
		disabledClass: cfg.Selectors.DisabledClass,
		tel:           tel,
	}
}

func (w Walker) probeNext(ctx context.Context, page browser.Page, view ActiveView) (nextState, error) {
	state := nextUnknown
	err := w.waiter.Await(ctx, page, w.control, nextProbe{
		view:          view,
		disabledClass: w.disabledClass,
		state:         &state,
	})
	return state, err
}

// Walk extracts the page behind first and every page after it. A
// PaginationStuckError is returned together with whatever was read before
// the walk got stuck.
func (w Walker) Walk(ctx context.Context, page browser.Page, view ActiveView, first TableHandle) (CategoryWalk, error) {
	walk := CategoryWalk{Last: first}
	stuck := func(err error) (CategoryWalk, error) {
		if ctx.Err() != nil {
			return walk, ctx.Err()
		}
		stuckErr := &PaginationStuckError{Category: view.Category.Name, Page: walk.Pages, Err: err}
		w.tel.ReportBroken(report_walker_walk, stuckErr)
		return walk, stuckErr
	}

	current := first
	for {
		rows, discarded, err := w.extractor.ExtractRows(ctx, page, current)
		if err != nil {
			return stuck(err)
		}
		walk.Pages++
		walk.Rows = append(walk.Rows, rows...)
		walk.Discarded += discarded
		walk.Last = current
		if w.onPage != nil {
			w.onPage(ctx, view, walk.Pages, len(rows))
		}
		w.tel.ReportDebug("page read", view.Category.Name, walk.Pages, len(rows))

		state, err := w.probeNext(ctx, page, view)
		if err != nil {
			return stuck(fmt.Errorf("next page control: %w", err))
		}
		if state != nextEnabled {
			w.tel.ReportDebug("last page", view.Category.Name, walk.Pages, state.String())
			return walk, nil
		}
		if walk.Pages >= w.maxPages {
			return stuck(errPageLimit)
		}

		err = page.Click(ctx, view.NextControl)
		if err != nil {
			return stuck(fmt.Errorf("click next: %w", err))
		}
		walk.Clicks++

		next, err := w.sync.AwaitFreshTable(ctx, page, view, &current)
		if errors.Is(err, ErrEmptyCategory) {
			return stuck(fmt.Errorf("page %d never rendered: %w", walk.Pages+1, err))
		}
		if err != nil {
			return stuck(err)
		}
		current = next
	}
}
