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
)

const (
	report_navigator_open_category = "navigator.open-category"
	report_navigator_page_size     = "navigator.page-size"
)

// ActiveView is a category whose tab has been activated, with every selector
// resolved for it.
type ActiveView struct {
	Category config.Category
	// AlreadyActive is set when the tab was the default view and was not clicked.
	AlreadyActive bool

	Tab           string
	Table         string
	Rows          string
	NextControl   string
	NextContainer string
	PageSize      string
}

func resolveView(s config.Selectors, cat config.Category) ActiveView {
	return ActiveView{
		Category:      cat,
		Tab:           config.ForCategory(s.Tab, cat),
		Table:         config.ForCategory(s.Table, cat),
		Rows:          config.ForCategory(s.Rows, cat),
		NextControl:   config.ForCategory(s.NextControl, cat),
		NextContainer: config.ForCategory(s.NextContainer, cat),
		PageSize:      config.ForCategory(s.PageSize, cat),
	}
}

// Navigator switches between category tabs of the listing view. It does not
// wait for the table, that is the Synchronizer's job.
type Navigator struct {
	selectors config.Selectors
	pageSize  string
	control   time.Duration
	waiter    Waiter
	tel       telemetry.API

	// first is true until the first category has been opened, the listing
	// lands with one tab already active.
	first bool
}

func NewNavigator(cfg config.Config, tel telemetry.API) *Navigator {
	assert.NotNil(tel)
	return &Navigator{
		selectors: cfg.Selectors,
		pageSize:  cfg.PageSize,
		control:   cfg.Timeouts.Control.Std(),
		waiter:    Waiter{Poll: cfg.Timeouts.Poll.Std()},
		tel:       tel,
		first:     true,
	}
}

func (n *Navigator) activeCondition(view ActiveView) WaitCondition {
	return AttributeContains{
		Selector: view.Tab,
		Name:     "class",
		Value:    n.selectors.ActiveClass,
	}
}

func (n *Navigator) OpenCategory(ctx context.Context, page browser.Page, cat config.Category) (ActiveView, error) {
	view := resolveView(n.selectors, cat)

	unavailable := func(err error) (ActiveView, error) {
		catErr := &CategoryUnavailableError{Category: cat.Name, Err: err}
		n.tel.ReportBroken(report_navigator_open_category, catErr)
		return ActiveView{}, catErr
	}

	if n.first {
		n.first = false
		active, err := n.activeCondition(view).Satisfied(ctx, page)
		if err != nil {
			n.tel.ReportDebug("could not read default tab state", cat.Name, err)
		}
		if active {
			view.AlreadyActive = true
			n.tel.ReportDebug("category already active", cat.Name)
			return view, nil
		}
	}

	err := n.waiter.Await(ctx, page, n.control, ControlEnabled{
		Selector:      view.Tab,
		DisabledClass: n.selectors.DisabledClass,
	})
	if err != nil {
		return unavailable(err)
	}
	err = page.Click(ctx, view.Tab)
	if err != nil {
		return unavailable(fmt.Errorf("click tab: %w", err))
	}
	err = n.waiter.Await(ctx, page, n.control, n.activeCondition(view))
	if err != nil {
		return unavailable(err)
	}

	n.tel.ReportDebug("category activated", cat.Name)
	return view, nil
}

// SelectPageSize chooses the configured page size in the category's length
// dropdown. changed is false when there is nothing to select or the size was
// already in effect, a missing dropdown is only worth a warning.
func (n *Navigator) SelectPageSize(ctx context.Context, page browser.Page, view ActiveView) (bool, error) {
	if n.pageSize == "" || view.PageSize == "" {
		return false, nil
	}
	changed, err := page.Select(ctx, view.PageSize, n.pageSize)
	if errors.Is(err, browser.ErrNoSuchElement) {
		n.tel.ReportWarning(report_navigator_page_size, "no page size control", view.Category.Name)
		return false, nil
	}
	if err != nil {
		n.tel.ReportWarning(report_navigator_page_size, err, view.Category.Name)
		return false, err
	}
	return changed, nil
}
