package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staypermit/internal/browser"
)

// WaitCondition is a named predicate over the page. Satisfied must be a single
// cheap query, the Waiter does the polling.
type WaitCondition interface {
	Describe() string
	Satisfied(ctx context.Context, page browser.Page) (bool, error)
}

// Waiter polls a WaitCondition until it holds or its one timeout budget is
// spent. Errors from Satisfied are treated as "not yet", the UI is usually
// mid-transition when they happen.
type Waiter struct {
	Poll time.Duration
}

func (w Waiter) Await(ctx context.Context, page browser.Page, timeout time.Duration, cond WaitCondition) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	poll := w.Poll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond.Satisfied(waitCtx, page)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if lastErr != nil && !errors.Is(lastErr, context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s: %s (last error: %v)", ErrWaitTimeout, timeout, cond.Describe(), lastErr)
			}
			return fmt.Errorf("%w after %s: %s", ErrWaitTimeout, timeout, cond.Describe())
		case <-ticker.C:
		}
	}
}

// StalenessOf holds once no row stamped with Token is attached anymore.
type StalenessOf struct {
	Token string
}

func (c StalenessOf) Describe() string {
	return fmt.Sprintf("staleness of table %s", c.Token)
}

func (c StalenessOf) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	stamped, err := page.Stamped(ctx, c.Token)
	if err != nil {
		return false, err
	}
	return !stamped, nil
}

// PresenceOfRow holds once a data row not stamped with Exclude is rendered.
type PresenceOfRow struct {
	Rows    string
	Exclude string
}

func (c PresenceOfRow) Describe() string {
	if c.Exclude != "" {
		return fmt.Sprintf("data row in %s not stamped %s", c.Rows, c.Exclude)
	}
	return fmt.Sprintf("data row in %s", c.Rows)
}

func (c PresenceOfRow) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	n, err := page.CountRows(ctx, c.Rows, minDataCells, c.Exclude)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type PresenceOf struct {
	Selector string
}

func (c PresenceOf) Describe() string {
	return "presence of " + c.Selector
}

func (c PresenceOf) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	return page.Exists(ctx, c.Selector)
}

// ControlEnabled holds once the control exists and is not disabled by
// attribute or by DisabledClass.
type ControlEnabled struct {
	Selector      string
	DisabledClass string
}

func (c ControlEnabled) Describe() string {
	return "enabled control " + c.Selector
}

func (c ControlEnabled) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	disabled, err := controlDisabled(ctx, page, c.Selector, c.DisabledClass)
	if errors.Is(err, browser.ErrNoSuchElement) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !disabled, nil
}

func controlDisabled(ctx context.Context, page browser.Page, selector, disabledClass string) (bool, error) {
	_, present, err := page.Attribute(ctx, selector, "disabled")
	if err != nil {
		return false, err
	}
	if present {
		return true, nil
	}
	aria, _, err := page.Attribute(ctx, selector, "aria-disabled")
	if err != nil {
		return false, err
	}
	if aria == "true" {
		return true, nil
	}
	if disabledClass == "" {
		return false, nil
	}
	class, _, err := page.Attribute(ctx, selector, "class")
	if err != nil {
		return false, err
	}
	return hasClass(class, disabledClass), nil
}

func hasClass(classAttr, class string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

// AttributeContains holds once the whitespace separated attribute Name of the
// element contains the token Value, e.g. a tab's class gaining "active".
type AttributeContains struct {
	Selector string
	Name     string
	Value    string
}

func (c AttributeContains) Describe() string {
	return fmt.Sprintf("%s[%s~=%s]", c.Selector, c.Name, c.Value)
}

func (c AttributeContains) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	value, _, err := page.Attribute(ctx, c.Selector, c.Name)
	if errors.Is(err, browser.ErrNoSuchElement) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return hasClass(value, c.Value), nil
}

// LocationPrefix holds once the page url starts with Prefix.
type LocationPrefix struct {
	Prefix string
}

func (c LocationPrefix) Describe() string {
	return "location " + c.Prefix
}

func (c LocationPrefix) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	location, err := page.Location(ctx)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(location, c.Prefix), nil
}

// AnyOf holds as soon as one of its conditions holds. An error from one
// condition does not mask another that holds.
type AnyOf []WaitCondition

func (c AnyOf) Describe() string {
	parts := make([]string, len(c))
	for i, cond := range c {
		parts[i] = cond.Describe()
	}
	return "any of (" + strings.Join(parts, ", ") + ")"
}

func (c AnyOf) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	var errs []error
	for _, cond := range c {
		ok, err := cond.Satisfied(ctx, page)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

// AllOf holds once every one of its conditions holds in the same poll.
type AllOf []WaitCondition

func (c AllOf) Describe() string {
	parts := make([]string, len(c))
	for i, cond := range c {
		parts[i] = cond.Describe()
	}
	return "all of (" + strings.Join(parts, ", ") + ")"
}

func (c AllOf) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	for _, cond := range c {
		ok, err := cond.Satisfied(ctx, page)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Not inverts a condition, an error is still an error.
type Not struct {
	Cond WaitCondition
}

func (c Not) Describe() string {
	return "not " + c.Cond.Describe()
}

func (c Not) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	ok, err := c.Cond.Satisfied(ctx, page)
	if err != nil {
		return false, err
	}
	return !ok, nil
}
