package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"staypermit/internal/components/assert"
	"staypermit/internal/components/telemetry"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	report_chrome_launch = "chrome.launch"
	report_chrome_close  = "chrome.close"
	report_chrome_log    = "chrome.log"
	report_chrome_dialog = "chrome.dialog"
)

type Options struct {
	Headless     bool
	ExecPath     string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
}

// Chrome is a Session backed by a chromedp controlled chrome process.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	tree        processTree
	closeOnce   sync.Once
	closeErr    error

	tel telemetry.API
}

// Launch starts a browser and opens its first tab. The browser lives until
// Close is called or parent is cancelled.
func Launch(parent context.Context, opts Options, tel telemetry.API) (*Chrome, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("browser", tel)

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			tel.ReportDebug(report_chrome_log, fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			tel.ReportWarning(report_chrome_log, fmt.Sprintf(format, args...))
		}),
	)

	// the first Run allocates the browser process
	err := chromedp.Run(ctx)
	if err != nil {
		cancel()
		allocCancel()
		tel.ReportBroken(report_chrome_launch, err)
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	c := &Chrome{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		tel:         tel,
	}
	chromedp.ListenTarget(ctx, c.onEvent)
	if browser := chromedp.FromContext(ctx).Browser; browser != nil {
		if proc := browser.Process(); proc != nil {
			c.tree = snapshotTree(ctx, proc.Pid)
		}
	}
	return c, nil
}

// Close closes the browser gracefully, then kills whatever part of the chrome
// process tree survived. It is safe to call more than once.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		// chrome forks renderers lazily, refresh the tree before it goes away
		if c.tree.root != 0 {
			c.tree = snapshotTree(context.Background(), int(c.tree.root))
		}

		err := chromedp.Cancel(c.ctx)
		if err != nil {
			c.tel.ReportWarning(report_chrome_close, fmt.Errorf("graceful close: %w", err))
		}
		c.cancel()
		c.allocCancel()

		killed, err := c.tree.reap(context.Background())
		if err != nil {
			c.tel.ReportBroken(report_chrome_close, fmt.Errorf("reap: %w", err))
			c.closeErr = err
		}
		if killed > 0 {
			c.tel.ReportWarning(report_chrome_close, "killed lingering browser processes", killed)
		}
	})
	return c.closeErr
}

// an open alert blocks every evaluation on the page until it is handled
func (c *Chrome) onEvent(ev any) {
	switch ev := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		c.tel.ReportWarning(report_chrome_dialog, ev.Type.String(), ev.Message)
		go func() {
			err := chromedp.Run(c.ctx, page.HandleJavaScriptDialog(true))
			if err != nil {
				c.tel.ReportWarning(report_chrome_dialog, fmt.Errorf("dismiss: %w", err))
			}
		}()
	case *cdpruntime.EventExceptionThrown:
		c.tel.ReportDebug("page exception", ev.ExceptionDetails.Error())
	}
}

// scope derives a context from the browser context that also honours the
// caller's deadline and cancellation.
func (c *Chrome) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	scoped, cancel := context.WithCancel(c.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		scoped, cancelDeadline = context.WithDeadline(scoped, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return scoped, func() {
		stop()
		cancel()
	}
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	scoped, cancel := c.scope(ctx)
	defer cancel()
	return chromedp.Run(scoped, actions...)
}

func (c *Chrome) eval(ctx context.Context, expr string, out any) error {
	return c.run(ctx, chromedp.Evaluate(expr, out))
}

func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(s)
	if err != nil {
		// encoding a string cannot fail
		panic(err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) Location(ctx context.Context) (string, error) {
	var location string
	err := c.run(ctx, chromedp.Location(&location))
	return location, err
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) error {
	exists, err := c.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return c.run(
		ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// Click uses a DOM click instead of synthesized mouse input, pagination links
// are often covered by overlays or scrolled out of view.
func (c *Chrome) Click(ctx context.Context, selector string) error {
	var found bool
	err := c.eval(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, jsString(selector)), &found)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return nil
}

func (c *Chrome) Select(ctx context.Context, selector, value string) (bool, error) {
	var res struct {
		Found   bool `json:"found"`
		Changed bool `json:"changed"`
	}
	err := c.eval(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return {found: false, changed: false};
		if (el.value === %s) return {found: true, changed: false};
		el.value = %s;
		el.dispatchEvent(new Event("change", {bubbles: true}));
		return {found: true, changed: true};
	})()`, jsString(selector), jsString(value), jsString(value)), &res)
	if err != nil {
		return false, err
	}
	if !res.Found {
		return false, fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return res.Changed, nil
}

func (c *Chrome) Exists(ctx context.Context, selector string) (bool, error) {
	var exists bool
	err := c.eval(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &exists)
	return exists, err
}

func (c *Chrome) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var res struct {
		Found   bool   `json:"found"`
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	err := c.eval(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return {found: false, present: false, value: ""};
		const v = el.getAttribute(%s);
		return {found: true, present: v !== null, value: v === null ? "" : v};
	})()`, jsString(selector), jsString(name)), &res)
	if err != nil {
		return "", false, err
	}
	if !res.Found {
		return "", false, fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return res.Value, res.Present, nil
}

func (c *Chrome) OuterHTML(ctx context.Context, selector string) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		HTML  string `json:"html"`
	}
	err := c.eval(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return el ? {found: true, html: el.outerHTML} : {found: false, html: ""};
	})()`, jsString(selector)), &res)
	if err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("%w: %s", ErrNoSuchElement, selector)
	}
	return res.HTML, nil
}

func (c *Chrome) Stamp(ctx context.Context, rowSelector, token string) (int, error) {
	var stamped int
	err := c.eval(ctx, fmt.Sprintf(`(() => {
		let n = 0;
		for (const row of document.querySelectorAll(%s)) {
			row.setAttribute(%s, %s);
			n++;
		}
		return n;
	})()`,
		jsString(rowSelector),
		jsString(HandleAttr), jsString(token),
	), &stamped)
	return stamped, err
}

func (c *Chrome) Stamped(ctx context.Context, token string) (bool, error) {
	var stamped bool
	selector := fmt.Sprintf(`[%s="%s"]`, HandleAttr, token)
	err := c.eval(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector)), &stamped)
	return stamped, err
}

func (c *Chrome) CountRows(ctx context.Context, rowSelector string, minCells int, exclude string) (int, error) {
	var count int
	err := c.eval(ctx, fmt.Sprintf(`(() => {
		let n = 0;
		for (const row of document.querySelectorAll(%s)) {
			if (%s !== "" && row.getAttribute(%s) === %s) continue;
			if (row.querySelectorAll(":scope > td").length < %d) continue;
			n++;
		}
		return n;
	})()`,
		jsString(rowSelector),
		jsString(exclude), jsString(HandleAttr), jsString(exclude),
		minCells,
	), &count)
	return count, err
}

var _ Session = (*Chrome)(nil)
