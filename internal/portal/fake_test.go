package portal

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strings"
	"sync"
	"time"

	"staypermit/internal/browser"
	"staypermit/internal/config"
	"staypermit/internal/records"
)

const (
	testLoginURL   = "https://portal.test/login"
	testHomeURL    = "https://portal.test/home"
	testListingURL = "https://portal.test/listing"
	testLoggedIn   = "#logout"
	testUser       = "agent"
	testSecret     = "hunter2"
)

func testConfig(cats ...string) config.Config {
	cfg := config.Default()
	cfg.Portal = config.Portal{LoginURL: testLoginURL, ListingURL: testListingURL}
	cfg.Selectors.LoggedIn = testLoggedIn
	cfg.Categories = nil
	for _, id := range cats {
		cfg.Categories = append(cfg.Categories, config.Category{Name: strings.ToUpper(id), ID: id})
	}
	cfg.Timeouts = config.Timeouts{
		Auth:    config.Duration(time.Second),
		Table:   config.Duration(150 * time.Millisecond),
		Control: config.Duration(100 * time.Millisecond),
		Poll:    config.Duration(time.Millisecond),
	}
	return cfg
}

type pager int

const (
	pagerDataTables pager = iota
	pagerNone
	// pagerBroken renders an enabled looking container without a link
	pagerBroken
)

type fakeRow struct {
	cells []string
	stamp string
}

type fakeCategory struct {
	id    string
	pages [][]records.RawRow
	pager pager

	missing bool
	// inert tabs accept clicks without ever becoming active
	inert bool
	// stuck next links accept clicks without loading anything
	stuck bool

	active   bool
	loaded   bool
	page     int
	pageSize string

	rows      []*fakeRow
	pending   []*fakeRow
	pendingIn int
	// clearOnLoad removes the rows as soon as a reload starts
	clearOnLoad bool
	// resized replaces the pages once the page size changes
	resized [][]records.RawRow
	// keepNodes reuses the rendered rows a reload starts with where they show
	// the same cells, the way a longer page appends to the rows already shown
	keepNodes bool

	tabClicks  int
	nextClicks int
}

func (c *fakeCategory) lastPage() bool {
	return c.page >= len(c.pages)-1
}

func render(rows []records.RawRow) []*fakeRow {
	if len(rows) == 0 {
		return []*fakeRow{{cells: []string{"No data available in table"}}}
	}
	out := make([]*fakeRow, len(rows))
	for i, r := range rows {
		out[i] = &fakeRow{cells: r}
	}
	return out
}

// fakePage scripts a DataTables listing. Every query advances a virtual clock
// by one tick, pending renders land once their tick count runs out.
type fakePage struct {
	mu sync.Mutex

	cfg   config.Config
	cats  []*fakeCategory
	delay int

	location string
	loggedIn bool
	filled   map[string]string

	closed int
	calls  int
	// failEvery makes every nth query fail like a detached frame would
	failEvery int
}

func newFakePage(cfg config.Config, cats ...*fakeCategory) *fakePage {
	return &fakePage{
		cfg:      cfg,
		cats:     cats,
		delay:    3,
		location: "about:blank",
		filled:   map[string]string{},
	}
}

type elementKind int

const (
	elemNone elementKind = iota
	elemUsername
	elemPassword
	elemSubmit
	elemLoggedIn
	elemTab
	elemTable
	elemRows
	elemNext
	elemNextContainer
	elemPageSize
)

func (f *fakePage) resolve(selector string) (elementKind, *fakeCategory) {
	s := f.cfg.Selectors
	switch selector {
	case s.Username:
		return elemUsername, nil
	case s.Password:
		return elemPassword, nil
	case s.Submit:
		return elemSubmit, nil
	case s.LoggedIn:
		return elemLoggedIn, nil
	}
	for _, c := range f.cats {
		cat := config.Category{ID: c.id}
		switch selector {
		case config.ForCategory(s.Tab, cat):
			return elemTab, c
		case config.ForCategory(s.Table, cat):
			return elemTable, c
		case config.ForCategory(s.Rows, cat):
			return elemRows, c
		case config.ForCategory(s.NextControl, cat):
			return elemNext, c
		case config.ForCategory(s.NextContainer, cat):
			return elemNextContainer, c
		case config.ForCategory(s.PageSize, cat):
			return elemPageSize, c
		}
	}
	return elemNone, nil
}

func (f *fakePage) onListing() bool {
	return f.loggedIn && f.location == testListingURL
}

func (f *fakePage) tick() error {
	f.calls++
	for _, c := range f.cats {
		if c.pendingIn > 0 {
			c.pendingIn--
			if c.pendingIn == 0 {
				c.rows = c.pending
				c.pending = nil
			}
		}
	}
	if f.failEvery > 0 && f.calls%f.failEvery == 0 {
		return fmt.Errorf("execution context was destroyed")
	}
	return nil
}

func (f *fakePage) load(c *fakeCategory) {
	c.loaded = true
	c.pending = render(c.pages[c.page])
	if c.keepNodes {
		for i := range min(len(c.rows), len(c.pending)) {
			if slices.Equal(c.rows[i].cells, c.pending[i].cells) {
				c.pending[i] = c.rows[i]
			}
		}
	}
	c.pendingIn = f.delay
	if c.clearOnLoad {
		c.rows = nil
	}
}

func (f *fakePage) exists(kind elementKind, c *fakeCategory) bool {
	switch kind {
	case elemUsername, elemPassword, elemSubmit:
		return f.location == testLoginURL
	case elemLoggedIn:
		return f.onListing()
	case elemTab:
		return f.onListing() && !c.missing
	case elemTable, elemPageSize:
		return f.onListing()
	case elemNext:
		return f.onListing() && c.pager == pagerDataTables
	case elemNextContainer:
		return f.onListing() && c.pager != pagerNone
	}
	return false
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch url {
	case testLoginURL:
		f.location = testLoginURL
	case testListingURL:
		if !f.loggedIn {
			f.location = testLoginURL
			return nil
		}
		f.location = testListingURL
		if len(f.cats) > 0 {
			first := f.cats[0]
			first.active = true
			f.load(first)
		}
	default:
		return fmt.Errorf("unexpected url %s", url)
	}
	return nil
}

func (f *fakePage) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tick(); err != nil {
		return "", err
	}
	return f.location, nil
}

func (f *fakePage) Fill(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kind, c := f.resolve(selector)
	if !f.exists(kind, c) {
		return browser.ErrNoSuchElement
	}
	f.filled[selector] = value
	return nil
}

func (f *fakePage) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	kind, c := f.resolve(selector)
	if !f.exists(kind, c) {
		return fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}
	switch kind {
	case elemSubmit:
		s := f.cfg.Selectors
		if f.filled[s.Username] == testUser && f.filled[s.Password] == testSecret {
			f.loggedIn = true
			f.location = testHomeURL
		}
	case elemTab:
		c.tabClicks++
		if c.inert {
			return nil
		}
		for _, other := range f.cats {
			other.active = false
		}
		c.active = true
		if !c.loaded {
			f.load(c)
		}
	case elemNext:
		c.nextClicks++
		if c.stuck || c.lastPage() {
			return nil
		}
		c.page++
		f.load(c)
	}
	return nil
}

func (f *fakePage) Select(ctx context.Context, selector, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kind, c := f.resolve(selector)
	if kind != elemPageSize || !f.exists(kind, c) {
		return false, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}
	if c.pageSize == value {
		return false, nil
	}
	c.pageSize = value
	c.page = 0
	if c.resized != nil {
		c.pages = c.resized
	}
	f.load(c)
	return true, nil
}

func (f *fakePage) Exists(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tick(); err != nil {
		return false, err
	}
	kind, c := f.resolve(selector)
	return f.exists(kind, c), nil
}

func (f *fakePage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tick(); err != nil {
		return "", false, err
	}
	kind, c := f.resolve(selector)
	if !f.exists(kind, c) {
		return "", false, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}
	if name != "class" {
		return "", false, nil
	}
	switch kind {
	case elemTab:
		if c.active {
			return "nav-link active", true, nil
		}
		return "nav-link", true, nil
	case elemNextContainer:
		if c.pager == pagerDataTables && c.lastPage() {
			return "paginate_button page-item next disabled", true, nil
		}
		return "paginate_button page-item next", true, nil
	}
	return "", false, nil
}

func (f *fakePage) OuterHTML(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tick(); err != nil {
		return "", err
	}
	kind, c := f.resolve(selector)
	if kind != elemTable || !f.exists(kind, c) {
		return "", fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}

	var sb strings.Builder
	sb.WriteString("<table><thead><tr><th>No</th></tr></thead><tbody>")
	for _, row := range c.rows {
		if row.stamp != "" {
			fmt.Fprintf(&sb, `<tr %s="%s">`, browser.HandleAttr, row.stamp)
		} else {
			sb.WriteString("<tr>")
		}
		for _, cell := range row.cells {
			fmt.Fprintf(&sb, "<td>%s</td>", html.EscapeString(cell))
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</tbody></table>")
	return sb.String(), nil
}

func (f *fakePage) Stamp(ctx context.Context, rowSelector, token string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tick(); err != nil {
		return 0, err
	}
	_, c := f.resolve(rowSelector)
	if c == nil {
		return 0, nil
	}
	for _, row := range c.rows {
		row.stamp = token
	}
	return len(c.rows), nil
}

func (f *fakePage) Stamped(ctx context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tick(); err != nil {
		return false, err
	}
	for _, c := range f.cats {
		for _, row := range c.rows {
			if row.stamp == token {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakePage) CountRows(ctx context.Context, rowSelector string, minCells int, exclude string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tick(); err != nil {
		return 0, err
	}
	_, c := f.resolve(rowSelector)
	if c == nil || !f.onListing() {
		return 0, nil
	}
	n := 0
	for _, row := range c.rows {
		if exclude != "" && row.stamp == exclude {
			continue
		}
		if len(row.cells) < minCells {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakePage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// settle lets every pending render land.
func (f *fakePage) settle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range f.delay {
		f.tick()
	}
}

var _ browser.Session = (*fakePage)(nil)

// listing returns a logged in fake sitting on the listing view.
func listing(cfg config.Config, cats ...*fakeCategory) *fakePage {
	f := newFakePage(cfg, cats...)
	f.loggedIn = true
	_ = f.Navigate(context.Background(), testListingURL)
	return f
}

func app(number, status string) records.RawRow {
	return records.RawRow{
		"2024-01-01", "SVC", "CAT", number, "2024-01-02",
		"PT Penjamin", "Jane Roe", "P", "1991-02-03", "NZL",
		"N7654321", "ITAS", "Bekerja", "Verifikator", status,
	}
}

func numbers(rows []records.RawRow) []string {
	out := []string{}
	for _, r := range rows {
		out = append(out, r[records.ColApplicationNumber])
	}
	return out
}

func counter(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
