package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"staypermit/internal/browser"
	"staypermit/internal/records"

	"github.com/stretchr/testify/require"
)

type scripted struct {
	results []bool
	errs    []error
	calls   int
}

func (s *scripted) Describe() string {
	return "scripted"
}

func (s *scripted) Satisfied(ctx context.Context, page browser.Page) (bool, error) {
	i := min(s.calls, len(s.results)-1)
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.results[i], err
}

func TestAwaitChecksImmediately(t *testing.T) {
	cond := &scripted{results: []bool{true}}
	err := Waiter{Poll: time.Hour}.Await(context.Background(), nil, time.Second, cond)
	require.NoError(t, err)
	require.Equal(t, 1, cond.calls)
}

func TestAwaitTreatsErrorsAsNotYet(t *testing.T) {
	transient := errors.New("node detached")
	cond := &scripted{
		results: []bool{false, false, true},
		errs:    []error{transient, transient, nil},
	}
	err := Waiter{Poll: time.Millisecond}.Await(context.Background(), nil, time.Second, cond)
	require.NoError(t, err)
	require.Equal(t, 3, cond.calls)
}

func TestAwaitTimesOut(t *testing.T) {
	cond := &scripted{
		results: []bool{false},
		errs:    []error{errors.New("boom")},
	}
	started := time.Now()
	err := Waiter{Poll: time.Millisecond}.Await(context.Background(), nil, 30*time.Millisecond, cond)
	require.ErrorIs(t, err, ErrWaitTimeout)
	require.Contains(t, err.Error(), "boom")
	require.Less(t, time.Since(started), time.Second)
}

func TestAwaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Waiter{Poll: time.Millisecond}.Await(ctx, nil, time.Second, &scripted{results: []bool{false}})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrWaitTimeout)
}

func TestCombinators(t *testing.T) {
	yes := &scripted{results: []bool{true}}
	no := &scripted{results: []bool{false}}
	broken := &scripted{results: []bool{false}, errs: []error{errors.New("detached")}}

	cases := []struct {
		name     string
		cond     WaitCondition
		expected bool
		err      bool
	}{
		{name: "any with one true", cond: AnyOf{no, yes}, expected: true},
		{name: "any error does not mask true", cond: AnyOf{broken, yes}, expected: true},
		{name: "any all false", cond: AnyOf{no, no}, expected: false},
		{name: "any error only", cond: AnyOf{broken, no}, expected: false, err: true},
		{name: "all true", cond: AllOf{yes, yes}, expected: true},
		{name: "all one false", cond: AllOf{yes, no}, expected: false},
		{name: "all error", cond: AllOf{yes, broken}, expected: false, err: true},
		{name: "not", cond: Not{no}, expected: true},
		{name: "not error", cond: Not{broken}, expected: false, err: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ok, err := c.cond.Satisfied(context.Background(), nil)
			require.Equal(t, c.expected, ok)
			if c.err {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPageConditions(t *testing.T) {
	cfg := testConfig("a", "b")
	f := listing(cfg,
		&fakeCategory{id: "a", pages: [][]records.RawRow{{app("APP1", "x")}}},
		&fakeCategory{id: "b", pages: [][]records.RawRow{{}}},
	)
	f.settle()
	ctx := context.Background()
	view := resolveView(cfg.Selectors, cfg.Categories[0])
	other := resolveView(cfg.Selectors, cfg.Categories[1])

	ok, err := AttributeContains{Selector: view.Tab, Name: "class", Value: "active"}.Satisfied(ctx, f)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = AttributeContains{Selector: other.Tab, Name: "class", Value: "active"}.Satisfied(ctx, f)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = ControlEnabled{Selector: other.Tab, DisabledClass: "disabled"}.Satisfied(ctx, f)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ControlEnabled{Selector: "#nowhere"}.Satisfied(ctx, f)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = PresenceOfRow{Rows: view.Rows}.Satisfied(ctx, f)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = LocationPrefix{Prefix: testListingURL}.Satisfied(ctx, f)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = StalenessOf{Token: "never-stamped"}.Satisfied(ctx, f)
	require.NoError(t, err)
	require.True(t, ok)
}
