package browser

import (
	"context"
	"errors"
)

// HandleAttr is stamped onto table rows to give a rendered row set an
// identity that disappears the moment the rows are replaced.
const HandleAttr = "data-sp-handle"

var ErrNoSuchElement = errors.New("browser: no such element")

// Page is the subset of a browser tab the extraction pipeline drives. Every
// method is a single non-blocking query or action, waiting is layered on top
// by the caller.
//
// note: fault injection point
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)

	// Fill types value into the input matched by selector.
	Fill(ctx context.Context, selector, value string) error
	// Click dispatches a DOM click on the element, it returns ErrNoSuchElement
	// when nothing matches.
	Click(ctx context.Context, selector string) error
	// Select sets the value of a <select> and fires its change event, changed
	// is false when the select already held value.
	Select(ctx context.Context, selector, value string) (changed bool, err error)

	Exists(ctx context.Context, selector string) (bool, error)
	// Attribute returns ErrNoSuchElement when nothing matches, ok is false when
	// the element exists without the attribute.
	Attribute(ctx context.Context, selector, name string) (value string, ok bool, err error)
	OuterHTML(ctx context.Context, selector string) (string, error)

	// Stamp sets HandleAttr=token on every row matched by rowSelector, rows
	// carrying an older token included, and returns how many rows it stamped.
	Stamp(ctx context.Context, rowSelector, token string) (int, error)
	// Stamped reports whether any row stamped with token is still attached to
	// the document.
	Stamped(ctx context.Context, token string) (bool, error)
	// CountRows counts rows matched by rowSelector with at least minCells
	// cells that are not stamped with exclude.
	CountRows(ctx context.Context, rowSelector string, minCells int, exclude string) (int, error)
}

// Session is a Page owned by a single run, Close tears the browser down.
type Session interface {
	Page
	Close() error
}
