package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"staypermit/internal/browser"
	"staypermit/internal/records"
	"staypermit/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// rows with fewer non empty cells are placeholders ("No data available",
// "Processing...")
const minDataCells = 2

var errStaleHandle = errors.New("table handle went stale before extraction")

type Extractor struct{}

// ExtractRows reads the rows belonging to handle. The table markup is fetched
// fresh on every call, a handle from a previous page matches nothing.
func (Extractor) ExtractRows(ctx context.Context, page browser.Page, handle TableHandle) ([]records.RawRow, int, error) {
	markup, err := page.OuterHTML(ctx, handle.Table)
	if err != nil {
		return nil, 0, fmt.Errorf("read table: %w", err)
	}
	rows, discarded, matched, err := ParseRows(markup, handle.Token)
	if err != nil {
		return nil, 0, err
	}
	if matched == 0 && handle.Stamped > 0 {
		return nil, 0, errStaleHandle
	}
	return rows, discarded, nil
}

// ParseRows returns the data rows stamped with token, how many stamped rows
// were discarded as placeholders and how many stamped rows were found.
func ParseRows(markup, token string) (rows []records.RawRow, discarded, matched int, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("parse table: %w", err)
	}

	selector := fmt.Sprintf(`tr[%s="%s"]`, browser.HandleAttr, token)
	doc.Find(selector).Each(func(_ int, tr *goquery.Selection) {
		matched++
		row := records.RawRow(htmlutil.CellTexts(tr))
		if !row.IsData() {
			discarded++
			return
		}
		rows = append(rows, row)
	})
	return rows, discarded, matched, nil
}
