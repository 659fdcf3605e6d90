package dashboard

import (
	"slices"
	"sort"
	"time"

	"staypermit/internal/components/chrono"
	"staypermit/internal/records"
)

// Filter selects entries. Zero From / To default to the earliest date and
// today, an empty set means every value. To is inclusive.
type Filter struct {
	From       time.Time
	To         time.Time
	Services   []string
	Categories []string
}

type Row struct {
	Entry
	// Age is the processing age in business days.
	Age     int
	Overdue bool
}

type View struct {
	From      time.Time
	To        time.Time
	Threshold int
	Rows      []Row
}

// Build applies the filter and computes the age of every remaining entry as
// of the clock's today. Rows keep the dataset order.
func Build(ds Dataset, filter Filter, clock chrono.API, threshold int) View {
	loc := clock.Location()
	today := DateOf(clock.Now(), loc)

	from := filter.From
	if from.IsZero() {
		from, _ = ds.Earliest()
	}
	to := filter.To
	if to.IsZero() {
		to = today
	}
	from = DateOf(from, loc)
	to = DateOf(to, loc)
	end := to.AddDate(0, 0, 1)

	view := View{From: from, To: to, Threshold: threshold}
	for _, e := range ds.Entries {
		if e.Applied.Before(from) || !e.Applied.Before(end) {
			continue
		}
		if len(filter.Services) > 0 && !slices.Contains(filter.Services, e.Values[records.ColServiceType]) {
			continue
		}
		if len(filter.Categories) > 0 && !slices.Contains(filter.Categories, e.Values[records.ColProductCategory]) {
			continue
		}
		age := BusinessDays(e.Applied, today)
		view.Rows = append(view.Rows, Row{
			Entry:   e,
			Age:     age,
			Overdue: age > threshold,
		})
	}
	return view
}

func (v View) OverdueCount() int {
	n := 0
	for _, r := range v.Rows {
		if r.Overdue {
			n++
		}
	}
	return n
}

type StatusCount struct {
	Status  string
	Total   int
	Overdue int
	// OldestAge is the largest age among the status' applications.
	OldestAge int
}

// Summary groups the view by application status, largest groups first.
func (v View) Summary() []StatusCount {
	index := map[string]int{}
	var out []StatusCount
	for _, r := range v.Rows {
		status := r.Values[records.ColApplicationStatus]
		i, ok := index[status]
		if !ok {
			i = len(out)
			index[status] = i
			out = append(out, StatusCount{Status: status})
		}
		out[i].Total++
		if r.Overdue {
			out[i].Overdue++
		}
		out[i].OldestAge = max(out[i].OldestAge, r.Age)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Total > out[b].Total
	})
	return out
}
