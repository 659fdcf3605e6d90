package dashboard

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"staypermit/internal/components/chrono"
	"staypermit/internal/records"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, jakarta)
}

func TestParseDate(t *testing.T) {
	want := date(2024, time.August, 5)
	for _, input := range []string{
		"2024-08-05",
		"2024-08-05 13:45:00",
		"2024-08-05T13:45:00",
		"05-08-2024",
		"05/08/2024",
		"05/08/2024 09:00:00",
		"5 Agustus 2024",
		"5 Agu 2024",
		"5 August 2024",
		"  5 Agustus 2024 14:30 ",
	} {
		t.Run(input, func(t *testing.T) {
			got, err := ParseDate(input, jakarta)
			require.NoError(t, err)
			require.True(t, want.Equal(got), "got %s", got)
		})
	}

	for _, input := range []string{"", "-", "kemarin", "2024-13-40"} {
		_, err := ParseDate(input, jakarta)
		require.ErrorIs(t, err, ErrBadDate, input)
	}
}

func TestParseDateMonthNames(t *testing.T) {
	months := map[string]time.Month{
		"Januari": time.January, "Februari": time.February, "Maret": time.March,
		"Mei": time.May, "Juni": time.June, "Juli": time.July,
		"Oktober": time.October, "Desember": time.December, "Okt": time.October,
		"Des": time.December,
	}
	for name, month := range months {
		got, err := ParseDate("12 "+name+" 2023", jakarta)
		require.NoError(t, err, name)
		require.Equal(t, month, got.Month(), name)
	}
}

func TestBusinessDays(t *testing.T) {
	// 2024-08-05 is a Monday
	monday := date(2024, time.August, 5)
	cases := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"same day", monday, monday, 0},
		{"next day", monday, monday.AddDate(0, 0, 1), 1},
		{"to friday", monday, monday.AddDate(0, 0, 4), 4},
		{"to saturday", monday, monday.AddDate(0, 0, 5), 5},
		{"to next monday", monday, monday.AddDate(0, 0, 7), 5},
		{"friday over weekend", monday.AddDate(0, 0, 4), monday.AddDate(0, 0, 7), 1},
		{"saturday to monday", monday.AddDate(0, 0, 5), monday.AddDate(0, 0, 7), 0},
		{"three weeks", monday, monday.AddDate(0, 0, 21), 15},
		{"reversed", monday.AddDate(0, 0, 7), monday, -5},
		{"ignores time of day", monday.Add(23 * time.Hour), monday.AddDate(0, 0, 1), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, BusinessDays(tc.start, tc.end))
		})
	}
}

func csvOf(header []string, rows ...[]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, ",") + "\n")
	for _, r := range rows {
		b.WriteString(strings.Join(r, ",") + "\n")
	}
	return b.String()
}

func record(number, service, category, applied, status string) []string {
	values := make([]string, len(records.Schema))
	values[records.ColApplicationNumber] = number
	values[records.ColServiceType] = service
	values[records.ColProductCategory] = category
	values[records.ColApplicationDate] = applied
	values[records.ColApplicationStatus] = status
	return values
}

func TestLoad(t *testing.T) {
	input := csvOf(records.Header(),
		record("APP001", "ITAS", "Kerja", "2024-08-01", "Verifikasi"),
		record("APP002", "ITAP", "Keluarga", "bukan tanggal", "Verifikasi"),
		record("APP003", "ITAS", "Kerja", "02/08/2024", "Disetujui"),
	)
	ds, err := Load(strings.NewReader(input), jakarta)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Dropped)
	require.Len(t, ds.Entries, 2)
	require.Equal(t, "APP003", ds.Entries[1].Get(records.ColApplicationNumber))
	require.True(t, date(2024, time.August, 2).Equal(ds.Entries[1].Applied))

	earliest, ok := ds.Earliest()
	require.True(t, ok)
	require.True(t, date(2024, time.August, 1).Equal(earliest))
	require.Equal(t, []string{"ITAS"}, ds.Distinct(records.ColServiceType))
}

func TestLoadReorderedColumns(t *testing.T) {
	input := csvOf(
		[]string{"Status Permohonan", "Tanggal Permohonan", "extra", "Nomor Permohonan"},
		[]string{"Verifikasi", "2024-08-01", "x", "APP001"},
	)
	ds, err := Load(strings.NewReader(input), jakarta)
	require.NoError(t, err)
	require.Len(t, ds.Entries, 1)

	want := make([]string, len(records.Schema))
	want[records.ColApplicationStatus] = "Verifikasi"
	want[records.ColApplicationDate] = "2024-08-01"
	want[records.ColApplicationNumber] = "APP001"
	if diff := cmp.Diff(want, ds.Entries[0].Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsMissingColumns(t *testing.T) {
	_, err := Load(strings.NewReader("Nomor Permohonan,Layanan\nAPP001,ITAS\n"), jakarta)
	require.ErrorContains(t, err, "Tanggal Permohonan")

	_, err = Load(strings.NewReader(""), jakarta)
	require.Error(t, err)

	earliest, ok := Dataset{}.Earliest()
	require.False(t, ok)
	require.True(t, earliest.IsZero())
}

func fixture(t testing.TB) Dataset {
	input := csvOf(records.Header(),
		record("APP001", "ITAS", "Kerja", "2024-07-29", "Verifikasi"),
		record("APP002", "ITAP", "Keluarga", "2024-08-01", "Verifikasi"),
		record("APP003", "ITAS", "Keluarga", "2024-08-05", "Disetujui"),
		record("APP004", "ITAS", "Kerja", "2024-08-08", "Verifikasi"),
	)
	ds, err := Load(strings.NewReader(input), jakarta)
	require.NoError(t, err)
	return ds
}

// Thursday 2024-08-08 in the afternoon
var today = chrono.Fixed{At: time.Date(2024, time.August, 8, 15, 0, 0, 0, jakarta)}

func numbersOf(v View) []string {
	var out []string
	for _, r := range v.Rows {
		out = append(out, r.Get(records.ColApplicationNumber))
	}
	return out
}

func TestBuild(t *testing.T) {
	ds := fixture(t)
	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name: "defaults cover everything",
			want: []string{"APP001", "APP002", "APP003", "APP004"},
		},
		{
			name:   "to is inclusive",
			filter: Filter{From: date(2024, time.August, 1), To: date(2024, time.August, 5)},
			want:   []string{"APP002", "APP003"},
		},
		{
			name:   "to with time of day",
			filter: Filter{To: time.Date(2024, time.August, 1, 0, 30, 0, 0, jakarta)},
			want:   []string{"APP001", "APP002"},
		},
		{
			name:   "services",
			filter: Filter{Services: []string{"ITAP"}},
			want:   []string{"APP002"},
		},
		{
			name:   "categories",
			filter: Filter{Categories: []string{"Kerja"}},
			want:   []string{"APP001", "APP004"},
		},
		{
			name:   "services and categories",
			filter: Filter{Services: []string{"ITAS"}, Categories: []string{"Keluarga"}},
			want:   []string{"APP003"},
		},
		{
			name:   "nothing matches",
			filter: Filter{Services: []string{"VOA"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Build(ds, tc.filter, today, 3)
			require.Equal(t, tc.want, numbersOf(v))
		})
	}
}

func TestBuildAges(t *testing.T) {
	v := Build(fixture(t), Filter{}, today, 3)
	require.True(t, date(2024, time.July, 29).Equal(v.From))
	require.True(t, date(2024, time.August, 8).Equal(v.To))

	ages := map[string]int{}
	overdue := map[string]bool{}
	for _, r := range v.Rows {
		ages[r.Get(records.ColApplicationNumber)] = r.Age
		overdue[r.Get(records.ColApplicationNumber)] = r.Overdue
	}
	require.Equal(t, map[string]int{"APP001": 8, "APP002": 5, "APP003": 3, "APP004": 0}, ages)
	// an age equal to the threshold is not overdue yet
	require.Equal(t, map[string]bool{"APP001": true, "APP002": true, "APP003": false, "APP004": false}, overdue)
	require.Equal(t, 2, v.OverdueCount())
}

func TestSummary(t *testing.T) {
	v := Build(fixture(t), Filter{}, today, 3)
	require.Equal(t, []StatusCount{
		{Status: "Verifikasi", Total: 3, Overdue: 2, OldestAge: 8},
		{Status: "Disetujui", Total: 1, Overdue: 0, OldestAge: 3},
	}, v.Summary())
}

func TestRender(t *testing.T) {
	v := Build(fixture(t), Filter{Categories: []string{"Kerja"}}, today, 3)

	for _, format := range Formats {
		t.Run(string(format), func(t *testing.T) {
			var out bytes.Buffer
			Render(&out, v, format)
			require.Contains(t, out.String(), "APP001")
			require.Contains(t, out.String(), "APP004")
			require.NotContains(t, out.String(), "APP002")
		})
	}

	var out bytes.Buffer
	Render(&out, v, FormatCSV)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	header := strings.ToLower(lines[0])
	require.True(t, strings.HasSuffix(header, strings.ToLower(ColumnAge+","+ColumnOverdue)), lines[0])
	require.True(t, strings.HasSuffix(lines[1], ",8,ya"), lines[1])
	require.True(t, strings.HasSuffix(lines[2], ",0,"), lines[2])

	out.Reset()
	Render(&out, v, FormatTable)
	require.Contains(t, out.String(), "2 applications from 2024-07-29 to 2024-08-08, 1 past 3 business days")
}

func TestRenderSummary(t *testing.T) {
	v := Build(fixture(t), Filter{}, today, 3)
	var out bytes.Buffer
	RenderSummary(&out, v, FormatMarkdown)
	require.Contains(t, out.String(), "| Verifikasi | 3 | 2 | 8 |")
	require.Contains(t, out.String(), "| Disetujui | 1 | 0 | 3 |")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("HTML")
	require.NoError(t, err)
	require.Equal(t, FormatHTML, f)

	_, err = ParseFormat("xlsx")
	require.Error(t, err)
}
