package commands

import (
	"log/slog"
	"os"

	"staypermit/internal/components/chrono"
	"staypermit/internal/components/serviceutil"
	"staypermit/internal/dashboard"

	"github.com/spf13/cobra"
)

var (
	viewCSV        string
	viewFrom       string
	viewTo         string
	viewServices   []string
	viewCategories []string
	viewThreshold  int
	viewFormat     string
	viewSummary    bool
)

func init() {
	viewCmd.Flags().StringVar(&viewCSV, "csv", "", "csv produced by scrape (defaults to output.csv in the config)")
	viewCmd.Flags().StringVar(&viewFrom, "from", "", "earliest application date (defaults to the earliest in the file)")
	viewCmd.Flags().StringVar(&viewTo, "to", "", "latest application date, inclusive (defaults to today)")
	viewCmd.Flags().StringSliceVar(&viewServices, "service", nil, "only show these service types (repeatable)")
	viewCmd.Flags().StringSliceVar(&viewCategories, "category", nil, "only show these product categories (repeatable)")
	viewCmd.Flags().IntVar(&viewThreshold, "threshold", -1, "business days after which an application is overdue (defaults to overdue_after in the config)")
	viewCmd.Flags().StringVarP(&viewFormat, "format", "f", string(dashboard.FormatTable), "table, markdown, html or csv")
	viewCmd.Flags().BoolVar(&viewSummary, "summary", true, "print the per status summary after the rows")
	rootCmd.AddCommand(viewCmd)
}

var viewCmd = &cobra.Command{
	Use:   "view [--csv <path/to/output.csv>]",
	Short: "Shows the scraped applications with their processing age in business days.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		clock, err := chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}
		format, err := dashboard.ParseFormat(viewFormat)
		if err != nil {
			serviceutil.Fatal("invalid --format", err)
		}

		path := viewCSV
		if path == "" {
			path = cfg.Output.CSV
		}
		threshold := viewThreshold
		if threshold < 0 {
			threshold = cfg.OverdueAfter
		}

		filter := dashboard.Filter{
			Services:   viewServices,
			Categories: viewCategories,
		}
		if viewFrom != "" {
			filter.From, err = dashboard.ParseDate(viewFrom, clock.Location())
			if err != nil {
				serviceutil.Fatal("invalid --from", err)
			}
		}
		if viewTo != "" {
			filter.To, err = dashboard.ParseDate(viewTo, clock.Location())
			if err != nil {
				serviceutil.Fatal("invalid --to", err)
			}
		}

		ds, err := dashboard.LoadFile(path, clock.Location())
		if err != nil {
			serviceutil.Fatal("failed to load "+path, err)
		}
		if ds.Dropped > 0 {
			slog.Warn("rows without a valid application date were left out", "dropped", ds.Dropped)
		}

		v := dashboard.Build(ds, filter, clock, threshold)
		dashboard.Render(os.Stdout, v, format)
		if viewSummary {
			dashboard.RenderSummary(os.Stdout, v, format)
		}
	},
}
