package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"staypermit/internal/browser"
	"staypermit/internal/components/chrono"
	"staypermit/internal/components/serviceutil"
	"staypermit/internal/components/telemetry"
	"staypermit/internal/config"
	"staypermit/internal/portal"
	"staypermit/internal/sink"
	"staypermit/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	scrapeOut  string
	scrapeDB   string
	scrapePerf bool
)

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeOut, "out", "o", "", "csv output path (defaults to output.csv in the config)")
	scrapeCmd.Flags().StringVar(&scrapeDB, "db", "", "sqlite database recording run history (defaults to output.database in the config)")
	scrapeCmd.Flags().BoolVar(&scrapePerf, "perf", false, "export cpu and memory gauges while running")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--out <path/to/output.csv>] [--db <path/to/history.db>]",
	Short: "Logs into the portal, walks every category and writes the deduplicated applications to csv.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		cred, err := portal.CredentialFromEnv(cfg.Env)
		if err != nil {
			serviceutil.Fatal("missing credentials", err)
		}
		clock, err := chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			serviceutil.Fatal("failed to load timezone", err)
		}

		providers, err := telemetry.SetupFromEnv(ctx, "staypermit")
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		exit := func(code int, message string, err error) {
			shutdownErr := providers.Shutdown(context.Background())
			if shutdownErr != nil {
				slog.Warn("telemetry shutdown", "err", shutdownErr.Error())
			}
			serviceutil.Exit(code, message, err)
		}
		if scrapePerf {
			telemetry.InstrumentPerfStats(ctx, 5*time.Second)
		}

		out := scrapeOut
		if out == "" {
			out = cfg.Output.CSV
		}
		dbPath := scrapeDB
		if dbPath == "" {
			dbPath = cfg.Output.Database
		}

		tel := telemetry.SlogAPI{}
		runner := portal.NewRunner(cfg, chromeLauncher(cfg.Browser, tel), clock, tel)

		report, runErr := runner.Run(ctx, cred)
		if !report.Started.IsZero() {
			printReport(report)
		}

		if dbPath != "" && (runErr == nil || errors.Is(runErr, portal.ErrNothingExtracted)) {
			err = saveRun(ctx, dbPath, report, runErr)
			if err != nil {
				exit(serviceutil.ExitFatal, "failed to record run", err)
			}
		}

		switch {
		case errors.Is(runErr, portal.ErrNothingExtracted):
			exit(serviceutil.ExitNothing, "no application was extracted, the csv was left untouched", runErr)
		case runErr != nil:
			exit(serviceutil.ExitFatal, "scrape failed", runErr)
		}

		err = sink.WriteAll(ctx, report.Records, sink.CSVFile{Path: out})
		if err != nil {
			exit(serviceutil.ExitFatal, "failed to write csv", err)
		}
		slog.Info(
			"scrape complete",
			"records", report.Records.Len(),
			"out", out,
			"took", report.Duration().Round(time.Second).String(),
		)

		err = providers.Shutdown(context.Background())
		if err != nil {
			slog.Warn("telemetry shutdown", "err", err.Error())
		}
	},
}

func chromeLauncher(opts config.Browser, tel telemetry.API) portal.Launcher {
	headless := opts.Headless == nil || *opts.Headless
	execPath := opts.ExecPath
	if execPath == "" {
		execPath = os.Getenv("CHROME_PATH")
	}

	return func(ctx context.Context) (browser.Session, error) {
		chrome, err := browser.Launch(ctx, browser.Options{
			Headless:     headless,
			ExecPath:     execPath,
			UserAgent:    opts.UserAgent,
			WindowWidth:  opts.WindowWidth,
			WindowHeight: opts.WindowHeight,
		}, tel)
		if err != nil {
			return nil, err
		}
		return chrome, nil
	}
}

func saveRun(ctx context.Context, path string, report portal.Report, runErr error) error {
	db, err := store.Open(ctx, path, telemetry.SlogAPI{})
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.SaveRun(ctx, report, runErr)
	if err != nil {
		return err
	}
	slog.Info("recorded run", "id", id, "db", path)
	return nil
}

var statusColors = map[portal.OutcomeStatus]text.Colors{
	portal.OutcomeOK:          {text.FgGreen},
	portal.OutcomeEmpty:       {text.FgHiBlack},
	portal.OutcomePartial:     {text.FgYellow},
	portal.OutcomeUnavailable: {text.FgRed},
}

func printReport(report portal.Report) {
	t := newTable()
	t.SetTitle("Run %s", report.Started.Format(time.DateTime))
	t.AppendHeader(table.Row{"Category", "Status", "Pages", "Rows", "Discarded", "Error"})
	for _, c := range report.Categories {
		status := string(c.Status)
		if colors, ok := statusColors[c.Status]; ok {
			status = colors.Sprint(status)
		}
		errText := ""
		if c.Err != nil {
			errText = c.Err.Error()
		}
		t.AppendRow(table.Row{c.Category, status, c.Pages, c.Rows, c.Discarded, errText})
	}
	t.AppendFooter(table.Row{
		"",
		"",
		"",
		fmt.Sprintf("%d observed", report.Stats.Observed),
		fmt.Sprintf("%d malformed, %d keyless", report.Stats.Malformed, report.Stats.Keyless),
		fmt.Sprintf(
			"%d records, %d duplicates, %s",
			report.Records.Len(),
			report.Stats.Duplicates,
			report.Duration().Round(time.Second),
		),
	})
	t.Render()
}
