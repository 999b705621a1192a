package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/user"
	"strings"

	"dentsync/internal/config"
	"dentsync/internal/importer"
	"dentsync/internal/logsink"
	"dentsync/internal/pipeline"
	"dentsync/internal/runner"
	"dentsync/internal/storage"
	"dentsync/internal/workbook"
	"dentsync/internal/workbook/gsheets"
	"dentsync/internal/workbook/xlsx"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx := context.Background()

	cmd := os.Args[1]
	switch cmd {
	case "sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		workbookRef := fs.String("workbook", "", "xlsx path or gs:<spreadsheet-id>")
		domainName := fs.String("domain", "financials", "financials|hygiene")
		location := fs.String("location", "", "location code, e.g. BAYTOWN")
		dryRun := fs.Bool("dry-run", false, "validate without persisting")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*workbookRef) == "" || strings.TrimSpace(*location) == "" {
			must(fmt.Errorf("--workbook and --location are required"))
		}

		domain, err := makeDomain(cfg, *domainName)
		must(err)
		wb, closeWb, err := openWorkbook(ctx, cfg, *workbookRef)
		must(err)
		defer closeWb()

		svc := runner.NewService(db, cfg)
		summary, err := svc.Run(ctx, runner.Options{
			Domain:   domain,
			Workbook: wb,
			Location: *location,
			DryRun:   *dryRun,
			Notifier: makeNotifier(ctx, cfg),
			User:     currentUser(),
		})
		// Manual invocations always surface the dialog, even on failure.
		fmt.Print(logsink.FormatSummary(summary))
		must(err)
	case "test-connection":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		domainName := fs.String("domain", "financials", "financials|hygiene")
		location := fs.String("location", "", "location code")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*location) == "" {
			must(fmt.Errorf("--location is required"))
		}

		creds, err := db.LoadCredentials(cfg)
		must(err)
		client := importer.NewClient(cfg, creds)
		must(client.TestConnection(ctx, *domainName, *location))
		fmt.Printf("connection ok domain=%s location=%s\n", *domainName, *location)
	case "creds:set":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		key := fs.String("key", "", "property key, e.g. api.key or clinic.BAYTOWN")
		value := fs.String("value", "", "property value")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*key) == "" || strings.TrimSpace(*value) == "" {
			must(fmt.Errorf("--key and --value are required"))
		}
		must(db.SetProperty(*key, *value))
		fmt.Printf("property set: %s\n", *key)
	case "creds:list":
		props, err := db.ListProperties("")
		must(err)
		for key, value := range props {
			if key == "api.key" {
				value = "****"
			}
			fmt.Printf("%s=%s\n", key, value)
		}
	case "logs:prune":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		workbookRef := fs.String("workbook", "", "xlsx path or gs:<spreadsheet-id>")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*workbookRef) == "" {
			must(fmt.Errorf("--workbook is required"))
		}

		wb, closeWb, err := openWorkbook(ctx, cfg, *workbookRef)
		must(err)
		defer closeWb()
		sink := logsink.NewSink(cfg, wb, nil, "manual-prune", currentUser())
		must(sink.Prune())
		must(wb.Flush())
		fmt.Println("log sheets pruned")
	case "runs:recent":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 10, "number of runs")
		_ = fs.Parse(os.Args[2:])
		rows, err := db.RecentRuns(*limit)
		must(err)
		for _, row := range rows {
			fmt.Printf("%s %-8s %-10s inspected=%d added=%d skipped=%d errored=%d %dms %s\n",
				row.StartedAt, row.Status, row.Domain, row.Inspected, row.Added, row.Skipped, row.Errored, row.DurationMs, row.ErrorText)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func makeDomain(cfg config.Config, name string) (pipeline.Domain, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "financials":
		return pipeline.FinancialsDomain(cfg), nil
	case "hygiene":
		return pipeline.HygieneDomain(cfg), nil
	default:
		return pipeline.Domain{}, fmt.Errorf("unsupported sync domain: %s", name)
	}
}

func openWorkbook(ctx context.Context, cfg config.Config, ref string) (workbook.Workbook, func(), error) {
	if id, ok := strings.CutPrefix(ref, "gs:"); ok {
		conn, err := gsheets.NewConnector(ctx, cfg, id)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() {}, nil
	}

	conn, err := xlsx.Open(ref)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { _ = conn.Close() }, nil
}

func makeNotifier(ctx context.Context, cfg config.Config) logsink.Notifier {
	if strings.TrimSpace(cfg.NotifyEmail) == "" {
		return logsink.NoopNotifier{}
	}
	notifier, err := logsink.NewGmailNotifier(ctx, cfg)
	if err != nil {
		fmt.Printf("notifier unavailable: %v\n", err)
		return logsink.NoopNotifier{}
	}
	return notifier
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func usage() {
	fmt.Println(`dentsync commands:
  sync            --workbook <path|gs:id> --location <code> [--domain financials|hygiene] [--dry-run]
  test-connection --location <code> [--domain financials|hygiene]
  creds:set       --key <property> --value <value>
  creds:list
  logs:prune      --workbook <path|gs:id>
  runs:recent     [--limit n]`)
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
