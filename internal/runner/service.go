package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dentsync/internal"
	"dentsync/internal/config"
	"dentsync/internal/importer"
	"dentsync/internal/logsink"
	"dentsync/internal/pipeline"
	"dentsync/internal/storage"
	"dentsync/internal/workbook"
)

// Service drives one full sync run: credentials, tab processing, batched
// import, audit logging. The summary row is written on every exit path.
type Service struct {
	db  *storage.DB
	cfg config.Config
}

func NewService(db *storage.DB, cfg config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

type Options struct {
	Domain   pipeline.Domain
	Workbook workbook.Workbook
	Location string
	DryRun   bool
	Notifier logsink.Notifier
	User     string
}

// Run executes one sync. The returned error is non-nil only for fatal
// configuration failures; row, tab and batch problems are absorbed into the
// summary and the run keeps going.
func (s *Service) Run(ctx context.Context, opts Options) (internal.RunSummary, error) {
	session := uuid.NewString()
	sink := logsink.NewSink(s.cfg, opts.Workbook, opts.Notifier, session, opts.User)

	summary := internal.RunSummary{
		SessionID:       session,
		Domain:          opts.Domain.Name,
		SpreadsheetID:   opts.Workbook.ID(),
		SpreadsheetName: opts.Workbook.Name(),
		StartedAt:       time.Now(),
		Status:          internal.RunFailed,
	}

	// The audit trail is written no matter how the run ends.
	defer func() {
		summary.Duration = time.Since(summary.StartedAt)
		if err := sink.WriteSummary(summary); err != nil {
			fmt.Printf("write summary row: %v\n", err)
		}
		if err := s.db.InsertRun(summary); err != nil {
			fmt.Printf("record run: %v\n", err)
		}
		if err := opts.Workbook.Flush(); err != nil {
			fmt.Printf("flush workbook: %v\n", err)
		}
		if err := sink.Prune(); err != nil {
			fmt.Printf("prune logs: %v\n", err)
		}
	}()

	creds, err := s.db.LoadCredentials(s.cfg)
	if err != nil {
		summary.ErrorText = err.Error()
		sink.Error("load-credentials", err, nil)
		return summary, err
	}
	if err := validateCredentials(creds, opts.Location); err != nil {
		summary.ErrorText = err.Error()
		sink.Error("validate-credentials", err, nil)
		return summary, err
	}

	client := importer.NewClient(s.cfg, creds)
	processor := pipeline.NewProcessor(s.cfg, opts.Domain)

	results, err := processor.ProcessWorkbook(opts.Workbook)
	if err != nil {
		summary.ErrorText = err.Error()
		sink.Error("process-workbook", err, nil)
		return summary, err
	}

	var failureTexts []string
	for _, result := range results {
		tab := result.Summary
		summary.Absorb(tab)

		if tab.TabError != "" {
			sink.Error("process-tab", errors.New(tab.TabError), map[string]any{"tab": tab.Tab})
			continue
		}
		for _, rowErr := range tab.RowErrors {
			sink.Warning("transform-row", rowErr, map[string]any{"tab": tab.Tab})
		}
		if len(result.Records) == 0 {
			continue
		}

		imported, err := client.PushRecords(ctx, importer.ImportRequest{
			ImportPath:      opts.Domain.ImportPath,
			Location:        opts.Location,
			DataSourceID:    creds.DefaultDataSourceID,
			SpreadsheetID:   opts.Workbook.ID(),
			SpreadsheetName: opts.Workbook.Name(),
			SheetName:       tab.Tab,
			Records:         result.Records,
			DryRun:          opts.DryRun,
		})
		if err != nil {
			// Missing/invalid credentials surface here; abort the run.
			summary.ErrorText = err.Error()
			sink.Error("push-records", err, map[string]any{"tab": tab.Tab})
			return summary, err
		}

		summary.Created += imported.Created
		summary.Updated += imported.Updated
		for _, failure := range imported.Failures {
			summary.Errored += failure.Records
			failureTexts = append(failureTexts, fmt.Sprintf("tab %q batch %d: %s", tab.Tab, failure.Batch, failure.Err))
			sink.Error("push-batch", errors.New(failure.Err), map[string]any{"tab": tab.Tab, "batch": failure.Batch, "records": failure.Records})
		}

		sink.Info("sync-tab", fmt.Sprintf("synced %d records", imported.Sent), map[string]any{
			"tab": tab.Tab, "batches": imported.Batches, "created": imported.Created, "updated": imported.Updated,
		})
	}

	summary.Status = runStatus(summary, results)
	if len(failureTexts) > 0 {
		summary.ErrorText = strings.Join(failureTexts, "; ")
	}
	return summary, nil
}

func validateCredentials(creds internal.Credentials, location string) error {
	if strings.TrimSpace(creds.BaseURL) == "" {
		return errors.New("missing dashboard base URL (set DASHBOARD_API_BASE_URL or property api.base_url)")
	}
	if strings.TrimSpace(creds.APIKey) == "" {
		return errors.New("missing dashboard API key (set DASHBOARD_API_KEY or property api.key)")
	}
	if creds.ClinicID(location) == "" {
		return fmt.Errorf("no clinic id configured for location %q (set property clinic.%s)", location, location)
	}
	return nil
}

func runStatus(summary internal.RunSummary, results []pipeline.TabResult) internal.RunStatus {
	if summary.Errored > 0 {
		return internal.RunPartial
	}
	for _, result := range results {
		if result.Summary.TabError != "" {
			return internal.RunPartial
		}
	}
	return internal.RunSuccess
}
