package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dentsync/internal/config"
	"dentsync/internal/logsink"
	"dentsync/internal/pipeline"
	"dentsync/internal/runner"
	"dentsync/internal/storage"
	"dentsync/internal/workbook"
	"dentsync/internal/workbook/gsheets"
	"dentsync/internal/workbook/xlsx"
)

// Service is the scheduled trigger surface: it re-runs the configured sync
// on a fixed interval, or once per day at the configured hour when
// DAEMON_INTERVAL_SEC is zero. Scheduled runs never print a summary dialog;
// they rely on the log sheets and the notifier.
type Service struct {
	db  *storage.DB
	cfg config.Config
}

func NewService(db *storage.DB, cfg config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			fmt.Printf("sync cycle error: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.nextWait()):
		}
	}
}

func (s *Service) nextWait() time.Duration {
	if s.cfg.DaemonIntervalSec > 0 {
		return time.Duration(s.cfg.DaemonIntervalSec) * time.Second
	}

	loc := s.cfg.Location()
	now := time.Now().In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.DaemonDailyHour, 0, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return time.Until(next)
}

func (s *Service) runCycle(ctx context.Context) error {
	domain, err := s.makeDomain()
	if err != nil {
		return err
	}

	notifier := s.makeNotifier(ctx)
	svc := runner.NewService(s.db, s.cfg)

	for _, ref := range splitRefs(s.cfg.DaemonWorkbooks) {
		wb, closeWb, err := s.openWorkbook(ctx, ref)
		if err != nil {
			fmt.Printf("open workbook %s: %v\n", ref, err)
			continue
		}

		summary, err := svc.Run(ctx, runner.Options{
			Domain:   domain,
			Workbook: wb,
			Location: s.cfg.DaemonLocation,
			Notifier: notifier,
			User:     "scheduler",
		})
		closeWb()
		if err != nil {
			fmt.Printf("sync %s failed: %v\n", ref, err)
			continue
		}
		fmt.Printf("sync cycle done workbook=%s status=%s added=%d skipped=%d errored=%d\n",
			ref, summary.Status, summary.Added, summary.Skipped, summary.Errored)
	}
	return nil
}

func (s *Service) makeDomain() (pipeline.Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s.cfg.DaemonDomain)) {
	case "financials":
		return pipeline.FinancialsDomain(s.cfg), nil
	case "hygiene":
		return pipeline.HygieneDomain(s.cfg), nil
	default:
		return pipeline.Domain{}, fmt.Errorf("unsupported sync domain: %s", s.cfg.DaemonDomain)
	}
}

func (s *Service) makeNotifier(ctx context.Context) logsink.Notifier {
	if strings.TrimSpace(s.cfg.NotifyEmail) == "" {
		return logsink.NoopNotifier{}
	}
	notifier, err := logsink.NewGmailNotifier(ctx, s.cfg)
	if err != nil {
		fmt.Printf("notifier unavailable: %v\n", err)
		return logsink.NoopNotifier{}
	}
	return notifier
}

// openWorkbook resolves "gs:<spreadsheet-id>" to the Sheets connector and
// anything else to a local xlsx path.
func (s *Service) openWorkbook(ctx context.Context, ref string) (workbook.Workbook, func(), error) {
	if id, ok := strings.CutPrefix(ref, "gs:"); ok {
		conn, err := gsheets.NewConnector(ctx, s.cfg, id)
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

func splitRefs(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
