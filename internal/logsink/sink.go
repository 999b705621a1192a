package logsink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dentsync/internal"
	"dentsync/internal/config"
)

// LogSheet is the slice of workbook behavior the sink writes through. Log
// rows are append-only; existing rows are never updated, so overlapping
// manual and scheduled runs cannot corrupt each other's entries.
type LogSheet interface {
	EnsureSheet(tab string, headers []string) error
	AppendRow(tab string, values []any) error
	Rows(tab string) ([][]string, error)
	RowCount(tab string) (int, error)
	DeleteRows(tab string, start, count int) error
}

var summaryHeaders = []string{"Timestamp", "Status", "Domain", "Spreadsheet", "Inspected", "Added", "Skipped", "Errored", "Duration (ms)", "Error", "Session"}

var debugHeaders = []string{"Timestamp", "Level", "Operation", "Message", "Context", "Data", "Session", "User"}

type Sink struct {
	cfg      config.Config
	sheet    LogSheet
	notifier Notifier
	session  string
	user     string
	now      func() time.Time
}

func NewSink(cfg config.Config, sheet LogSheet, notifier Notifier, session, user string) *Sink {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Sink{cfg: cfg, sheet: sheet, notifier: notifier, session: session, user: user, now: time.Now}
}

// WriteSummary appends one audit row for the run. Callers invoke it on every
// exit path, success or not.
func (s *Sink) WriteSummary(summary internal.RunSummary) error {
	if err := s.sheet.EnsureSheet(s.cfg.SummaryLogSheet, summaryHeaders); err != nil {
		return err
	}
	return s.sheet.AppendRow(s.cfg.SummaryLogSheet, []any{
		summary.StartedAt.Format(time.RFC3339),
		string(summary.Status),
		summary.Domain,
		summary.SpreadsheetName,
		summary.Inspected,
		summary.Added,
		summary.Skipped,
		summary.Errored,
		summary.Duration.Milliseconds(),
		summary.ErrorText,
		summary.SessionID,
	})
}

func (s *Sink) Info(operation, message string, context map[string]any) {
	s.event(internal.LogInfo, operation, message, context, nil)
}

func (s *Sink) Warning(operation, message string, context map[string]any) {
	s.event(internal.LogWarning, operation, message, context, nil)
}

// Error records the event and, for critical categories, fires a best-effort
// notification. Neither path can fail the caller.
func (s *Sink) Error(operation string, err error, context map[string]any) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	s.event(internal.LogError, operation, message, context, nil)

	category := ClassifyError(message)
	if category == "" {
		return
	}
	subject := fmt.Sprintf("[dentsync] %s failure in %s", category, operation)
	body := fmt.Sprintf("Operation: %s\nCategory: %s\nSession: %s\nTime: %s\n\n%s",
		operation, category, s.session, s.now().Format(time.RFC3339), message)
	if notifyErr := s.notifier.Notify(subject, body); notifyErr != nil {
		s.event(internal.LogWarning, "notify", "notification failed: "+notifyErr.Error(), nil, nil)
	}
}

func (s *Sink) event(level internal.LogLevel, operation, message string, context, extra map[string]any) {
	if err := s.sheet.EnsureSheet(s.cfg.DebugLogSheet, debugHeaders); err != nil {
		fmt.Printf("log sink unavailable: %v\n", err)
		return
	}
	if err := s.sheet.AppendRow(s.cfg.DebugLogSheet, []any{
		s.now().Format(time.RFC3339),
		string(level),
		operation,
		message,
		serialize(context),
		serialize(extra),
		s.session,
		s.user,
	}); err != nil {
		fmt.Printf("log sink append failed: %v\n", err)
	}
}

// Prune trims both log sheets: entries beyond the configured ceiling and
// entries older than the retention window are deleted oldest-first in one
// bulk removal per sheet.
func (s *Sink) Prune() error {
	cutoff := s.now().AddDate(0, 0, -s.cfg.LogRetentionDays)
	for _, tab := range []string{s.cfg.SummaryLogSheet, s.cfg.DebugLogSheet} {
		if err := s.pruneSheet(tab, cutoff); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) pruneSheet(tab string, cutoff time.Time) error {
	rows, err := s.sheet.Rows(tab)
	if err != nil {
		// Sheet not created yet; nothing to prune.
		return nil
	}
	entries := len(rows) - 1
	if entries <= 0 {
		return nil
	}

	drop := 0
	if entries > s.cfg.LogMaxEntries {
		drop = entries - s.cfg.LogMaxEntries
	}

	// Rows are appended chronologically, so aged entries form a prefix.
	aged := 0
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) == 0 {
			break
		}
		stamp, err := time.Parse(time.RFC3339, strings.TrimSpace(rows[i][0]))
		if err != nil || !stamp.Before(cutoff) {
			break
		}
		aged++
	}
	if aged > drop {
		drop = aged
	}
	if drop == 0 {
		return nil
	}
	return s.sheet.DeleteRows(tab, 1, drop)
}

// ClassifyError maps an error message onto the notification-worthy failure
// categories. Anything else returns "".
func ClassifyError(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "401"), strings.Contains(lower, "invalid token"), strings.Contains(lower, "authentication"), strings.Contains(lower, "api key"):
		return "authentication"
	case strings.Contains(lower, "forbidden"), strings.Contains(lower, "403"), strings.Contains(lower, "permission"):
		return "authorization"
	case strings.Contains(lower, "quota"), strings.Contains(lower, "rate limit"), strings.Contains(lower, "429"), strings.Contains(lower, "too many requests"):
		return "quota"
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"), strings.Contains(lower, "timed out"):
		return "timeout"
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"), strings.Contains(lower, "network"), strings.Contains(lower, "dns"):
		return "network"
	default:
		return ""
	}
}

// FormatSummary renders the dialog text shown after a manual run.
func FormatSummary(summary internal.RunSummary) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%s sync %s\n", summary.Domain, summary.Status)
	fmt.Fprintf(b, "  spreadsheet: %s\n", summary.SpreadsheetName)
	fmt.Fprintf(b, "  inspected=%d added=%d skipped=%d errored=%d\n", summary.Inspected, summary.Added, summary.Skipped, summary.Errored)
	fmt.Fprintf(b, "  destination: created=%d updated=%d\n", summary.Created, summary.Updated)
	fmt.Fprintf(b, "  duration: %s\n", summary.Duration.Round(time.Millisecond))
	for _, tab := range summary.Tabs {
		if tab.TabError != "" {
			fmt.Fprintf(b, "  tab %q: %s\n", tab.Tab, tab.TabError)
		}
	}
	if summary.ErrorText != "" {
		excerpt := summary.ErrorText
		if len(excerpt) > 300 {
			excerpt = excerpt[:300] + "..."
		}
		fmt.Fprintf(b, "  error: %s\n", excerpt)
	}
	return b.String()
}

func serialize(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	blob, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(blob)
}
