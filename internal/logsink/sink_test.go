package logsink

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"dentsync/internal"
	"dentsync/internal/config"
)

type fakeLogSheet struct {
	tabs    map[string][][]string
	deletes []string
}

func newFakeLogSheet() *fakeLogSheet {
	return &fakeLogSheet{tabs: map[string][][]string{}}
}

func (f *fakeLogSheet) EnsureSheet(tab string, headers []string) error {
	if _, ok := f.tabs[tab]; !ok {
		row := make([]string, len(headers))
		copy(row, headers)
		f.tabs[tab] = [][]string{row}
	}
	return nil
}

func (f *fakeLogSheet) AppendRow(tab string, values []any) error {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = fmt.Sprintf("%v", v)
	}
	f.tabs[tab] = append(f.tabs[tab], row)
	return nil
}

func (f *fakeLogSheet) Rows(tab string) ([][]string, error) {
	rows, ok := f.tabs[tab]
	if !ok {
		return nil, fmt.Errorf("no sheet %q", tab)
	}
	return rows, nil
}

func (f *fakeLogSheet) RowCount(tab string) (int, error) {
	return len(f.tabs[tab]), nil
}

func (f *fakeLogSheet) DeleteRows(tab string, start, count int) error {
	f.deletes = append(f.deletes, fmt.Sprintf("%s:%d+%d", tab, start, count))
	rows := f.tabs[tab]
	f.tabs[tab] = append(rows[:start], rows[start+count:]...)
	return nil
}

type recordingNotifier struct {
	subjects []string
	err      error
}

func (n *recordingNotifier) Notify(subject, body string) error {
	n.subjects = append(n.subjects, subject)
	return n.err
}

func testSink(t *testing.T, sheet LogSheet, notifier Notifier) *Sink {
	t.Helper()
	cfg, _ := config.Load()
	cfg.LogMaxEntries = 5
	cfg.LogRetentionDays = 30
	sink := NewSink(cfg, sheet, notifier, "session-1", "tester")
	sink.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return sink
}

func TestWriteSummaryAppendsAuditRow(t *testing.T) {
	sheet := newFakeLogSheet()
	sink := testSink(t, sheet, nil)

	err := sink.WriteSummary(internal.RunSummary{
		SessionID: "session-1",
		Domain:    "financials",
		Status:    internal.RunSuccess,
		Inspected: 10,
		Added:     8,
		Skipped:   2,
		StartedAt: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	rows := sheet.tabs[sink.cfg.SummaryLogSheet]
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + entry", len(rows))
	}
	if rows[0][0] != "Timestamp" || rows[0][1] != "Status" {
		t.Fatalf("header = %v", rows[0])
	}
	entry := rows[1]
	if entry[1] != "SUCCESS" || entry[2] != "financials" || entry[4] != "10" || entry[5] != "8" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestErrorNotifiesCriticalCategories(t *testing.T) {
	sheet := newFakeLogSheet()
	notifier := &recordingNotifier{}
	sink := testSink(t, sheet, notifier)

	sink.Error("push", errors.New("import failed: status=401 unauthorized"), nil)
	sink.Error("push", errors.New("row 12: production out of range"), nil)

	if len(notifier.subjects) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.subjects))
	}
	if !strings.Contains(notifier.subjects[0], "authentication") {
		t.Fatalf("subject = %q", notifier.subjects[0])
	}
	// Both errors logged regardless of notification.
	if got := len(sheet.tabs[sink.cfg.DebugLogSheet]); got != 3 {
		t.Fatalf("debug rows = %d, want header + 2", got)
	}
}

func TestNotifierFailureIsRecordedNotRaised(t *testing.T) {
	sheet := newFakeLogSheet()
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	sink := testSink(t, sheet, notifier)

	sink.Error("push", errors.New("request timed out"), nil)

	rows := sheet.tabs[sink.cfg.DebugLogSheet]
	// Original error plus the notify-failure warning.
	if len(rows) != 3 {
		t.Fatalf("debug rows = %d", len(rows))
	}
	last := rows[2]
	if last[1] != "WARNING" || !strings.Contains(last[3], "notification failed") {
		t.Fatalf("last row = %v", last)
	}
}

func TestPruneByCeiling(t *testing.T) {
	sheet := newFakeLogSheet()
	sink := testSink(t, sheet, nil)

	tab := sink.cfg.DebugLogSheet
	if err := sheet.EnsureSheet(tab, debugHeaders); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		stamp := sink.now().Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		if err := sheet.AppendRow(tab, []any{stamp, "info", "op", fmt.Sprintf("entry %d", i), "", "", "s", "u"}); err != nil {
			t.Fatal(err)
		}
	}

	if err := sink.Prune(); err != nil {
		t.Fatal(err)
	}

	rows := sheet.tabs[tab]
	if len(rows) != 6 {
		t.Fatalf("rows after prune = %d, want header + 5", len(rows))
	}
	// Oldest entries go first.
	if !strings.Contains(rows[1][3], "entry 4") {
		t.Fatalf("first surviving entry = %v", rows[1])
	}
	if len(sheet.deletes) != 1 || sheet.deletes[0] != tab+":1+4" {
		t.Fatalf("deletes = %v, want one bulk removal", sheet.deletes)
	}
}

func TestPruneByRetentionAge(t *testing.T) {
	sheet := newFakeLogSheet()
	sink := testSink(t, sheet, nil)

	tab := sink.cfg.SummaryLogSheet
	if err := sheet.EnsureSheet(tab, summaryHeaders); err != nil {
		t.Fatal(err)
	}
	old := sink.now().AddDate(0, 0, -45).Format(time.RFC3339)
	recent := sink.now().AddDate(0, 0, -1).Format(time.RFC3339)
	for _, stamp := range []string{old, old, recent} {
		if err := sheet.AppendRow(tab, []any{stamp, "success", "financials", "wb", 1, 1, 0, 0, 10, "", "s"}); err != nil {
			t.Fatal(err)
		}
	}

	if err := sink.Prune(); err != nil {
		t.Fatal(err)
	}

	rows := sheet.tabs[tab]
	if len(rows) != 2 {
		t.Fatalf("rows after prune = %d, want header + 1", len(rows))
	}
	if rows[1][0] != recent {
		t.Fatalf("surviving entry = %v", rows[1])
	}
}

func TestPruneMissingSheetIsNoop(t *testing.T) {
	sink := testSink(t, newFakeLogSheet(), nil)
	if err := sink.Prune(); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"import failed: status=401 unauthorized", "authentication"},
		{"permission denied for sheet", "authorization"},
		{"quota exceeded for quota metric", "quota"},
		{"context deadline exceeded", "timeout"},
		{"dial tcp: connection refused", "network"},
		{"row 3: negative production", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ClassifyError(tc.message); got != tc.want {
			t.Errorf("ClassifyError(%q) = %q, want %q", tc.message, got, tc.want)
		}
	}
}
