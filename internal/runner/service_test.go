package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"dentsync/internal"
	"dentsync/internal/config"
	"dentsync/internal/pipeline"
	"dentsync/internal/storage"
)

type fakeWorkbook struct {
	name    string
	tabs    map[string][][]string
	order   []string
	flushed bool
}

func newFakeWorkbook(name string) *fakeWorkbook {
	return &fakeWorkbook{name: name, tabs: map[string][][]string{}}
}

func (f *fakeWorkbook) addTab(tab string, rows [][]string) {
	f.tabs[tab] = rows
	f.order = append(f.order, tab)
}

func (f *fakeWorkbook) ID() string { return "wb-" + f.name }

func (f *fakeWorkbook) Name() string { return f.name }

func (f *fakeWorkbook) Tabs() ([]string, error) { return f.order, nil }

func (f *fakeWorkbook) Rows(tab string) ([][]string, error) {
	rows, ok := f.tabs[tab]
	if !ok {
		return nil, fmt.Errorf("no tab %q", tab)
	}
	return rows, nil
}

func (f *fakeWorkbook) UpdateCell(tab string, row, col int, value string) error {
	rows := f.tabs[tab]
	for len(rows[row]) <= col {
		rows[row] = append(rows[row], "")
	}
	rows[row][col] = value
	return nil
}

func (f *fakeWorkbook) EnsureSheet(tab string, headers []string) error {
	if _, ok := f.tabs[tab]; !ok {
		row := make([]string, len(headers))
		copy(row, headers)
		f.addTab(tab, [][]string{row})
	}
	return nil
}

func (f *fakeWorkbook) AppendRow(tab string, values []any) error {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = fmt.Sprintf("%v", v)
	}
	f.tabs[tab] = append(f.tabs[tab], row)
	return nil
}

func (f *fakeWorkbook) RowCount(tab string) (int, error) { return len(f.tabs[tab]), nil }

func (f *fakeWorkbook) DeleteRows(tab string, start, count int) error {
	rows := f.tabs[tab]
	f.tabs[tab] = append(rows[:start], rows[start+count:]...)
	return nil
}

func (f *fakeWorkbook) Flush() error {
	f.flushed = true
	return nil
}

func testService(t *testing.T, baseURL string) (*Service, config.Config) {
	t.Helper()
	cfg, _ := config.Load()
	cfg.DBPath = filepath.Join(t.TempDir(), "dentsync.db")
	cfg.DashboardBaseURL = ""
	cfg.DashboardAPIKey = ""
	cfg.RateLimitRPS = 100000
	cfg.BatchDelayMs = 0
	cfg.RetryBaseDelayMs = 1

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(db.SetProperty("api.base_url", baseURL))
	must(db.SetProperty("api.key", "test-key"))
	must(db.SetProperty("clinic.BAYTOWN", "clinic-1"))

	return NewService(db, cfg), cfg
}

func TestRunEndToEnd(t *testing.T) {
	var payloads []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var payload map[string]any
		blob, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(blob, &payload); err != nil {
			t.Error(err)
		}
		payloads = append(payloads, payload)
		count := len(payload["records"].([]any))
		fmt.Fprintf(w, `{"created":%d,"updated":0}`, count)
	}))
	defer server.Close()

	service, cfg := testService(t, server.URL)

	wb := newFakeWorkbook("financials")
	wb.addTab("Instructions", [][]string{{"How to use this sheet"}})
	wb.addTab("Jan 2024", [][]string{
		{"Date", "Production", "Adjustments", "UUID"},
		{"2024-01-05", "$1,234.56", "($20.00)", ""},
		{"", "100", "", ""},
		{"2024-01-06", "200", "", "existing-uuid"},
	})

	summary, err := service.Run(context.Background(), Options{
		Domain:   pipeline.FinancialsDomain(cfg),
		Workbook: wb,
		Location: "BAYTOWN",
	})
	if err != nil {
		t.Fatal(err)
	}

	if summary.Status != internal.RunSuccess {
		t.Fatalf("status = %s (%s)", summary.Status, summary.ErrorText)
	}
	if summary.Inspected != 3 || summary.Added != 2 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Created != 2 {
		t.Fatalf("created = %d", summary.Created)
	}

	if len(payloads) != 1 {
		t.Fatalf("requests = %d", len(payloads))
	}
	payload := payloads[0]
	if payload["clinicId"] != "clinic-1" || payload["sheetName"] != "Jan 2024" || payload["upsert"] != true {
		t.Fatalf("payload = %v", payload)
	}

	// Minted uuid written back into the blank cell before flush.
	if wb.tabs["Jan 2024"][1][3] == "" {
		t.Fatal("generated uuid not written back")
	}
	if !wb.flushed {
		t.Fatal("workbook not flushed")
	}

	// Summary log row appended.
	logRows := wb.tabs[cfg.SummaryLogSheet]
	if len(logRows) != 2 || logRows[1][1] != string(internal.RunSuccess) {
		t.Fatalf("summary log = %v", logRows)
	}

	// Run recorded in the local audit table.
	runs, err := service.db.RecentRuns(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != string(internal.RunSuccess) || runs[0].Added != 2 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestRunMissingCredentialsIsFatal(t *testing.T) {
	service, cfg := testService(t, "")

	// Clear the seeded properties to simulate an unconfigured install.
	if err := service.db.SetProperty("api.base_url", ""); err != nil {
		t.Fatal(err)
	}

	wb := newFakeWorkbook("financials")
	wb.addTab("Jan 2024", [][]string{{"Date", "Production"}, {"2024-01-05", "100"}})

	summary, err := service.Run(context.Background(), Options{
		Domain:   pipeline.FinancialsDomain(cfg),
		Workbook: wb,
		Location: "BAYTOWN",
	})
	if err == nil || !strings.Contains(err.Error(), "base URL") {
		t.Fatalf("want base URL error, got %v", err)
	}
	if summary.Status != internal.RunFailed {
		t.Fatalf("status = %s", summary.Status)
	}
	// The failure still leaves an audit row behind.
	runs, err := service.db.RecentRuns(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != string(internal.RunFailed) {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestRunBatchFailureIsPartial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	service, cfg := testService(t, server.URL)

	wb := newFakeWorkbook("financials")
	wb.addTab("Jan 2024", [][]string{
		{"Date", "Production", "UUID"},
		{"2024-01-05", "100", "u-1"},
	})

	summary, err := service.Run(context.Background(), Options{
		Domain:   pipeline.FinancialsDomain(cfg),
		Workbook: wb,
		Location: "BAYTOWN",
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status != internal.RunPartial {
		t.Fatalf("status = %s", summary.Status)
	}
	if summary.Errored != 1 || !strings.Contains(summary.ErrorText, "boom") {
		t.Fatalf("summary = %+v", summary)
	}
}
