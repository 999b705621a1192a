package pipeline

import (
	"fmt"
	"testing"

	"dentsync/internal"
	"dentsync/internal/config"
)

// fakeWorkbook is an in-memory workbook for processor tests.
type fakeWorkbook struct {
	name  string
	tabs  []string
	rows  map[string][][]string
	edits []string
}

func newFakeWorkbook(name string) *fakeWorkbook {
	return &fakeWorkbook{name: name, rows: map[string][][]string{}}
}

func (w *fakeWorkbook) addTab(tab string, rows [][]string) {
	w.tabs = append(w.tabs, tab)
	w.rows[tab] = rows
}

func (w *fakeWorkbook) ID() string { return "fake-" + w.name }

func (w *fakeWorkbook) Name() string { return w.name }

func (w *fakeWorkbook) Tabs() ([]string, error) { return w.tabs, nil }

func (w *fakeWorkbook) Flush() error { return nil }

func (w *fakeWorkbook) Rows(tab string) ([][]string, error) {
	rows, ok := w.rows[tab]
	if !ok {
		return nil, fmt.Errorf("no tab %s", tab)
	}
	return rows, nil
}

func (w *fakeWorkbook) UpdateCell(tab string, row, col int, value string) error {
	grid := w.rows[tab]
	for len(grid[row]) <= col {
		grid[row] = append(grid[row], "")
	}
	grid[row][col] = value
	w.edits = append(w.edits, fmt.Sprintf("%s!%d,%d", tab, row, col))
	return nil
}

func (w *fakeWorkbook) EnsureSheet(tab string, headers []string) error {
	if _, ok := w.rows[tab]; !ok {
		w.addTab(tab, [][]string{append([]string{}, headers...)})
	}
	return nil
}

func (w *fakeWorkbook) AppendRow(tab string, values []any) error {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = fmt.Sprint(v)
	}
	w.rows[tab] = append(w.rows[tab], row)
	return nil
}

func (w *fakeWorkbook) RowCount(tab string) (int, error) {
	return len(w.rows[tab]), nil
}

func (w *fakeWorkbook) DeleteRows(tab string, start, count int) error {
	rows := w.rows[tab]
	w.rows[tab] = append(rows[:start], rows[start+count:]...)
	return nil
}

func TestProcessWorkbookSkipsBlankDateRow(t *testing.T) {
	cfg, _ := config.Load()
	wb := newFakeWorkbook("financials")
	wb.addTab("Jan 2024", [][]string{
		{"Date", "Production"},
		{"2024-01-05", "$100.00"},
		{"", "$50.00"},
	})

	results, err := NewProcessor(cfg, FinancialsDomain(cfg)).ProcessWorkbook(wb)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("tabs processed = %d", len(results))
	}

	summary := results[0].Summary
	if len(results[0].Records) != 1 {
		t.Fatalf("records = %d want 1", len(results[0].Records))
	}
	if summary.Added != 1 || summary.Skipped != 1 || summary.Errored != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Skips[internal.SkipNoDate] != 1 {
		t.Fatalf("skips = %v", summary.Skips)
	}

	record := results[0].Records[0].(internal.FinancialRecord)
	if record.Production.String() != "100" {
		t.Fatalf("production = %s", record.Production.String())
	}
}

func TestProcessWorkbookTabSelection(t *testing.T) {
	cfg, _ := config.Load()
	wb := newFakeWorkbook("financials")
	wb.addTab("Jan 2024", [][]string{{"Date", "Production"}, {"2024-01-05", "1"}})
	wb.addTab("Dec-24", [][]string{{"Date", "Production"}, {"2024-12-05", "2"}})
	wb.addTab("Instructions", [][]string{{"How to use this workbook"}})
	wb.addTab("Sync Log", [][]string{{"Timestamp", "Status"}})

	results, err := NewProcessor(cfg, FinancialsDomain(cfg)).ProcessWorkbook(wb)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("selected tabs = %d want 2", len(results))
	}
	if results[0].Summary.Tab != "Jan 2024" || results[1].Summary.Tab != "Dec-24" {
		t.Fatalf("tabs = %s, %s", results[0].Summary.Tab, results[1].Summary.Tab)
	}
}

func TestProcessWorkbookTabIsolation(t *testing.T) {
	cfg, _ := config.Load()
	wb := newFakeWorkbook("financials")
	wb.addTab("Jan 2024", [][]string{{"Notes only"}, {"nothing here"}})
	wb.addTab("Feb 2024", [][]string{{"Date", "Production"}, {"2024-02-05", "$10.00"}})

	results, err := NewProcessor(cfg, FinancialsDomain(cfg)).ProcessWorkbook(wb)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("tabs = %d", len(results))
	}
	if results[0].Summary.TabError == "" {
		t.Fatal("bad tab should carry a tab-level error")
	}
	if len(results[0].Records) != 0 {
		t.Fatal("bad tab should produce no records")
	}
	if len(results[1].Records) != 1 {
		t.Fatal("good tab must still be processed")
	}
}

func TestProcessWorkbookHeaderBelowTitleRows(t *testing.T) {
	cfg, _ := config.Load()
	wb := newFakeWorkbook("financials")
	wb.addTab("Mar 2024", [][]string{
		{"Baytown Dental"},
		{""},
		{"Date", "Production", "UUID"},
		{"2024-03-04", "$75.00", ""},
	})

	results, err := NewProcessor(cfg, FinancialsDomain(cfg)).ProcessWorkbook(wb)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Summary.Added != 1 {
		t.Fatalf("summary = %+v", results[0].Summary)
	}

	// The minted uuid must be written back so the next run upserts.
	if len(wb.edits) != 1 || wb.edits[0] != "Mar 2024!3,2" {
		t.Fatalf("edits = %v", wb.edits)
	}
	if wb.rows["Mar 2024"][3][2] == "" {
		t.Fatal("uuid cell still blank")
	}
}

func TestProcessWorkbookRowErrorContinues(t *testing.T) {
	cfg, _ := config.Load()
	wb := newFakeWorkbook("financials")
	wb.addTab("Apr 2024", [][]string{
		{"Date", "Production"},
		{"2024-04-01", "-10"},
		{"2024-04-02", "$20.00"},
	})

	results, err := NewProcessor(cfg, FinancialsDomain(cfg)).ProcessWorkbook(wb)
	if err != nil {
		t.Fatal(err)
	}
	summary := results[0].Summary
	if summary.Errored != 1 || summary.Added != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.RowErrors) != 1 {
		t.Fatalf("row errors = %v", summary.RowErrors)
	}
}
