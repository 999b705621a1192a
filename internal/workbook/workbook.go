package workbook

// Workbook is one spreadsheet as a unit of sync processing. Row and column
// indexes are zero-based; implementations translate to their host's
// addressing. Mutations may be buffered until Flush.
type Workbook interface {
	// ID identifies the spreadsheet toward the import endpoint (file path
	// or Google spreadsheet id).
	ID() string
	Name() string
	Tabs() ([]string, error)
	Rows(tab string) ([][]string, error)
	UpdateCell(tab string, row, col int, value string) error
	EnsureSheet(tab string, headers []string) error
	AppendRow(tab string, values []any) error
	RowCount(tab string) (int, error)
	// DeleteRows removes count rows starting at the zero-based index start.
	DeleteRows(tab string, start, count int) error
	Flush() error
}
