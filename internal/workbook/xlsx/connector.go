package xlsx

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Connector adapts a local .xlsx file to the workbook interface. The file is
// edited in place; UpdateCell and AppendRow stay in memory until Flush saves
// the workbook.
type Connector struct {
	path string
	file *excelize.File
}

func Open(path string) (*Connector, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Connector{path: path, file: f}, nil
}

func (c *Connector) Close() error {
	return c.file.Close()
}

func (c *Connector) ID() string {
	return c.path
}

func (c *Connector) Name() string {
	base := filepath.Base(c.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (c *Connector) Tabs() ([]string, error) {
	return c.file.GetSheetList(), nil
}

func (c *Connector) Rows(tab string) ([][]string, error) {
	return c.file.GetRows(tab)
}

func (c *Connector) UpdateCell(tab string, row, col int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	return c.file.SetCellValue(tab, cell, value)
}

func (c *Connector) EnsureSheet(tab string, headers []string) error {
	idx, err := c.file.GetSheetIndex(tab)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return nil
	}
	if _, err := c.file.NewSheet(tab); err != nil {
		return err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := c.file.SetCellValue(tab, cell, h); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) AppendRow(tab string, values []any) error {
	rows, err := c.file.GetRows(tab)
	if err != nil {
		return err
	}
	next := len(rows) + 1
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, next)
		if err != nil {
			return err
		}
		if err := c.file.SetCellValue(tab, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) RowCount(tab string) (int, error) {
	rows, err := c.file.GetRows(tab)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *Connector) DeleteRows(tab string, start, count int) error {
	for i := 0; i < count; i++ {
		// RemoveRow shifts the remaining rows up, so the same 1-based
		// index is removed count times.
		if err := c.file.RemoveRow(tab, start+1); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connector) Flush() error {
	return c.file.Save()
}
