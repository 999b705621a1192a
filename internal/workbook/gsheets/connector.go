package gsheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"dentsync/internal/config"
)

// Connector adapts one Google spreadsheet to the workbook interface via the
// Sheets API. Writes go straight through, so Flush is a no-op.
type Connector struct {
	service       *sheets.Service
	spreadsheetID string
	title         string
	sheetIDs      map[string]int64
}

func NewConnector(ctx context.Context, cfg config.Config, spreadsheetID string) (*Connector, error) {
	if err := cfg.Require("GOOGLE_CLIENT_ID", cfg.GoogleClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GOOGLE_REFRESH_TOKEN", cfg.GoogleRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GoogleRefreshToken})
	svc, err := sheets.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	c := &Connector{service: svc, spreadsheetID: spreadsheetID}
	if err := c.refreshMeta(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connector) refreshMeta() error {
	meta, err := c.service.Spreadsheets.Get(c.spreadsheetID).Fields("properties.title", "sheets.properties").Do()
	if err != nil {
		return fmt.Errorf("spreadsheet metadata: %w", err)
	}
	c.title = meta.Properties.Title
	c.sheetIDs = map[string]int64{}
	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil {
			c.sheetIDs[sheet.Properties.Title] = sheet.Properties.SheetId
		}
	}
	return nil
}

func (c *Connector) ID() string {
	return c.spreadsheetID
}

func (c *Connector) Name() string {
	return c.title
}

func (c *Connector) Tabs() ([]string, error) {
	out := make([]string, 0, len(c.sheetIDs))
	meta, err := c.service.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Do()
	if err != nil {
		return nil, err
	}
	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil {
			out = append(out, sheet.Properties.Title)
		}
	}
	return out, nil
}

func (c *Connector) Rows(tab string) ([][]string, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, quoteRange(tab)).Do()
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Connector) UpdateCell(tab string, row, col int, value string) error {
	cell := fmt.Sprintf("%s!%s%d", quoteTab(tab), columnName(col), row+1)
	vr := &sheets.ValueRange{Values: [][]any{{value}}}
	_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, cell, vr).ValueInputOption("RAW").Do()
	return err
}

func (c *Connector) EnsureSheet(tab string, headers []string) error {
	if _, ok := c.sheetIDs[tab]; ok {
		return nil
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Do(); err != nil {
		return err
	}
	if err := c.refreshMeta(); err != nil {
		return err
	}

	headerRow := make([]any, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	return c.AppendRow(tab, headerRow)
}

func (c *Connector) AppendRow(tab string, values []any) error {
	vr := &sheets.ValueRange{Values: [][]any{values}}
	_, err := c.service.Spreadsheets.Values.
		Append(c.spreadsheetID, quoteRange(tab), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Do()
	return err
}

func (c *Connector) RowCount(tab string) (int, error) {
	rows, err := c.Rows(tab)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *Connector) DeleteRows(tab string, start, count int) error {
	sheetID, ok := c.sheetIDs[tab]
	if !ok {
		return fmt.Errorf("unknown sheet: %s", tab)
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(start),
					EndIndex:   int64(start + count),
				},
			},
		}},
	}
	_, err := c.service.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Do()
	return err
}

func (c *Connector) Flush() error {
	return nil
}

func quoteTab(tab string) string {
	return "'" + tab + "'"
}

func quoteRange(tab string) string {
	return quoteTab(tab)
}

func columnName(col int) string {
	name := ""
	for col >= 0 {
		name = string(rune('A'+col%26)) + name
		col = col/26 - 1
	}
	return name
}
