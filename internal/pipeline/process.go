package pipeline

import (
	"fmt"
	"time"

	"dentsync/internal"
	"dentsync/internal/config"
	"dentsync/internal/workbook"
)

// Processor walks a workbook's tabs, maps headers once per tab and streams
// rows through the domain transformer. One bad row or tab never stops the
// run; outcomes are bucketed per tab instead.
type Processor struct {
	cfg    config.Config
	domain Domain
	today  time.Time
	loc    *time.Location
}

func NewProcessor(cfg config.Config, domain Domain) *Processor {
	loc := cfg.Location()
	now := time.Now().In(loc)
	return &Processor{
		cfg:    cfg,
		domain: domain,
		today:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc),
		loc:    loc,
	}
}

// TabResult pairs one selected tab's validated records with its outcome
// counters.
type TabResult struct {
	Summary internal.TabSummary
	Records []internal.Record
}

// ProcessWorkbook returns one result per selected tab. Generated uuids are
// written back through the connector so re-runs upsert instead of
// duplicating; the caller flushes.
func (p *Processor) ProcessWorkbook(wb workbook.Workbook) ([]TabResult, error) {
	tabs, err := wb.Tabs()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}

	var results []TabResult
	for _, tab := range tabs {
		if !p.domain.TabPattern.MatchString(tab) {
			continue
		}
		records, summary := p.processTab(wb, tab)
		results = append(results, TabResult{Summary: summary, Records: records})
	}

	return results, nil
}

func (p *Processor) processTab(wb workbook.Workbook, tab string) ([]internal.Record, internal.TabSummary) {
	summary := internal.TabSummary{Tab: tab, Skips: map[internal.SkipReason]int{}}

	rows, err := wb.Rows(tab)
	if err != nil {
		summary.TabError = fmt.Sprintf("read rows: %v", err)
		return nil, summary
	}
	if len(rows) == 0 {
		summary.TabError = "empty tab"
		return nil, summary
	}

	headerRow := FindHeaderRow(rows, p.cfg.HeaderLookahead)
	mapping, err := BuildMapping(rows[headerRow], p.domain.Specs)
	if err != nil {
		summary.TabError = err.Error()
		return nil, summary
	}

	var records []internal.Record
	for i := headerRow + 1; i < len(rows); i++ {
		summary.Inspected++

		result, err := p.domain.Transform(p.domain, tab, rows[i], mapping, p.today, p.loc)
		if err != nil {
			summary.Errored++
			summary.RowErrors = append(summary.RowErrors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		if result.Skip != "" {
			summary.Skipped++
			summary.Skips[result.Skip]++
			continue
		}

		if result.GeneratedUUID && mapping.Has(internal.FieldUUID) {
			if err := wb.UpdateCell(tab, i, mapping.Col(internal.FieldUUID), result.UUID); err != nil {
				summary.RowErrors = append(summary.RowErrors, fmt.Sprintf("row %d: persist uuid: %v", i+1, err))
			}
		}

		records = append(records, result.Record)
		summary.Added++
	}

	return records, summary
}
