package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dentsync/internal"
	"dentsync/internal/util"
)

// RowResult is one transformer outcome: a record, or a skip. Validation
// failures are returned as errors instead and counted per row by the caller.
type RowResult struct {
	Record internal.Record
	Skip   internal.SkipReason

	// GeneratedUUID is set when the sheet carried no id and a fresh one was
	// minted. The caller must persist it back to the uuid column, otherwise
	// the next run produces a duplicate on the destination.
	GeneratedUUID bool
	UUID          string
}

func skip(reason internal.SkipReason) RowResult {
	return RowResult{Skip: reason}
}

func cell(row []string, col int) string {
	if col == internal.ColNotFound || col >= len(row) {
		return ""
	}
	return row[col]
}

// resolveDate applies skip rules 1-2: unparseable dates and future-dated
// placeholder rows are expected, not errors.
func resolveDate(row []string, mapping internal.ColumnMapping, today time.Time, loc *time.Location) (time.Time, internal.SkipReason) {
	parsed, ok := util.ParseCellDate(cell(row, mapping.Col(internal.FieldDate)), loc)
	if !ok {
		return time.Time{}, internal.SkipNoDate
	}
	if parsed.After(today) {
		return time.Time{}, internal.SkipFutureDate
	}
	return parsed, ""
}

func resolveUUID(row []string, mapping internal.ColumnMapping) (id string, generated bool) {
	existing := strings.TrimSpace(cell(row, mapping.Col(internal.FieldUUID)))
	if existing != "" {
		return existing, false
	}
	return uuid.NewString(), true
}

func validateAmount(field internal.Field, amount *internal.Money, max float64) error {
	if amount == nil {
		return nil
	}
	if amount.IsNegative() {
		return fmt.Errorf("%s amount %s is negative", field, amount.String())
	}
	if amount.GreaterThan(decimal.NewFromFloat(max)) {
		return fmt.Errorf("%s amount %s exceeds limit %.0f", field, amount.String(), max)
	}
	return nil
}

func money(row []string, mapping internal.ColumnMapping, field internal.Field) *internal.Money {
	parsed := util.ParseMoney(cell(row, mapping.Col(field)))
	if parsed == nil {
		return nil
	}
	return internal.NewMoney(*parsed)
}

func transformFinancialRow(d Domain, tab string, row []string, mapping internal.ColumnMapping, today time.Time, loc *time.Location) (RowResult, error) {
	date, skipReason := resolveDate(row, mapping, today, loc)
	if skipReason != "" {
		return skip(skipReason), nil
	}

	// Blank production means a non-data row; a literal 0 is real data.
	if strings.TrimSpace(cell(row, mapping.Col(internal.FieldProduction))) == "" {
		return skip(internal.SkipBlankAmount), nil
	}
	production := money(row, mapping, internal.FieldProduction)
	if production == nil {
		return skip(internal.SkipBlankAmount), nil
	}

	record := internal.FinancialRecord{
		Date:            date,
		DateString:      date.Format("2006-01-02"),
		Production:      production,
		Adjustments:     money(row, mapping, internal.FieldAdjustments),
		WriteOffs:       money(row, mapping, internal.FieldWriteOffs),
		NetProduction:   money(row, mapping, internal.FieldNetProduction),
		PatientIncome:   money(row, mapping, internal.FieldPatientIncome),
		InsuranceIncome: money(row, mapping, internal.FieldInsuranceIncome),
		Unearned:        money(row, mapping, internal.FieldUnearned),
	}

	if err := validateAmount(internal.FieldProduction, record.Production, d.MaxAmount); err != nil {
		return RowResult{}, err
	}
	for field, amount := range map[internal.Field]*internal.Money{
		internal.FieldPatientIncome:   record.PatientIncome,
		internal.FieldInsuranceIncome: record.InsuranceIncome,
	} {
		if err := validateAmount(field, amount, d.MaxAmount); err != nil {
			return RowResult{}, err
		}
	}

	id, generated := resolveUUID(row, mapping)
	record.UUID = id
	return RowResult{Record: record, GeneratedUUID: generated, UUID: id}, nil
}

func transformHygieneRow(d Domain, tab string, row []string, mapping internal.ColumnMapping, today time.Time, loc *time.Location) (RowResult, error) {
	date, skipReason := resolveDate(row, mapping, today, loc)
	if skipReason != "" {
		return skip(skipReason), nil
	}

	if strings.TrimSpace(cell(row, mapping.Col(internal.FieldVerifiedProd))) == "" {
		return skip(internal.SkipBlankAmount), nil
	}
	verified := money(row, mapping, internal.FieldVerifiedProd)
	if verified == nil {
		return skip(internal.SkipBlankAmount), nil
	}

	provider := strings.TrimSpace(cell(row, mapping.Col(internal.FieldProvider)))
	if provider == "" {
		provider = providerFromTab(tab)
	}

	record := internal.HygieneRecord{
		Date:               date,
		DateString:         date.Format("2006-01-02"),
		Provider:           provider,
		VerifiedProd:       verified,
		EstimatedProd:      money(row, mapping, internal.FieldEstimatedProd),
		ProductionGoal:     money(row, mapping, internal.FieldProductionGoal),
		BonusAmount:        money(row, mapping, internal.FieldBonus),
		HoursWorked:        util.ParseHours(cell(row, mapping.Col(internal.FieldHoursWorked))),
		VariancePercentage: util.ParsePercent(cell(row, mapping.Col(internal.FieldVariancePercentage))),
	}

	for field, amount := range map[internal.Field]*internal.Money{
		internal.FieldVerifiedProd:   record.VerifiedProd,
		internal.FieldEstimatedProd:  record.EstimatedProd,
		internal.FieldProductionGoal: record.ProductionGoal,
	} {
		if err := validateAmount(field, amount, d.MaxAmount); err != nil {
			return RowResult{}, err
		}
	}

	id, generated := resolveUUID(row, mapping)
	record.UUID = id
	return RowResult{Record: record, GeneratedUUID: generated, UUID: id}, nil
}

// providerFromTab extracts the provider from tabs named like "BAY - Adriane".
func providerFromTab(tab string) string {
	if idx := strings.Index(tab, "-"); idx >= 0 {
		return strings.TrimSpace(tab[idx+1:])
	}
	return ""
}
