package pipeline

import (
	"regexp"
	"time"

	"dentsync/internal"
	"dentsync/internal/config"
)

// FieldSpec maps one semantic field to its accepted header variants. Specs
// are evaluated in declaration order so specific patterns ("production
// goal") claim their column before looser ones ("production").
type FieldSpec struct {
	Field    internal.Field
	Variants []string
	Required bool
}

// Domain bundles everything that differs between the financial and hygiene
// sync flows: which tabs to select, how headers map to fields, and how one
// raw row becomes a record.
type Domain struct {
	Name       string
	ImportPath string
	TabPattern *regexp.Regexp
	Specs      []FieldSpec
	MaxAmount  float64

	Transform func(d Domain, tab string, row []string, mapping internal.ColumnMapping, today time.Time, loc *time.Location) (RowResult, error)
}

// monthYearTab matches tab names like "Jan 2024", "December 2024", "Dec-24"
// or "Jan '25".
var monthYearTab = regexp.MustCompile(`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[\s\-]*'?\d{2,4}$`)

// providerTab matches location-code prefixed tabs like "BAY - Adriane".
var providerTab = regexp.MustCompile(`^[A-Z]{2,5}\s*-\s*\S`)

func FinancialsDomain(cfg config.Config) Domain {
	return Domain{
		Name:       "financials",
		ImportPath: cfg.FinancialImportPath,
		TabPattern: monthYearTab,
		MaxAmount:  cfg.MaxProductionCap,
		Specs: []FieldSpec{
			{Field: internal.FieldDate, Variants: []string{"date", "day"}, Required: true},
			{Field: internal.FieldUUID, Variants: []string{"uuid", "unique id"}},
			{Field: internal.FieldNetProduction, Variants: []string{"net production", "net prod"}},
			{Field: internal.FieldProduction, Variants: []string{"production", "gross production"}, Required: true},
			{Field: internal.FieldAdjustments, Variants: []string{"adjustment"}},
			{Field: internal.FieldWriteOffs, Variants: []string{"write off", "write-off", "writeoff"}},
			{Field: internal.FieldPatientIncome, Variants: []string{"patient income", "patient"}},
			{Field: internal.FieldInsuranceIncome, Variants: []string{"insurance income", "insurance"}},
			{Field: internal.FieldUnearned, Variants: []string{"unearned"}},
		},
		Transform: transformFinancialRow,
	}
}

func HygieneDomain(cfg config.Config) Domain {
	pattern := regexp.MustCompile(monthYearTab.String() + `|` + providerTab.String())
	return Domain{
		Name:       "hygiene",
		ImportPath: cfg.HygieneImportPath,
		TabPattern: pattern,
		MaxAmount:  cfg.MaxProductionCap,
		Specs: []FieldSpec{
			{Field: internal.FieldDate, Variants: []string{"date", "day"}, Required: true},
			{Field: internal.FieldUUID, Variants: []string{"uuid", "unique id"}},
			{Field: internal.FieldProvider, Variants: []string{"provider", "hygienist"}},
			{Field: internal.FieldProductionGoal, Variants: []string{"production goal", "goal"}},
			{Field: internal.FieldVerifiedProd, Variants: []string{"verified production", "verified"}, Required: true},
			{Field: internal.FieldEstimatedProd, Variants: []string{"estimated production", "estimated", "production"}},
			{Field: internal.FieldVariancePercentage, Variants: []string{"variance"}},
			{Field: internal.FieldHoursWorked, Variants: []string{"hours worked", "hours"}},
			{Field: internal.FieldBonus, Variants: []string{"bonus"}},
		},
		Transform: transformHygieneRow,
	}
}
