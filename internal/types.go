package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money marshals as a plain JSON number so record payloads stay compatible
// with the dashboard import endpoint.
type Money struct {
	decimal.Decimal
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}

func NewMoney(d decimal.Decimal) *Money {
	return &Money{Decimal: d}
}

type Field string

const (
	FieldDate            Field = "date"
	FieldUUID            Field = "uuid"
	FieldProduction      Field = "production"
	FieldAdjustments     Field = "adjustments"
	FieldWriteOffs       Field = "writeOffs"
	FieldNetProduction   Field = "netProduction"
	FieldPatientIncome   Field = "patientIncome"
	FieldInsuranceIncome Field = "insuranceIncome"
	FieldUnearned        Field = "unearned"

	FieldProvider           Field = "provider"
	FieldHoursWorked        Field = "hoursWorked"
	FieldEstimatedProd      Field = "estimatedProduction"
	FieldVerifiedProd       Field = "verifiedProduction"
	FieldProductionGoal     Field = "productionGoal"
	FieldVariancePercentage Field = "variancePercentage"
	FieldBonus              Field = "bonusAmount"
)

// ColNotFound is the sentinel index for a semantic field with no matching
// header cell.
const ColNotFound = -1

// ColumnMapping assigns semantic fields to zero-based column indexes. Built
// once per tab from its header row, immutable afterwards.
type ColumnMapping map[Field]int

func (m ColumnMapping) Col(f Field) int {
	if idx, ok := m[f]; ok {
		return idx
	}
	return ColNotFound
}

func (m ColumnMapping) Has(f Field) bool {
	return m.Col(f) != ColNotFound
}

type FinancialRecord struct {
	Date            time.Time `json:"-"`
	DateString      string    `json:"date"`
	UUID            string    `json:"uuid"`
	Production      *Money    `json:"production"`
	Adjustments     *Money    `json:"adjustments,omitempty"`
	WriteOffs       *Money    `json:"writeOffs,omitempty"`
	NetProduction   *Money    `json:"netProduction,omitempty"`
	PatientIncome   *Money    `json:"patientIncome,omitempty"`
	InsuranceIncome *Money    `json:"insuranceIncome,omitempty"`
	Unearned        *Money    `json:"unearned,omitempty"`
}

func (r FinancialRecord) RecordID() string { return r.UUID }

type HygieneRecord struct {
	Date               time.Time `json:"-"`
	DateString         string    `json:"date"`
	UUID               string    `json:"uuid"`
	Provider           string    `json:"provider,omitempty"`
	HoursWorked        *float64  `json:"hoursWorked,omitempty"`
	EstimatedProd      *Money    `json:"estimatedProduction,omitempty"`
	VerifiedProd       *Money    `json:"verifiedProduction"`
	ProductionGoal     *Money    `json:"productionGoal,omitempty"`
	VariancePercentage *float64  `json:"variancePercentage,omitempty"`
	BonusAmount        *Money    `json:"bonusAmount,omitempty"`
}

func (r HygieneRecord) RecordID() string { return r.UUID }

// Record is the unit handed to the batch importer. Both record kinds carry a
// stable uuid used for idempotent upsert on the destination.
type Record interface {
	RecordID() string
}

type SkipReason string

const (
	SkipNoDate      SkipReason = "missing_date"
	SkipFutureDate  SkipReason = "future_date"
	SkipBlankAmount SkipReason = "blank_amount"
	SkipNotDataRow  SkipReason = "not_data_row"
)

type TabSummary struct {
	Tab       string
	Inspected int
	Added     int
	Skipped   int
	Errored   int
	Skips     map[SkipReason]int
	RowErrors []string
	TabError  string
}

type RunStatus string

const (
	RunSuccess RunStatus = "SUCCESS"
	RunPartial RunStatus = "PARTIAL"
	RunFailed  RunStatus = "FAILED"
)

type RunSummary struct {
	SessionID       string
	Domain          string
	SpreadsheetID   string
	SpreadsheetName string
	StartedAt       time.Time
	Duration        time.Duration
	Status          RunStatus
	Inspected       int
	Added           int
	Skipped         int
	Errored         int
	Created         int
	Updated         int
	Tabs            []TabSummary
	ErrorText       string
}

func (s *RunSummary) Absorb(tab TabSummary) {
	s.Inspected += tab.Inspected
	s.Added += tab.Added
	s.Skipped += tab.Skipped
	s.Errored += tab.Errored
	s.Tabs = append(s.Tabs, tab)
}

// Credentials are read fresh from the property store at the start of every
// run and never cached beyond process lifetime.
type Credentials struct {
	BaseURL             string
	APIKey              string
	ClinicIDs           map[string]string
	DefaultDataSourceID string
}

func (c Credentials) ClinicID(location string) string {
	return c.ClinicIDs[location]
}

type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// LogEvent is one structured row in the debug log sheet. Column order is
// fixed: timestamp, level, operation, message, context, extra, session, user.
type LogEvent struct {
	Timestamp time.Time
	Level     LogLevel
	Operation string
	Message   string
	Context   map[string]any
	Extra     map[string]any
	SessionID string
	User      string
}
