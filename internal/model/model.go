// Package model defines the domain types shared by the store, ingestion and
// analytics layers.
package model

import "time"

// UtilityType classifies a meter, reading or bill.
type UtilityType string

const (
	UtilityElectricity UtilityType = "electricity"
	UtilityGas         UtilityType = "gas"
	UtilityWater       UtilityType = "water"
	UtilityInternet    UtilityType = "internet"
)

// AllUtilityTypes returns every supported utility type, in display order.
func AllUtilityTypes() []UtilityType {
	return []UtilityType{UtilityElectricity, UtilityGas, UtilityWater, UtilityInternet}
}

// Confidence labels how certain an automated categorization or bill parse is.
// Low confidence is the trigger for the human review queue.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ConnectionStatus tracks the health of a provider link.
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionInactive ConnectionStatus = "inactive"
	ConnectionError    ConnectionStatus = "error"
)

// Reading is the canonical utility usage record. One row per provider bill or
// manual entry. Analytics components only ever read these.
type Reading struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	UtilityType  UtilityType `json:"utility_type"`
	UsageAmount  float64     `json:"usage_amount"`
	Unit         string      `json:"unit"`
	Cost         float64     `json:"cost"`
	HasCost      bool        `json:"has_cost"`
	ReadingDate  time.Time   `json:"reading_date"`
	AutoImported bool        `json:"auto_imported"`
	NeedsReview  bool        `json:"needs_review"`
	// BillID is the provider-side bill identifier. Immutable once set; the
	// store enforces uniqueness so a bill can never produce two readings.
	BillID     string     `json:"bill_id,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RawBill is the verbatim provider bill payload plus extracted fields. It is
// the append-only source of truth and the dedup anchor for bill ingestion.
type RawBill struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Provider      string      `json:"provider"`
	ProviderUID   string      `json:"provider_uid"`
	ConnectionID  string      `json:"connection_id"`
	MeterUID      string      `json:"meter_uid"`
	UtilityType   UtilityType `json:"utility_type"`
	StatementDate time.Time   `json:"statement_date"`
	TotalUsage    float64     `json:"total_usage"`
	TotalUnit     string      `json:"total_unit"`
	TotalCost     float64     `json:"total_cost"`
	Payload       string      `json:"payload"`
	CreatedAt     time.Time   `json:"created_at"`
}

// RawTransaction is the verbatim provider transaction payload. Only the
// "modified" class overwrites it in place; "removed" soft-deletes it.
type RawTransaction struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Provider      string     `json:"provider"`
	TransactionID string     `json:"transaction_id"`
	AccountID     string     `json:"account_id"`
	Amount        float64    `json:"amount"`
	Date          time.Time  `json:"date"`
	Name          string     `json:"name"`
	MerchantName  string     `json:"merchant_name,omitempty"`
	Categories    []string   `json:"categories"`
	Payload       string     `json:"payload"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// Connection links a user to a utility or financial provider item.
type Connection struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Provider     string           `json:"provider"`
	ConnectionID string           `json:"connection_id"`
	AccessToken  string           `json:"-"`
	Status       ConnectionStatus `json:"status"`
	UtilityName  string           `json:"utility_name,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// UtilityAccount is one provider-side sub-account (meter) under a Connection.
type UtilityAccount struct {
	ID             string      `json:"id"`
	ConnectionID   string      `json:"connection_id"`
	UserID         string      `json:"user_id"`
	MeterUID       string      `json:"meter_uid"`
	UtilityType    UtilityType `json:"utility_type"`
	ServiceClass   string      `json:"service_class,omitempty"`
	ServiceTariff  string      `json:"service_tariff,omitempty"`
	ServiceAddress string      `json:"service_address,omitempty"`
	BillingAccount string      `json:"billing_account,omitempty"`
	BillCount      int         `json:"bill_count"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SyncState holds the incremental-sync cursor for one connection/item.
// Updated after every sync attempt, success or not, so the next call always
// makes forward progress.
type SyncState struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	Cursor       string    `json:"cursor"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// ExpenseMetadata carries the provider-side context for an imported expense.
type ExpenseMetadata struct {
	PlaidCategories []string   `json:"plaid_categories,omitempty"`
	Confidence      Confidence `json:"confidence,omitempty"`
	OriginalName    string     `json:"original_name,omitempty"`
}

// Expense is a financial transaction derived record. NeedsReview is true
// exactly when categorization confidence was low.
type Expense struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	Description        string          `json:"description"`
	Amount             float64         `json:"amount"`
	Category           string          `json:"category"`
	Date               time.Time       `json:"date"`
	Vendor             string          `json:"vendor,omitempty"`
	PlaidTransactionID string          `json:"plaid_transaction_id,omitempty"`
	NeedsReview        bool            `json:"needs_review"`
	AutoImported       bool            `json:"auto_imported"`
	Metadata           ExpenseMetadata `json:"metadata"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	DeletedAt          *time.Time      `json:"deleted_at,omitempty"`
}

// AlertSeverity grades an anomaly alert.
type AlertSeverity string

const (
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// AlertTypeUtilityAnomaly is the alert type written by the anomaly detector.
const AlertTypeUtilityAnomaly = "utility_anomaly"

// AlertMetadata records the numbers behind a utility anomaly alert.
type AlertMetadata struct {
	UtilityType     UtilityType `json:"utility_type"`
	CurrentUsage    float64     `json:"current_usage"`
	AverageUsage    float64     `json:"average_usage"`
	PercentIncrease float64     `json:"percent_increase"`
	ReadingDate     time.Time   `json:"reading_date"`
}

// AnomalyAlert is the persisted side effect of the anomaly detector. At most
// one unresolved alert exists per (user, utility type) at a time.
type AnomalyAlert struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	AlertType   string        `json:"alert_type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Severity    AlertSeverity `json:"severity"`
	Metadata    AlertMetadata `json:"metadata"`
	Resolved    bool          `json:"resolved"`
	CreatedAt   time.Time     `json:"created_at"`
}

// TrendDirection summarizes period-over-period movement.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// UtilityTrend compares the two most recent readings of one utility type.
// Ephemeral; recomputed per request, never persisted.
type UtilityTrend struct {
	UtilityType       UtilityType    `json:"utility_type"`
	CurrentUsage      float64        `json:"current_usage"`
	PreviousUsage     float64        `json:"previous_usage"`
	CurrentCost       float64        `json:"current_cost"`
	PreviousCost      float64        `json:"previous_cost"`
	UsageTrendPercent float64        `json:"usage_trend_percent"`
	CostTrendPercent  float64        `json:"cost_trend_percent"`
	TrendDirection    TrendDirection `json:"trend_direction"`
}

// UtilityCost is one utility type's slice of a cost summary.
type UtilityCost struct {
	UtilityType UtilityType `json:"utility_type"`
	TotalCost   float64     `json:"total_cost"`
	TotalUsage  float64     `json:"total_usage"`
	Unit        string      `json:"unit"`
}

// CostSummary totals the current period and compares it against the
// immediately preceding span of identical length.
type CostSummary struct {
	TotalCost          float64       `json:"total_cost"`
	PreviousTotalCost  float64       `json:"previous_total_cost"`
	CostChangePercent  float64       `json:"cost_change_percent"`
	Breakdown          []UtilityCost `json:"breakdown"`
	PeriodStart        time.Time     `json:"period_start"`
	PeriodEnd          time.Time     `json:"period_end"`
	PreviousPeriodDays int           `json:"previous_period_days"`
}

// SustainabilityMetrics reports carbon footprint and a bounded efficiency
// score derived from historical vs current usage.
type SustainabilityMetrics struct {
	CarbonFootprintTonnes  float64 `json:"carbon_footprint_tonnes"`
	PreviousCarbonTonnes   float64 `json:"previous_carbon_tonnes"`
	CarbonReductionPercent float64 `json:"carbon_reduction_percent"`
	EfficiencyScore        float64 `json:"efficiency_score"`
	RenewablePercent       float64 `json:"renewable_percent"`
}

// TipPriority orders efficiency tips.
type TipPriority string

const (
	TipPriorityHigh   TipPriority = "high"
	TipPriorityMedium TipPriority = "medium"
	TipPriorityLow    TipPriority = "low"
)

// EfficiencyTip is a human-readable recommendation derived from trends and
// seasonal context.
type EfficiencyTip struct {
	UtilityType UtilityType `json:"utility_type,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Priority    TipPriority `json:"priority"`
}

// TransactionSyncResult aggregates the outcome of one transaction sync call.
type TransactionSyncResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Flagged  int `json:"flagged"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
}

// BillSyncResult aggregates the outcome of one bill sync call.
type BillSyncResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Flagged  int `json:"flagged"`
}
