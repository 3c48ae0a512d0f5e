package dto

// DashboardSummary aggregates per-company expense counts and totals
// in the company default currency.
type DashboardSummary struct {
	PendingCount   int     `json:"pending_count"`
	ApprovedCount  int     `json:"approved_count"`
	RejectedCount  int     `json:"rejected_count"`
	PendingAmount  float64 `json:"pending_amount"`
	ApprovedAmount float64 `json:"approved_amount"`
	Currency       string  `json:"currency"`
}
