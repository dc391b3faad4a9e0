package model

type Window struct {
	Start        string `json:"start"`
	EndExclusive string `json:"end_exclusive"`
}

type SlotCounts struct {
	Paid    int `json:"paid"`
	Unpaid  int `json:"unpaid"`
	Missing int `json:"missing"`
	Invalid int `json:"invalid"`
}

type DealErrors struct {
	DealID int64    `json:"deal_id"`
	Errors []string `json:"errors"`
}

type MonthlyReport struct {
	Period         string                   `json:"period"`
	Window         Window                   `json:"window"`
	ProcessedCount int                      `json:"processed_count"`
	MatchedCount   int                      `json:"matched_count"`
	TotalsBySlot   map[string]int64         `json:"totals_by_slot"`
	CountsBySlot   map[string]*SlotCounts   `json:"counts_by_slot"`
	TotalsByPerson map[string]*PersonTotals `json:"totals_by_person"`
	DealErrors     []DealErrors             `json:"deal_errors"`
}

type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}
