package model

import (
	"strconv"
	"time"
)

// SlotCount is the number of BAR slots on a deal.
const SlotCount = 6

// SlotKey renders a slot number as the key used in JSON maps.
func SlotKey(slot int) string {
	return strconv.Itoa(slot)
}

// SlotResult is the outcome of evaluating one BAR slot. Exactly one of
// IsMissing, Error, or (Pays, Amount) is meaningful.
type SlotResult struct {
	Slot      int     `json:"slot"`
	Code      *int64  `json:"code"`
	Pays      *bool   `json:"pays"`
	Amount    *int64  `json:"amount"`
	Error     *string `json:"error"`
	IsMissing bool    `json:"is_missing"`
}

// Counted reports whether the slot contributes to sums.
func (r SlotResult) Counted() bool {
	return !r.IsMissing && r.Error == nil && r.Amount != nil
}

type Collaborator struct {
	ID    *string `json:"id"`
	Label *string `json:"label"`
}

type PersonTotals struct {
	PersonKey   string   `json:"person_key"`
	Label       string   `json:"label"`
	BaseAmount  int64    `json:"base_amount"`
	ExtraAmount int64    `json:"extra_amount"`
	TotalAmount int64    `json:"total_amount"`
	Roles       []string `json:"roles"`
	// Deals counts matched deals the person took part in (monthly reports only).
	Deals int `json:"deals,omitempty"`
}

type DealResult struct {
	DealID        int64                    `json:"deal_id"`
	Name          string                   `json:"name"`
	StageID       int64                    `json:"stage_id"`
	CreatedAt     string                   `json:"created_at"`
	SurgeryDate   *string                  `json:"surgery_date"`
	Slots         []SlotResult             `json:"slots"`
	SlotTotals    map[string]int64         `json:"slot_totals"`
	Collaborators map[string]Collaborator  `json:"collaborators"`
	PersonTotals  map[string]*PersonTotals `json:"person_totals"`
	Errors        []string                 `json:"errors"`

	// Surgery is the parsed surgery date; zero when absent or unparseable.
	Surgery time.Time `json:"-"`
}
