// Package rules decides, per BAR slot, whether a deal pays and how much.
package rules

import (
	"fmt"

	"incentives-engine/internal/config"
	"incentives-engine/internal/model"
	"incentives-engine/internal/normalize"
)

// Extra slots only pay while extras are enabled.
var extraSlots = map[int]bool{4: true, 5: true, 6: true}

func IsExtra(slot int) bool {
	return extraSlots[slot]
}

// Code reads the integer code stored under key. The option id is preferred
// over its label.
func Code(fields model.Fields, key string) (int64, bool) {
	raw, ok := fields.Get(key)
	if !ok {
		return 0, false
	}
	id, label := normalize.Option(raw)
	if id == "" {
		id = label
	}
	return normalize.ParseInteger(id)
}

// EvaluateSlot applies rule to the slot's value in fields. Checks run in a
// fixed order: missing, extras disabled, max-equivalent, min, invalid.
func EvaluateSlot(slot int, rule config.BarRule, extrasEnabled bool, fields model.Fields) model.SlotResult {
	code, ok := Code(fields, rule.FieldKey)
	if !ok {
		return missing(slot)
	}

	if IsExtra(slot) && !extrasEnabled {
		return decided(slot, code, false, 0)
	}
	// A code that is both min and max-equivalent pays.
	if rule.IsMax(code) {
		return decided(slot, code, true, code)
	}
	if code == rule.MinCode {
		return decided(slot, code, false, code)
	}
	return invalid(slot, code, fmt.Sprintf("invalid value, expected %d or %d", rule.MinCode, rule.MaxCode))
}

func missing(slot int) model.SlotResult {
	return model.SlotResult{Slot: slot, IsMissing: true}
}

func decided(slot int, code int64, pays bool, amount int64) model.SlotResult {
	return model.SlotResult{Slot: slot, Code: &code, Pays: &pays, Amount: &amount}
}

func invalid(slot int, code int64, msg string) model.SlotResult {
	return model.SlotResult{Slot: slot, Code: &code, Error: &msg}
}
