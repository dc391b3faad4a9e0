package engine

import (
	"fmt"

	"incentives-engine/internal/config"
	"incentives-engine/internal/model"
	"incentives-engine/internal/normalize"
	"incentives-engine/internal/rules"
)

// roleSlots maps each collaborator role to its (base, extra) slots.
var roleSlots = map[string][2]int{
	config.RoleC1: {1, 4},
	config.RoleC2: {2, 5},
	config.RoleC3: {3, 6},
}

// EvaluateDeal evaluates all six slots of a deal and attributes the counted
// amounts to the collaborators. Problems are collected into Errors; a bad
// slot or a missing date never stops the evaluation.
func EvaluateDeal(cfg *config.Incentives, deal *model.Deal) *model.DealResult {
	fields := deal.CustomFields
	res := &model.DealResult{
		DealID:        deal.ID,
		Name:          deal.Name,
		StageID:       deal.StageID,
		CreatedAt:     deal.CreatedAt,
		Slots:         make([]model.SlotResult, 0, model.SlotCount),
		SlotTotals:    make(map[string]int64, model.SlotCount),
		Collaborators: make(map[string]model.Collaborator, len(config.Roles)),
		PersonTotals:  make(map[string]*model.PersonTotals, len(config.Roles)),
		Errors:        []string{},
	}

	raw, ok := fields.Get(cfg.SurgeryDateFieldKey)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("missing surgery date (field '%s')", cfg.SurgeryDateFieldKey))
	} else if day, ok := normalize.Date(raw); ok {
		s := normalize.FormatDate(day)
		res.Surgery = day
		res.SurgeryDate = &s
	} else {
		res.Errors = append(res.Errors, fmt.Sprintf("unparseable surgery date (field '%s')", cfg.SurgeryDateFieldKey))
	}

	for slot := 1; slot <= model.SlotCount; slot++ {
		sr := rules.EvaluateSlot(slot, cfg.Rule(slot), cfg.ExtrasEnabled, fields)
		res.Slots = append(res.Slots, sr)
		if sr.Error != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("BAR%d: %s", slot, *sr.Error))
		}
		if sr.Counted() {
			res.SlotTotals[model.SlotKey(slot)] = *sr.Amount
		}
	}

	for _, role := range config.Roles {
		res.Collaborators[role] = collaborator(fields, cfg.CollaboratorFieldKeys[role])
	}

	for _, role := range config.Roles {
		c := res.Collaborators[role]
		key := role
		if c.ID != nil {
			key = *c.ID
		}
		label := key
		if c.Label != nil {
			label = *c.Label
		}

		p, ok := res.PersonTotals[key]
		if !ok {
			p = &model.PersonTotals{PersonKey: key, Label: label, Roles: []string{}}
			res.PersonTotals[key] = p
		}
		slots := roleSlots[role]
		base := res.SlotTotals[model.SlotKey(slots[0])]
		extra := res.SlotTotals[model.SlotKey(slots[1])]
		p.BaseAmount += base
		p.ExtraAmount += extra
		p.TotalAmount += base + extra
		p.Roles = append(p.Roles, role)
	}

	return res
}

// collaborator resolves a collaborator field. The label falls back to the id.
func collaborator(fields model.Fields, key string) model.Collaborator {
	var c model.Collaborator
	raw, ok := fields.Get(key)
	if !ok {
		return c
	}
	id, label := normalize.Option(raw)
	if label == "" {
		label = id
	}
	if id != "" {
		c.ID = &id
	}
	if label != "" {
		c.Label = &label
	}
	return c
}
