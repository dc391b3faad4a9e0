package engine

import (
	"sort"

	"incentives-engine/internal/config"
	"incentives-engine/internal/model"
)

// AggregateMonth folds the deals whose surgery date falls inside period into
// a monthly report. Deals without a usable date or outside the window are
// counted as processed and otherwise ignored. Apart from the order of
// DealErrors, which follows the input, the result does not depend on the
// order of deals.
func AggregateMonth(cfg *config.Incentives, deals []model.Deal, period Period) *model.MonthlyReport {
	report := newReport(period)

	for i := range deals {
		report.ProcessedCount++
		d := EvaluateDeal(cfg, &deals[i])
		if d.SurgeryDate == nil || !period.Contains(d.Surgery) {
			continue
		}
		report.MatchedCount++

		// Invalid slots are reported but the deal's valid slots still count.
		if len(d.Errors) > 0 {
			report.DealErrors = append(report.DealErrors, model.DealErrors{DealID: d.DealID, Errors: d.Errors})
		}

		for _, s := range d.Slots {
			key := model.SlotKey(s.Slot)
			counts := report.CountsBySlot[key]
			switch {
			case s.IsMissing:
				counts.Missing++
			case s.Error != nil:
				counts.Invalid++
			default:
				report.TotalsBySlot[key] += *s.Amount
				if *s.Pays {
					counts.Paid++
				} else {
					counts.Unpaid++
				}
			}
		}

		for key, pt := range d.PersonTotals {
			foldPerson(report.TotalsByPerson, key, pt)
		}
	}

	return report
}

func newReport(period Period) *model.MonthlyReport {
	start, end := period.window()
	report := &model.MonthlyReport{
		Period:         period.String(),
		Window:         model.Window{Start: start, EndExclusive: end},
		TotalsBySlot:   make(map[string]int64, model.SlotCount),
		CountsBySlot:   make(map[string]*model.SlotCounts, model.SlotCount),
		TotalsByPerson: make(map[string]*model.PersonTotals),
		DealErrors:     []model.DealErrors{},
	}
	for slot := 1; slot <= model.SlotCount; slot++ {
		report.TotalsBySlot[model.SlotKey(slot)] = 0
		report.CountsBySlot[model.SlotKey(slot)] = &model.SlotCounts{}
	}
	return report
}

// foldPerson adds one deal's totals for a person. The label kept is the
// smallest one seen and roles are a sorted union, so the fold commutes.
func foldPerson(acc map[string]*model.PersonTotals, key string, pt *model.PersonTotals) {
	p, ok := acc[key]
	if !ok {
		p = &model.PersonTotals{PersonKey: key, Label: pt.Label, Roles: []string{}}
		acc[key] = p
	}
	if pt.Label != "" && (p.Label == "" || pt.Label < p.Label) {
		p.Label = pt.Label
	}
	p.BaseAmount += pt.BaseAmount
	p.ExtraAmount += pt.ExtraAmount
	p.TotalAmount += pt.TotalAmount
	p.Deals++
	p.Roles = unionRoles(p.Roles, pt.Roles)
}

func unionRoles(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, r := range append(append([]string(nil), a...), b...) {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
