package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incentives-engine/internal/config"
	"incentives-engine/internal/model"
)

const testDoc = `{
  "stage_ids": [10693256],
  "surgery_date_field_key": "FECHA DE CIRUGÍA",
  "collaborator_field_keys": {"c1": "Colaborador1", "c2": "Colaborador2", "c3": "Colaborador3"},
  "bar_rules": {
    "1": {"field_key": "ComisionBAR1", "min_code": 1, "max_code": 8001},
    "2": {"field_key": "ComisionBAR2", "min_code": 2, "max_code": 5002},
    "3": {"field_key": "ComisionBAR3", "min_code": 3, "max_code": 5003},
    "4": {"field_key": "ComisionBAR4", "min_code": 4, "max_code": 9004},
    "5": {"field_key": "ComisionBAR5", "min_code": 5, "max_code": 6005},
    "6": {"field_key": "ComisionBAR6", "min_code": 6, "max_code": 6006}
  }
}`

func testConfig(t *testing.T) *config.Incentives {
	t.Helper()
	cfg, err := config.Parse([]byte(testDoc))
	require.NoError(t, err)
	return cfg
}

func sampleDeal() model.Deal {
	return model.Deal{
		ID:      101,
		Name:    "Cirugía rodilla",
		StageID: 10693256,
		CustomFields: model.Fields{
			"FECHA DE CIRUGÍA": model.StringValue("2024-05-10"),
			"ComisionBAR1":     model.StringValue("8001"),
			"ComisionBAR2":     model.StringValue("2"),
			"ComisionBAR3":     model.StringValue("999"),
			"ComisionBAR5":     model.NumberValue(6005),
			"ComisionBAR6":     model.OptionValue("6", "No paga"),
			"Colaborador1":     model.OptionValue("11", "Ana"),
			"Colaborador2":     model.OptionValue("11", "Ana"),
		},
	}
}

func TestEvaluateDeal(t *testing.T) {
	deal := sampleDeal()
	res := EvaluateDeal(testConfig(t), &deal)

	require.NotNil(t, res.SurgeryDate)
	assert.Equal(t, "2024-05-10", *res.SurgeryDate)
	assert.EqualValues(t, 101, res.DealID)
	assert.Len(t, res.Slots, 6)

	assert.Equal(t, map[string]int64{"1": 8001, "2": 2, "5": 6005, "6": 6}, res.SlotTotals)
	assert.Equal(t, []string{"BAR3: invalid value, expected 3 or 5003"}, res.Errors)
	assert.True(t, res.Slots[3].IsMissing)

	ana := res.PersonTotals["11"]
	require.NotNil(t, ana)
	assert.Equal(t, "Ana", ana.Label)
	assert.Equal(t, []string{"c1", "c2"}, ana.Roles)
	assert.EqualValues(t, 8001+2, ana.BaseAmount)
	assert.EqualValues(t, 6005, ana.ExtraAmount)
	assert.EqualValues(t, 8001+2+6005, ana.TotalAmount)

	unresolved := res.PersonTotals["c3"]
	require.NotNil(t, unresolved, "unresolved collaborators fall back to the role name")
	assert.Equal(t, "c3", unresolved.Label)
	assert.EqualValues(t, 0, unresolved.BaseAmount)
	assert.EqualValues(t, 6, unresolved.ExtraAmount)

	assert.Nil(t, res.Collaborators["c3"].ID)
	assert.Equal(t, "11", *res.Collaborators["c1"].ID)
}

func TestEvaluateDealMissingDate(t *testing.T) {
	deal := sampleDeal()
	delete(deal.CustomFields, "FECHA DE CIRUGÍA")
	res := EvaluateDeal(testConfig(t), &deal)

	assert.Nil(t, res.SurgeryDate)
	assert.Equal(t, "missing surgery date (field 'FECHA DE CIRUGÍA')", res.Errors[0])
	assert.Len(t, res.SlotTotals, 4, "slots are still evaluated")
}

func TestEvaluateDealUnparseableDate(t *testing.T) {
	deal := sampleDeal()
	deal.CustomFields["FECHA DE CIRUGÍA"] = model.StringValue("mañana")
	res := EvaluateDeal(testConfig(t), &deal)

	assert.Nil(t, res.SurgeryDate)
	assert.Contains(t, res.Errors[0], "unparseable surgery date")
}

func TestEvaluateDealExtrasDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExtrasEnabled = false
	deal := sampleDeal()
	res := EvaluateDeal(cfg, &deal)

	assert.EqualValues(t, 0, res.SlotTotals["5"])
	assert.EqualValues(t, 0, res.SlotTotals["6"])
	assert.EqualValues(t, 0, res.PersonTotals["11"].ExtraAmount)
}

func datedDeal(id int64, date string, bar1 string, collaborator string) model.Deal {
	f := model.Fields{
		"ComisionBAR1": model.StringValue(bar1),
		"Colaborador1": model.StringValue(collaborator),
	}
	if date != "" {
		f["FECHA DE CIRUGÍA"] = model.StringValue(date)
	}
	return model.Deal{ID: id, CustomFields: f}
}

func TestAggregateMonthWindow(t *testing.T) {
	deals := []model.Deal{
		datedDeal(1, "2024-05-01", "8001", "Ana"),
		datedDeal(2, "2024-06-01", "8001", "Ana"),
		datedDeal(3, "05/31/2024", "1", "Luis"),
		datedDeal(4, "", "8001", "Ana"),
		datedDeal(5, "2024-04-30", "8001", "Ana"),
	}
	report := AggregateMonth(testConfig(t), deals, Period{Year: 2024, Month: time.May})

	assert.Equal(t, "2024-05", report.Period)
	assert.Equal(t, model.Window{Start: "2024-05-01", EndExclusive: "2024-06-01"}, report.Window)
	assert.Equal(t, 5, report.ProcessedCount)
	assert.Equal(t, 2, report.MatchedCount)
	assert.EqualValues(t, 8001+1, report.TotalsBySlot["1"])
	assert.Equal(t, model.SlotCounts{Paid: 1, Unpaid: 1}, *report.CountsBySlot["1"])
	assert.Equal(t, model.SlotCounts{Missing: 2}, *report.CountsBySlot["2"])
	assert.EqualValues(t, 0, report.TotalsBySlot["6"])

	ana := report.TotalsByPerson["Ana"]
	require.NotNil(t, ana)
	assert.EqualValues(t, 8001, ana.TotalAmount)
	assert.Equal(t, 1, ana.Deals)
	assert.Equal(t, 1, report.TotalsByPerson["Luis"].Deals)

	// Unresolved c2/c3 fold under their role names.
	assert.Equal(t, 2, report.TotalsByPerson["c2"].Deals)
	assert.Empty(t, report.DealErrors)
}

func TestAggregateMonthKeepsDealsWithInvalidSlots(t *testing.T) {
	good := datedDeal(1, "2024-05-03", "8001", "Ana")
	bad := datedDeal(2, "2024-05-04", "8001", "Ana")
	bad.CustomFields["ComisionBAR2"] = model.StringValue("77")

	report := AggregateMonth(testConfig(t), []model.Deal{good, bad}, Period{Year: 2024, Month: time.May})

	assert.Equal(t, 2, report.MatchedCount)
	assert.EqualValues(t, 16002, report.TotalsBySlot["1"])
	assert.Equal(t, 1, report.CountsBySlot["2"].Invalid)
	assert.Equal(t, []model.DealErrors{{DealID: 2, Errors: []string{"BAR2: invalid value, expected 2 or 5002"}}}, report.DealErrors)
}

func TestAggregateMonthIsOrderIndependent(t *testing.T) {
	cfg := testConfig(t)
	deals := []model.Deal{
		sampleDeal(),
		datedDeal(2, "2024-05-02", "8001", "Ana"),
		datedDeal(3, "2024-05-03", "1", "Luis"),
		datedDeal(4, "2024-05-04", "999", "Luis"),
		datedDeal(5, "2024-05-05", "", "Marta"),
		datedDeal(6, "2024-07-01", "8001", "Marta"),
	}
	deals[1].CustomFields["Colaborador2"] = model.OptionValue("Ana", "ana (legacy)")
	period := Period{Year: 2024, Month: time.May}
	want := AggregateMonth(cfg, deals, period)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]model.Deal(nil), deals...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := AggregateMonth(cfg, shuffled, period)
		if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(model.MonthlyReport{}, "DealErrors")); diff != "" {
			t.Fatalf("report depends on deal order (-want +got):\n%s", diff)
		}
		assert.ElementsMatch(t, want.DealErrors, got.DealErrors)
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-12")
	require.NoError(t, err)
	assert.Equal(t, Period{Year: 2024, Month: time.December}, p)

	start, end := p.Bounds()
	assert.Equal(t, "2024-12-01", start.Format(time.DateOnly))
	assert.Equal(t, "2025-01-01", end.Format(time.DateOnly))
	assert.Equal(t, "2024-12-31", p.LastDay().Format(time.DateOnly))

	for _, bad := range []string{"2024-13", "2024-00", "2024", "2024-05-01", "abcd-05", "2024-xx", ""} {
		_, err := ParsePeriod(bad)
		assert.ErrorIs(t, err, ErrInvalidPeriod, bad)
	}
}
