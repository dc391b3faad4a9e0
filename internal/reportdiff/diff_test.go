package reportdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incentives-engine/internal/model"
)

func TestCompareIdenticalReports(t *testing.T) {
	r := &model.MonthlyReport{
		Period:       "2024-05",
		TotalsBySlot: map[string]int64{"1": 8001, "2": 0},
		DealErrors:   []model.DealErrors{},
	}
	changes, err := Compare(r, r)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestCompareReportsOrderedByPath(t *testing.T) {
	baseline := []byte(`{
		"period": "2024-05",
		"matched_count": 2,
		"totals_by_slot": {"1": 8001, "2": 2},
		"totals_by_person": {"Ana": {"total_amount": 8001}, "c2/x": {"total_amount": 2}},
		"deal_errors": [{"deal_id": 1}, {"deal_id": 2}]
	}`)
	current := &model.MonthlyReport{
		Period:       "2024-05",
		MatchedCount: 3,
		TotalsBySlot: map[string]int64{"1": 16002, "2": 2},
		TotalsByPerson: map[string]*model.PersonTotals{
			"Ana": {PersonKey: "Ana", TotalAmount: 16002, Roles: []string{"c1"}},
		},
		DealErrors: []model.DealErrors{{DealID: 1, Errors: []string{"BAR2: invalid value, expected 2 or 5002"}}},
	}

	changes, err := Compare(baseline, current)
	require.NoError(t, err)

	var paths []string
	for _, c := range changes {
		paths = append(paths, c.Op+" "+c.Path)
	}
	assert.Equal(t, []string{
		"add /counts_by_slot",
		"add /deal_errors/0/errors",
		"remove /deal_errors/1",
		"replace /matched_count",
		"add /processed_count",
		"add /totals_by_person/Ana/base_amount",
		"add /totals_by_person/Ana/extra_amount",
		"add /totals_by_person/Ana/label",
		"add /totals_by_person/Ana/person_key",
		"add /totals_by_person/Ana/roles",
		"replace /totals_by_person/Ana/total_amount",
		"remove /totals_by_person/c2~1x",
		"replace /totals_by_slot/1",
		"add /window",
	}, paths)

	for _, c := range changes {
		if c.Path == "/totals_by_slot/1" {
			assert.EqualValues(t, 8001, c.Old)
			assert.EqualValues(t, 16002, c.Value)
			assert.Equal(t, "~ /totals_by_slot/1: 8001 -> 16002", c.String())
		}
	}
}

func TestDiffTypeChange(t *testing.T) {
	changes := Diff(map[string]any{"a": []any{1.0}}, map[string]any{"a": "x"}, "")
	assert.Equal(t, []Change{{Op: "replace", Path: "/a", Value: "x", Old: []any{1.0}}}, changes)
}

func TestCompareRejectsBrokenBaseline(t *testing.T) {
	_, err := Compare([]byte(`{"period":`), &model.MonthlyReport{})
	assert.ErrorContains(t, err, "baseline")
}
