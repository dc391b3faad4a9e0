// Package reportdiff compares a stored report with a recomputed one and
// lists the differences as RFC 6902 style operations.
package reportdiff

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Change is one operation turning the baseline into the current document.
// Old is set for replace and remove.
type Change struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	Old   any    `json:"old,omitempty"`
}

func (c Change) String() string {
	switch c.Op {
	case "add":
		return fmt.Sprintf("+ %s = %v", c.Path, c.Value)
	case "remove":
		return fmt.Sprintf("- %s (was %v)", c.Path, c.Old)
	default:
		return fmt.Sprintf("~ %s: %v -> %v", c.Path, c.Old, c.Value)
	}
}

// Compare diffs two values by their JSON form. Either side may be raw JSON
// bytes or any encodable value. Changes are ordered by path.
func Compare(baseline, current any) ([]Change, error) {
	a, err := generic(baseline)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	b, err := generic(current)
	if err != nil {
		return nil, fmt.Errorf("current: %w", err)
	}
	return Diff(a, b, ""), nil
}

func generic(v any) (any, error) {
	data, ok := v.([]byte)
	if !ok {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Diff computes the changes turning a into b. Both must be the result of
// unmarshalling into any. Path is "" for the root document.
func Diff(a, b any, path string) []Change {
	if a == nil && b == nil {
		return nil
	}
	if a == nil || b == nil {
		return []Change{{Op: "replace", Path: path, Value: b, Old: a}}
	}

	aMap, aIsMap := a.(map[string]any)
	bMap, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		return diffObjects(aMap, bMap, path)
	}

	aArr, aIsArr := a.([]any)
	bArr, bIsArr := b.([]any)
	if aIsArr && bIsArr {
		return diffArrays(aArr, bArr, path)
	}

	if aIsMap || bIsMap || aIsArr || bIsArr || a != b {
		return []Change{{Op: "replace", Path: path, Value: b, Old: a}}
	}
	return nil
}

func diffObjects(a, b map[string]any, path string) []Change {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var changes []Change
	for _, k := range keys {
		child := path + "/" + escapeKey(k)
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case !inB:
			changes = append(changes, Change{Op: "remove", Path: child, Old: av})
		case !inA:
			changes = append(changes, Change{Op: "add", Path: child, Value: bv})
		default:
			changes = append(changes, Diff(av, bv, child)...)
		}
	}
	return changes
}

func diffArrays(a, b []any, path string) []Change {
	var changes []Change

	common := min(len(a), len(b))
	for i := 0; i < common; i++ {
		changes = append(changes, Diff(a[i], b[i], path+"/"+strconv.Itoa(i))...)
	}
	// Removed from the end first so indices stay valid.
	for i := len(a) - 1; i >= common; i-- {
		changes = append(changes, Change{Op: "remove", Path: path + "/" + strconv.Itoa(i), Old: a[i]})
	}
	for i := common; i < len(b); i++ {
		changes = append(changes, Change{Op: "add", Path: path + "/" + strconv.Itoa(i), Value: b[i]})
	}
	return changes
}

// escapeKey escapes a JSON Pointer token per RFC 6901.
func escapeKey(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	s = strings.ReplaceAll(s, "/", "~1")
	return s
}
