// Package config loads the incentives rule document and the process settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"incentives-engine/internal/model"
)

// ErrInvalid marks a configuration document that cannot be used.
var ErrInvalid = errors.New("invalid incentives config")

// Collaborator roles, in attribution order.
const (
	RoleC1 = "c1"
	RoleC2 = "c2"
	RoleC3 = "c3"
)

var Roles = []string{RoleC1, RoleC2, RoleC3}

const defaultTimezone = "America/Sao_Paulo"

// BarRule configures how one BAR slot's code is interpreted.
type BarRule struct {
	FieldKey           string  `json:"field_key" yaml:"field_key"`
	MinCode            int64   `json:"min_code" yaml:"min_code"`
	MaxCode            int64   `json:"max_code" yaml:"max_code"`
	EquivalentMaxCodes []int64 `json:"equivalent_max_codes" yaml:"equivalent_max_codes"`
}

// IsMax reports whether code is one of the payable codes for the slot.
func (r BarRule) IsMax(code int64) bool {
	for _, c := range r.EquivalentMaxCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Incentives is the validated rule document. It is built once at startup and
// shared read-only by every request.
type Incentives struct {
	PipelineID            int64              `json:"pipeline_id" yaml:"pipeline_id"`
	StageIDs              []int64            `json:"stage_ids" yaml:"stage_ids"`
	SurgeryDateFieldKey   string             `json:"surgery_date_field_key" yaml:"surgery_date_field_key"`
	CollaboratorFieldKeys map[string]string  `json:"collaborator_field_keys" yaml:"collaborator_field_keys"`
	BarRules              map[string]BarRule `json:"bar_rules" yaml:"bar_rules"`
	ExtrasEnabled         bool               `json:"extras_enabled" yaml:"extras_enabled"`
	Timezone              string             `json:"timezone" yaml:"timezone"`

	location *time.Location
}

// Rule returns the rule for a slot in 1..6. Validation guarantees presence.
func (c *Incentives) Rule(slot int) BarRule {
	return c.BarRules[model.SlotKey(slot)]
}

// Location is the configured timezone.
func (c *Incentives) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// FieldKeys lists every configured field key: surgery date, collaborators
// (in role order) and BAR slots (in slot order), without duplicates.
func (c *Incentives) FieldKeys() []string {
	keys := []string{c.SurgeryDateFieldKey}
	for _, role := range Roles {
		keys = append(keys, c.CollaboratorFieldKeys[role])
	}
	for slot := 1; slot <= model.SlotCount; slot++ {
		keys = append(keys, c.Rule(slot).FieldKey)
	}

	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// document mirrors Incentives with pointers so absent keys can be told
// apart from zero values.
type document struct {
	PipelineID            int64                   `json:"pipeline_id" yaml:"pipeline_id"`
	StageIDs              []int64                 `json:"stage_ids" yaml:"stage_ids"`
	SurgeryDateFieldKey   string                  `json:"surgery_date_field_key" yaml:"surgery_date_field_key"`
	CollaboratorFieldKeys map[string]string       `json:"collaborator_field_keys" yaml:"collaborator_field_keys"`
	BarRules              map[string]documentRule `json:"bar_rules" yaml:"bar_rules"`
	ExtrasEnabled         *bool                   `json:"extras_enabled" yaml:"extras_enabled"`
	Timezone              string                  `json:"timezone" yaml:"timezone"`
}

type documentRule struct {
	FieldKey           string  `json:"field_key" yaml:"field_key"`
	MinCode            *int64  `json:"min_code" yaml:"min_code"`
	MaxCode            *int64  `json:"max_code" yaml:"max_code"`
	EquivalentMaxCodes []int64 `json:"equivalent_max_codes" yaml:"equivalent_max_codes"`
}

// Load reads and validates the incentives document at path. YAML is used
// for .yaml/.yml files, JSON otherwise.
func Load(path string) (*Incentives, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist; copy config/incentives_config.example.json and adjust it", ErrInvalid, path)
		}
		return nil, fmt.Errorf("read incentives config: %w", err)
	}

	var doc document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
	}
	return doc.build()
}

// Parse validates an in-memory JSON document.
func Parse(data []byte) (*Incentives, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	return doc.build()
}

func (d document) build() (*Incentives, error) {
	if strings.TrimSpace(d.SurgeryDateFieldKey) == "" {
		return nil, fmt.Errorf("%w: surgery_date_field_key is required", ErrInvalid)
	}

	for _, role := range Roles {
		if strings.TrimSpace(d.CollaboratorFieldKeys[role]) == "" {
			return nil, fmt.Errorf("%w: collaborator_field_keys.%s is required", ErrInvalid, role)
		}
	}
	for role := range d.CollaboratorFieldKeys {
		if !isRole(role) {
			return nil, fmt.Errorf("%w: unknown collaborator role %q", ErrInvalid, role)
		}
	}

	rules := make(map[string]BarRule, model.SlotCount)
	for key, r := range d.BarRules {
		slot := slotNumber(key)
		if slot == 0 {
			return nil, fmt.Errorf("%w: bar_rules key %q is not a slot in 1..%d", ErrInvalid, key, model.SlotCount)
		}
		if strings.TrimSpace(r.FieldKey) == "" {
			return nil, fmt.Errorf("%w: bar_rules.%s.field_key is required", ErrInvalid, key)
		}
		if r.MinCode == nil || r.MaxCode == nil {
			return nil, fmt.Errorf("%w: bar_rules.%s needs min_code and max_code", ErrInvalid, key)
		}
		maxCodes := r.EquivalentMaxCodes
		if len(maxCodes) == 0 {
			maxCodes = []int64{*r.MaxCode}
		}
		rules[model.SlotKey(slot)] = BarRule{
			FieldKey:           r.FieldKey,
			MinCode:            *r.MinCode,
			MaxCode:            *r.MaxCode,
			EquivalentMaxCodes: append([]int64(nil), maxCodes...),
		}
	}
	for slot := 1; slot <= model.SlotCount; slot++ {
		if _, ok := rules[model.SlotKey(slot)]; !ok {
			return nil, fmt.Errorf("%w: bar_rules.%d is required", ErrInvalid, slot)
		}
	}

	tz := d.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalid, tz, err)
	}

	extras := true
	if d.ExtrasEnabled != nil {
		extras = *d.ExtrasEnabled
	}

	collaborators := make(map[string]string, len(Roles))
	for _, role := range Roles {
		collaborators[role] = d.CollaboratorFieldKeys[role]
	}

	return &Incentives{
		PipelineID:            d.PipelineID,
		StageIDs:              append([]int64(nil), d.StageIDs...),
		SurgeryDateFieldKey:   d.SurgeryDateFieldKey,
		CollaboratorFieldKeys: collaborators,
		BarRules:              rules,
		ExtrasEnabled:         extras,
		Timezone:              tz,
		location:              loc,
	}, nil
}

// Lint reports authoring problems that do not stop the engine from running.
func (c *Incentives) Lint() []string {
	var findings []string
	for slot := 1; slot <= model.SlotCount; slot++ {
		r := c.Rule(slot)
		if r.IsMax(r.MinCode) {
			findings = append(findings, fmt.Sprintf("bar_rules.%d: min_code %d is also a max-equivalent code; it will be paid", slot, r.MinCode))
		}
		if !r.IsMax(r.MaxCode) {
			findings = append(findings, fmt.Sprintf("bar_rules.%d: max_code %d is not listed in equivalent_max_codes", slot, r.MaxCode))
		}
		seen := make(map[int64]bool, len(r.EquivalentMaxCodes))
		for _, code := range r.EquivalentMaxCodes {
			if seen[code] {
				findings = append(findings, fmt.Sprintf("bar_rules.%d: equivalent_max_codes repeats %d", slot, code))
			}
			seen[code] = true
		}
	}

	owners := make(map[string][]string)
	for slot := 1; slot <= model.SlotCount; slot++ {
		key := c.Rule(slot).FieldKey
		owners[key] = append(owners[key], model.SlotKey(slot))
	}
	keys := make([]string, 0, len(owners))
	for k := range owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(owners[k]) > 1 {
			findings = append(findings, fmt.Sprintf("field %q is shared by slots %s", k, strings.Join(owners[k], ",")))
		}
	}
	return findings
}

func isRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

func slotNumber(key string) int {
	key = strings.TrimSpace(key)
	if len(key) != 1 || key[0] < '1' || key[0] > '0'+model.SlotCount {
		return 0
	}
	return int(key[0] - '0')
}
