package sell

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"incentives-engine/internal/model"
	"incentives-engine/internal/normalize"
)

// FieldDef is one entry of the deal custom field catalog. The CRM keys core
// payloads by Name and search rows by SearchKey; configuration may use any
// of Name or ID.
type FieldDef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	SearchKey string `json:"search_key,omitempty"`
}

func (d *FieldDef) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID          model.FieldValue `json:"id"`
		Name        string           `json:"name"`
		Type        string           `json:"type"`
		SearchKey   string           `json:"search_key"`
		SearchAPIID string           `json:"search_api_id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	id, _ := normalize.Option(raw.ID)
	*d = FieldDef{ID: id, Name: raw.Name, Type: raw.Type, SearchKey: raw.SearchKey}
	if d.SearchKey == "" {
		d.SearchKey = raw.SearchAPIID
	}
	return nil
}

type fieldList struct {
	Items []struct {
		Data *FieldDef `json:"data"`
	} `json:"items"`
}

// CustomFields fetches the deal custom field catalog.
func (c *Client) CustomFields(ctx context.Context) ([]FieldDef, error) {
	var payload fieldList
	if err := c.getJSON(ctx, c.searchBaseURL+pathCustomFields, &payload); err != nil {
		return nil, fmt.Errorf("custom fields: %w", err)
	}
	defs := make([]FieldDef, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.Data != nil && it.Data.ID != "" {
			defs = append(defs, *it.Data)
		}
	}
	return defs, nil
}

// FieldCatalog fetches the catalog and indexes it.
func (c *Client) FieldCatalog(ctx context.Context) (*FieldCatalog, error) {
	defs, err := c.CustomFields(ctx)
	if err != nil {
		return nil, err
	}
	return NewFieldCatalog(defs), nil
}

// FieldCatalog cross-references field names, ids and search keys.
type FieldCatalog struct {
	byID        map[string]FieldDef
	byName      map[string]FieldDef
	bySearchKey map[string]FieldDef
}

func NewFieldCatalog(defs []FieldDef) *FieldCatalog {
	fc := &FieldCatalog{
		byID:        make(map[string]FieldDef, len(defs)),
		byName:      make(map[string]FieldDef, len(defs)),
		bySearchKey: make(map[string]FieldDef, len(defs)),
	}
	for _, d := range defs {
		fc.byID[d.ID] = d
		if d.Name != "" {
			fc.byName[d.Name] = d
		}
		if d.SearchKey != "" {
			fc.bySearchKey[d.SearchKey] = d
		}
	}
	return fc
}

// Lookup resolves a configured key, trying it as a field name and then as
// a (possibly zero-padded) field id.
func (fc *FieldCatalog) Lookup(key string) (FieldDef, bool) {
	if d, ok := fc.byName[key]; ok {
		return d, true
	}
	if d, ok := fc.byID[key]; ok {
		return d, true
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64); err == nil {
		d, ok := fc.byID[strconv.FormatInt(n, 10)]
		return d, ok
	}
	return FieldDef{}, false
}

// SearchKey returns the search attribute name for a configured key.
func (fc *FieldCatalog) SearchKey(key string) (string, error) {
	d, ok := fc.Lookup(key)
	if !ok || d.SearchKey == "" {
		return "", fmt.Errorf("%w: no search key for field %q", ErrFieldUnresolved, key)
	}
	return d.SearchKey, nil
}

// Projection lists the attributes to request for the given field keys:
// id, name and stage_id plus every resolvable search key, without repeats.
func (fc *FieldCatalog) Projection(keys []string) []string {
	out := []string{"id", "name", "stage_id"}
	seen := map[string]bool{"id": true, "name": true, "stage_id": true}
	for _, k := range keys {
		sk, err := fc.SearchKey(k)
		if err != nil || seen[sk] {
			continue
		}
		seen[sk] = true
		out = append(out, sk)
	}
	return out
}

// DealFromRow turns a flat search row into a deal whose custom fields are
// addressable by both field id and field name. Null values are dropped.
func (fc *FieldCatalog) DealFromRow(row model.Fields) model.Deal {
	deal := model.Deal{CustomFields: make(model.Fields, len(row)*2)}
	if v, ok := row["id"]; ok {
		deal.ID, _ = normalize.Integer(v)
	}
	if v, ok := row["stage_id"]; ok {
		deal.StageID, _ = normalize.Integer(v)
	}
	if v, ok := row["name"]; ok && v.Kind == model.KindString {
		deal.Name = v.Text
	}
	for key, v := range row {
		d, ok := fc.bySearchKey[key]
		if !ok || !v.Present() {
			continue
		}
		deal.CustomFields[d.ID] = v
		if d.Name != "" {
			deal.CustomFields[d.Name] = v
		}
	}
	return deal
}

// Rekey returns a copy of a name-keyed payload with every catalogued value
// also stored under its counterpart key, so configuration written with
// field ids resolves. Existing keys are never overwritten.
func (fc *FieldCatalog) Rekey(fields model.Fields) model.Fields {
	out := make(model.Fields, len(fields)*2)
	for k, v := range fields {
		out[k] = v
	}
	for k, v := range fields {
		if !v.Present() {
			continue
		}
		if d, ok := fc.byName[k]; ok {
			if _, taken := out[d.ID]; !taken {
				out[d.ID] = v
			}
			continue
		}
		if d, ok := fc.byID[k]; ok && d.Name != "" {
			if _, taken := out[d.Name]; !taken {
				out[d.Name] = v
			}
		}
	}
	return out
}
