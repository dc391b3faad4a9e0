package sell

import (
	"context"
	"fmt"
	"time"

	"incentives-engine/internal/model"
)

// Filter is the search API's boolean AND of attribute predicates.
type Filter struct {
	And []Clause `json:"and"`
}

type Clause struct {
	Filter Predicate `json:"filter"`
}

type Predicate struct {
	Attribute Attribute `json:"attribute"`
	Parameter Parameter `json:"parameter"`
}

type Attribute struct {
	Name string `json:"name"`
}

type Parameter struct {
	Any   []int64 `json:"any,omitempty"`
	Range *Range  `json:"range,omitempty"`
}

// Range bounds are inclusive ISO dates.
type Range struct {
	Gte string `json:"gte"`
	Lte string `json:"lte"`
}

// StageAndDateFilter matches deals in any of stageIDs whose dateKey
// attribute falls in [from, to].
func StageAndDateFilter(stageIDs []int64, dateKey string, from, to time.Time) Filter {
	return Filter{And: []Clause{
		{Filter: Predicate{
			Attribute: Attribute{Name: "stage_id"},
			Parameter: Parameter{Any: stageIDs},
		}},
		{Filter: Predicate{
			Attribute: Attribute{Name: dateKey},
			Parameter: Parameter{Range: &Range{
				Gte: from.Format(time.DateOnly),
				Lte: to.Format(time.DateOnly),
			}},
		}},
	}}
}

type projectionField struct {
	Name string `json:"name"`
}

type searchQuery struct {
	Projection []projectionField `json:"projection"`
	Filter     Filter            `json:"filter"`
}

type searchData struct {
	Query   searchQuery `json:"query"`
	Hits    bool        `json:"hits"`
	PerPage int         `json:"per_page"`
	Cursor  string      `json:"cursor,omitempty"`
}

type searchItem struct {
	Data searchData `json:"data"`
}

type searchRequest struct {
	Items []searchItem `json:"items"`
}

type searchRow struct {
	Data model.Fields `json:"data"`
}

type searchResult struct {
	Successful *bool       `json:"successful"`
	Items      []searchRow `json:"items"`
	Meta       struct {
		Links struct {
			NextPage string `json:"next_page"`
		} `json:"links"`
	} `json:"meta"`
}

type searchResponse struct {
	Items []searchResult `json:"items"`
}

// SearchPager walks a cursor-paged attribute search. Rows are flat objects
// keyed by the projected attribute names.
type SearchPager struct {
	c          *Client
	projection []projectionField
	filter     Filter
	perPage    int
	cursor     string
	pages      int
	done       bool
	batch      []model.Fields
	err        error
}

func (c *Client) SearchPages(filter Filter, projection []string, perPage int) *SearchPager {
	if perPage <= 0 {
		perPage = 200
	}
	proj := make([]projectionField, len(projection))
	for i, name := range projection {
		proj[i] = projectionField{Name: name}
	}
	return &SearchPager{c: c, projection: proj, filter: filter, perPage: perPage}
}

// Next fetches the next page and reports whether one was read. A response
// flagged unsuccessful ends the walk with ErrSearchUnsuccessful.
func (p *SearchPager) Next(ctx context.Context) bool {
	if p.done {
		return false
	}
	p.pages++

	req := searchRequest{Items: []searchItem{{Data: searchData{
		Query:   searchQuery{Projection: p.projection, Filter: p.filter},
		Hits:    true,
		PerPage: p.perPage,
		Cursor:  p.cursor,
	}}}}

	var payload searchResponse
	if err := p.c.postJSON(ctx, p.c.searchBaseURL+pathSearch, req, &payload); err != nil {
		return p.fail(fmt.Errorf("search page %d: %w", p.pages, err))
	}

	var single searchResult
	if len(payload.Items) > 0 {
		single = payload.Items[0]
	}
	if single.Successful != nil && !*single.Successful {
		return p.fail(fmt.Errorf("search page %d: %w", p.pages, ErrSearchUnsuccessful))
	}

	p.batch = make([]model.Fields, 0, len(single.Items))
	for _, row := range single.Items {
		if row.Data == nil {
			row.Data = model.Fields{}
		}
		p.batch = append(p.batch, row.Data)
	}
	p.cursor = single.Meta.Links.NextPage
	if p.cursor == "" {
		p.done = true
	}
	return true
}

func (p *SearchPager) fail(err error) bool {
	p.err = err
	p.batch = nil
	p.done = true
	return false
}

func (p *SearchPager) Batch() []model.Fields { return p.batch }

func (p *SearchPager) Err() error { return p.err }

// Search runs the whole search and returns every row, or nothing if any
// page fails.
func (c *Client) Search(ctx context.Context, filter Filter, projection []string, perPage int) ([]model.Fields, error) {
	var out []model.Fields
	p := c.SearchPages(filter, projection, perPage)
	for p.Next(ctx) {
		out = append(out, p.Batch()...)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
