package sell

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"incentives-engine/internal/model"
)

type dealEnvelope struct {
	Data *model.Deal `json:"data"`
}

type dealList struct {
	Items []dealEnvelope `json:"items"`
}

// Deal fetches one deal. A 404 or an empty payload is ErrNotFound.
func (c *Client) Deal(ctx context.Context, id int64) (*model.Deal, error) {
	var payload dealEnvelope
	err := c.getJSON(ctx, c.baseURL+pathDeals+"/"+strconv.FormatInt(id, 10), &payload)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, fmt.Errorf("deal %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if payload.Data == nil || payload.Data.ID == 0 {
		return nil, fmt.Errorf("deal %d: %w", id, ErrNotFound)
	}
	if payload.Data.CustomFields == nil {
		payload.Data.CustomFields = model.Fields{}
	}
	return payload.Data, nil
}

// StagePager walks the deals of one stage with 1-based offset pages. The
// last page is the first one shorter than the page size.
//
//	p := client.StagePages(stageID, 100)
//	for p.Next(ctx) {
//		deals = append(deals, p.Batch()...)
//	}
//	if err := p.Err(); err != nil { ... }
type StagePager struct {
	c       *Client
	stageID int64
	perPage int
	page    int
	done    bool
	batch   []model.Deal
	err     error
}

func (c *Client) StagePages(stageID int64, perPage int) *StagePager {
	if perPage <= 0 {
		perPage = 100
	}
	return &StagePager{c: c, stageID: stageID, perPage: perPage}
}

// Next fetches the next page and reports whether one was read.
func (p *StagePager) Next(ctx context.Context) bool {
	if p.done {
		return false
	}
	p.page++

	q := url.Values{}
	q.Set("stage_id", strconv.FormatInt(p.stageID, 10))
	q.Set("page", strconv.Itoa(p.page))
	q.Set("per_page", strconv.Itoa(p.perPage))

	var payload dealList
	if err := p.c.getJSON(ctx, p.c.baseURL+pathDeals+"?"+q.Encode(), &payload); err != nil {
		p.err = fmt.Errorf("stage %d page %d: %w", p.stageID, p.page, err)
		p.batch = nil
		p.done = true
		return false
	}

	p.batch = make([]model.Deal, 0, len(payload.Items))
	for _, it := range payload.Items {
		if it.Data == nil {
			p.batch = append(p.batch, model.Deal{CustomFields: model.Fields{}})
			continue
		}
		if it.Data.CustomFields == nil {
			it.Data.CustomFields = model.Fields{}
		}
		p.batch = append(p.batch, *it.Data)
	}
	if len(payload.Items) < p.perPage {
		p.done = true
	}
	return true
}

func (p *StagePager) Batch() []model.Deal { return p.batch }

func (p *StagePager) Err() error { return p.err }

// DealsByStage lists every deal of a stage. Any failed page fails the whole
// listing and nothing is returned.
func (c *Client) DealsByStage(ctx context.Context, stageID int64, perPage int) ([]model.Deal, error) {
	var out []model.Deal
	p := c.StagePages(stageID, perPage)
	for p.Next(ctx) {
		out = append(out, p.Batch()...)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
