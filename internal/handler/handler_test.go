package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"incentives-engine/internal/config"
	"incentives-engine/internal/model"
	"incentives-engine/internal/sell"
	"incentives-engine/internal/service"
)

type fakeCalc struct {
	cfg     *config.Incentives
	dealErr error
	gotID   int64
	period  string
}

func (f *fakeCalc) Deal(_ context.Context, id int64) (*model.DealResult, error) {
	f.gotID = id
	if f.dealErr != nil {
		return nil, f.dealErr
	}
	return &model.DealResult{DealID: id, SlotTotals: map[string]int64{"1": 8001}, Errors: []string{}}, nil
}

func (f *fakeCalc) Month(_ context.Context, period string) (*model.MonthlyReport, error) {
	f.period = period
	if period == "2024-13" {
		return nil, fmt.Errorf("%w: bad month", service.ErrInvalidInput)
	}
	return &model.MonthlyReport{Period: period, DealErrors: []model.DealErrors{}}, nil
}

func (f *fakeCalc) Config() *config.Incentives { return f.cfg }

func serve(t *testing.T, h *Handler, method, uri string) (*fasthttp.RequestCtx, map[string]any) {
	t.Helper()
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	h.Handle(&ctx)

	var body map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body), string(ctx.Response.Body()))
	return &ctx, body
}

func newTestHandler(calc *fakeCalc) (*Handler, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	h := New(context.Background(), calc, zap.New(core), Options{BaseURL: "https://crm.example", SearchBaseURL: "https://search.example"})
	return h, logs
}

func TestHealth(t *testing.T) {
	h, logs := newTestHandler(&fakeCalc{})
	ctx, body := serve(t, h, "GET", "/health")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, map[string]any{"ok": true}, body)
	assert.NotEmpty(t, ctx.Response.Header.Peek("X-Calculation-Id"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "/health", entry.ContextMap()["path"])
	assert.EqualValues(t, 200, entry.ContextMap()["status"])
}

func TestDealRoute(t *testing.T) {
	calc := &fakeCalc{}
	h, _ := newTestHandler(calc)
	ctx, body := serve(t, h, "GET", "/v1/deals/42")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.EqualValues(t, 42, calc.gotID)
	assert.EqualValues(t, 42, body["deal_id"])
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
}

func TestDealRouteErrors(t *testing.T) {
	cases := []struct {
		name   string
		uri    string
		err    error
		status int
	}{
		{"bad id", "/v1/deals/abc", nil, 400},
		{"not found", "/v1/deals/9", &service.UpstreamError{Op: "get deal", Err: fmt.Errorf("deal 9: %w", sell.ErrNotFound)}, 404},
		{"upstream", "/v1/deals/9", &service.UpstreamError{Op: "get deal", Err: errors.New("HTTP 503")}, 502},
		{"deadline", "/v1/deals/9", &service.UpstreamError{Op: "get deal", Err: context.DeadlineExceeded}, 504},
		{"config", "/v1/deals/9", fmt.Errorf("%w: stage_ids is empty", service.ErrConfig), 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newTestHandler(&fakeCalc{dealErr: tc.err})
			ctx, body := serve(t, h, "GET", tc.uri)

			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.EqualValues(t, tc.status, body["status"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestMonthlyRoute(t *testing.T) {
	calc := &fakeCalc{}
	h, _ := newTestHandler(calc)

	ctx, body := serve(t, h, "GET", "/v1/monthly/2024-05")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "2024-05", body["period"])
	assert.Equal(t, []any{}, body["deal_errors"])

	ctx, body = serve(t, h, "GET", "/v1/monthly/2024-13")
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Contains(t, body["message"], "invalid input")
}

func TestConfigRouteOmitsToken(t *testing.T) {
	cfg, err := config.Load("../../config/incentives_config.example.json")
	require.NoError(t, err)
	h, _ := newTestHandler(&fakeCalc{cfg: cfg})

	ctx, body := serve(t, h, "GET", "/v1/config")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "https://crm.example", body["sell_base_url"])
	assert.Equal(t, "https://search.example", body["sell_search_base_url"])
	assert.Equal(t, []any{float64(10693256), float64(35531166)}, body["stage_ids"])
	assert.Equal(t, "America/Sao_Paulo", body["timezone"])
	assert.NotContains(t, string(ctx.Response.Body()), "token")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h, _ := newTestHandler(&fakeCalc{})

	ctx, _ := serve(t, h, "GET", "/v2/nothing")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx, _ = serve(t, h, "POST", "/v1/deals/1")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
}
