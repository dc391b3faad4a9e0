package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"incentives-engine/internal/config"
	"incentives-engine/internal/model"
	"incentives-engine/internal/sell"
	"incentives-engine/internal/service"
)

// Calculator is what the handler needs from the service.
type Calculator interface {
	Deal(ctx context.Context, id int64) (*model.DealResult, error)
	Month(ctx context.Context, period string) (*model.MonthlyReport, error)
	Config() *config.Incentives
}

type Options struct {
	BaseURL       string
	SearchBaseURL string
	// RequestTimeout bounds one request's whole pipeline. Zero means none.
	RequestTimeout time.Duration
}

type Handler struct {
	calc Calculator
	opts Options
	log  *zap.Logger
	base context.Context
}

// New returns a handler whose requests are cancelled when base is done.
func New(base context.Context, calc Calculator, log *zap.Logger, opts Options) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{calc: calc, opts: opts, log: log, base: base}
}

type configView struct {
	SellBaseURL       string `json:"sell_base_url"`
	SellSearchBaseURL string `json:"sell_search_base_url"`
	*config.Incentives
}

// Handle routes:
//
//	GET /health
//	GET /v1/config
//	GET /v1/deals/{id}
//	GET /v1/monthly/{YYYY-MM}
func (h *Handler) Handle(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	calcID := uuid.NewString()
	ctx.Response.Header.Set("X-Calculation-Id", calcID)

	path := string(ctx.Path())
	switch {
	case !ctx.IsGet():
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
	case path == "/health":
		writeJSON(ctx, fasthttp.StatusOK, map[string]bool{"ok": true})
	case path == "/v1/config":
		writeJSON(ctx, fasthttp.StatusOK, configView{
			SellBaseURL:       h.opts.BaseURL,
			SellSearchBaseURL: h.opts.SearchBaseURL,
			Incentives:        h.calc.Config(),
		})
	case strings.HasPrefix(path, "/v1/deals/"):
		h.deal(ctx, strings.TrimPrefix(path, "/v1/deals/"))
	case strings.HasPrefix(path, "/v1/monthly/"):
		h.monthly(ctx, strings.TrimPrefix(path, "/v1/monthly/"))
	default:
		writeError(ctx, fasthttp.StatusNotFound, "Not found")
	}

	h.log.Info("request",
		zap.String("calculation_id", calcID),
		zap.ByteString("method", ctx.Method()),
		zap.String("path", path),
		zap.Int("status", ctx.Response.StatusCode()),
		zap.Duration("duration", time.Since(start)))
}

func (h *Handler) context() (context.Context, context.CancelFunc) {
	if h.opts.RequestTimeout > 0 {
		return context.WithTimeout(h.base, h.opts.RequestTimeout)
	}
	return context.WithCancel(h.base)
}

func (h *Handler) deal(ctx *fasthttp.RequestCtx, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "Invalid deal id: "+rawID)
		return
	}
	rctx, cancel := h.context()
	defer cancel()

	res, err := h.calc.Deal(rctx, id)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, res)
}

func (h *Handler) monthly(ctx *fasthttp.RequestCtx, period string) {
	rctx, cancel := h.context()
	defer cancel()

	report, err := h.calc.Month(rctx, period)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, report)
}

func (h *Handler) fail(ctx *fasthttp.RequestCtx, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == fasthttp.StatusNotFound {
		msg = "Deal not found"
	}
	if status >= fasthttp.StatusInternalServerError {
		h.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(ctx, status, msg)
}

// statusFor separates caller mistakes from dependency failures.
func statusFor(err error) int {
	var ue *service.UpstreamError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return fasthttp.StatusBadRequest
	case errors.Is(err, sell.ErrNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, service.ErrConfig):
		return fasthttp.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return fasthttp.StatusGatewayTimeout
	case errors.As(err, &ue):
		return fasthttp.StatusBadGateway
	default:
		return fasthttp.StatusInternalServerError
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, "Encoding response: "+err.Error())
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	body, _ := json.Marshal(model.ErrorResponse{
		Status:  status,
		Message: message,
	})
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
