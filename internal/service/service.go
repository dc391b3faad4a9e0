// Package service runs the fetch-then-aggregate pipelines behind the HTTP
// endpoints and the recalc command.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"incentives-engine/internal/config"
	"incentives-engine/internal/engine"
	"incentives-engine/internal/model"
	"incentives-engine/internal/sell"
)

var (
	// ErrInvalidInput marks a caller mistake; no network call was made.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConfig marks a configuration that cannot serve the request.
	ErrConfig = errors.New("invalid configuration")
)

// UpstreamError is a CRM failure that aborted the request.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// CRM is the part of the Sell client the pipelines use.
type CRM interface {
	Deal(ctx context.Context, id int64) (*model.Deal, error)
	FieldCatalog(ctx context.Context) (*sell.FieldCatalog, error)
	Search(ctx context.Context, filter sell.Filter, projection []string, perPage int) ([]model.Fields, error)
	DealsByStage(ctx context.Context, stageID int64, perPage int) ([]model.Deal, error)
}

type Options struct {
	SearchPerPage int
	StagePerPage  int
	// FetchTimeout bounds a shared monthly fetch. The fetch runs detached
	// from the callers waiting on it, so no single caller's deadline applies.
	FetchTimeout time.Duration
	// Now is the clock used for the default period.
	Now func() time.Time
}

type Service struct {
	cfg    *config.Incentives
	crm    CRM
	log    *zap.Logger
	opts   Options
	flight singleflight.Group
}

func New(cfg *config.Incentives, crm CRM, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SearchPerPage <= 0 {
		opts.SearchPerPage = 200
	}
	if opts.StagePerPage <= 0 {
		opts.StagePerPage = 100
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{cfg: cfg, crm: crm, log: log, opts: opts}
}

func (s *Service) Config() *config.Incentives { return s.cfg }

// CurrentPeriod is the current month in the configured timezone.
func (s *Service) CurrentPeriod() engine.Period {
	return engine.PeriodOf(s.opts.Now().In(s.cfg.Location()))
}

// Deal evaluates a single deal. The payload is re-keyed through the field
// catalog so configuration written with field ids also resolves.
func (s *Service) Deal(ctx context.Context, id int64) (*model.DealResult, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: deal id must be positive, got %d", ErrInvalidInput, id)
	}
	deal, err := s.crm.Deal(ctx, id)
	if err != nil {
		return nil, upstream("get deal", err)
	}
	catalog, err := s.crm.FieldCatalog(ctx)
	if err != nil {
		return nil, upstream("custom fields", err)
	}
	deal.CustomFields = catalog.Rekey(deal.CustomFields)

	res := engine.EvaluateDeal(s.cfg, deal)
	s.log.Debug("deal evaluated",
		zap.Int64("deal_id", id),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

// Month builds the monthly report from an attribute search scoped to the
// configured stages and the month's surgery dates. Concurrent calls for
// the same period share one fetch; a caller whose ctx ends stops waiting
// without cancelling the fetch for the others.
func (s *Service) Month(ctx context.Context, rawPeriod string) (*model.MonthlyReport, error) {
	period, err := s.checkMonth(rawPeriod)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.flight.DoChan("search:"+period.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FetchTimeout)
		defer cancel()
		return s.monthBySearch(fctx, period)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.log.Debug("monthly report shared", zap.String("period", period.String()))
		}
		return res.Val.(*model.MonthlyReport), nil
	}
}

func (s *Service) checkMonth(rawPeriod string) (engine.Period, error) {
	period, err := engine.ParsePeriod(rawPeriod)
	if err != nil {
		return engine.Period{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(s.cfg.StageIDs) == 0 {
		return engine.Period{}, fmt.Errorf("%w: stage_ids is empty", ErrConfig)
	}
	return period, nil
}

func (s *Service) monthBySearch(ctx context.Context, period engine.Period) (*model.MonthlyReport, error) {
	catalog, err := s.crm.FieldCatalog(ctx)
	if err != nil {
		return nil, upstream("custom fields", err)
	}
	dateKey, err := catalog.SearchKey(s.cfg.SurgeryDateFieldKey)
	if err != nil {
		return nil, upstream("resolve surgery date field", err)
	}

	start, _ := period.Bounds()
	filter := sell.StageAndDateFilter(s.cfg.StageIDs, dateKey, start, period.LastDay())
	projection := catalog.Projection(s.cfg.FieldKeys())

	rows, err := s.crm.Search(ctx, filter, projection, s.opts.SearchPerPage)
	if err != nil {
		return nil, upstream("search deals", err)
	}

	deals := make([]model.Deal, len(rows))
	for i, row := range rows {
		deals[i] = catalog.DealFromRow(row)
	}
	return s.aggregate(deals, period, "search"), nil
}

// MonthByStage builds the monthly report by listing every configured stage.
// Stages are listed concurrently; a deal seen in several stages is kept
// once, at its first position, with the last payload seen.
func (s *Service) MonthByStage(ctx context.Context, rawPeriod string) (*model.MonthlyReport, error) {
	period, err := s.checkMonth(rawPeriod)
	if err != nil {
		return nil, err
	}

	var catalog *sell.FieldCatalog
	perStage := make([][]model.Deal, len(s.cfg.StageIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.crm.FieldCatalog(gctx)
		if err != nil {
			return upstream("custom fields", err)
		}
		catalog = c
		return nil
	})
	for i, stageID := range s.cfg.StageIDs {
		g.Go(func() error {
			deals, err := s.crm.DealsByStage(gctx, stageID, s.opts.StagePerPage)
			if err != nil {
				return upstream(fmt.Sprintf("list stage %d", stageID), err)
			}
			perStage[i] = deals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	deals := dedupe(perStage)
	for i := range deals {
		deals[i].CustomFields = catalog.Rekey(deals[i].CustomFields)
	}
	return s.aggregate(deals, period, "stages"), nil
}

// dedupe merges stage batches, keeping the last copy of each deal id and
// dropping deals without one.
func dedupe(batches [][]model.Deal) []model.Deal {
	var out []model.Deal
	index := make(map[int64]int)
	for _, batch := range batches {
		for _, d := range batch {
			if d.ID == 0 {
				continue
			}
			if i, ok := index[d.ID]; ok {
				out[i] = d
				continue
			}
			index[d.ID] = len(out)
			out = append(out, d)
		}
	}
	return out
}

func (s *Service) aggregate(deals []model.Deal, period engine.Period, source string) *model.MonthlyReport {
	report := engine.AggregateMonth(s.cfg, deals, period)
	s.log.Info("monthly report computed",
		zap.String("period", report.Period),
		zap.String("source", source),
		zap.Int("processed", report.ProcessedCount),
		zap.Int("matched", report.MatchedCount),
		zap.Int("deals_with_errors", len(report.DealErrors)))
	return report
}
