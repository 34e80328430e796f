// Package pipeline runs alignment passes: resolve every requested signal,
// fetch all histories concurrently, align them on one grid and optionally
// combine them.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/sigalign/internal/align"
	"github.com/newthinker/sigalign/internal/core"
	"github.com/newthinker/sigalign/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver maps a signal to its access descriptor.
type Resolver interface {
	Resolve(ctx context.Context, id core.SignalID) (core.AccessDescriptor, error)
}

// Fetcher reads the history behind a descriptor.
type Fetcher interface {
	Fetch(ctx context.Context, desc core.AccessDescriptor, tr core.TimeRange, maxSamples int) (core.TimeSeries, error)
}

// Config holds pass defaults. Request fields override them.
type Config struct {
	MaxSamples int
	GridPoints int
	Combine    string
}

// Request describes one alignment pass.
type Request struct {
	Signals    []core.SignalID
	Range      core.TimeRange
	MaxSamples int
	Points     int
	// Grid, when set, replaces the computed overlap grid.
	Grid    []time.Time
	Combine string
}

// Result is the output of a successful pass.
type Result struct {
	PassID   string               `json:"pass_id"`
	Range    core.TimeRange       `json:"range"`
	Grid     *core.Grid           `json:"grid"`
	Series   []core.AlignedSeries `json:"series"`
	Combined *core.AlignedSeries  `json:"combined,omitempty"`
}

// Engine is the orchestrator
type Engine struct {
	resolver Resolver
	fetcher  Fetcher
	cfg      Config
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// New creates an engine.
func New(resolver Resolver, fetcher Fetcher, cfg Config, reg *metrics.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GridPoints == 0 {
		cfg.GridPoints = align.DefaultPoints
	}
	return &Engine{
		resolver: resolver,
		fetcher:  fetcher,
		cfg:      cfg,
		metrics:  reg,
		logger:   logger,
	}
}

// Run executes one pass. Any resolution, fetch or alignment failure aborts
// the whole pass; there is no partial result.
func (e *Engine) Run(ctx context.Context, req Request) (res *Result, err error) {
	passID := uuid.NewString()
	log := e.logger.With(zap.String("pass", passID))
	start := time.Now()
	defer func() {
		points := 0
		if res != nil {
			points = res.Grid.Len()
		}
		e.metrics.RecordPass(err, points, time.Since(start).Seconds())
	}()

	req, err = e.normalize(req)
	if err != nil {
		return nil, err
	}

	log.Info("starting pass",
		zap.Int("signals", len(req.Signals)),
		zap.Time("from", req.Range.Start),
		zap.Time("to", req.Range.End),
	)

	inputs, err := e.fetchAll(ctx, log, req)
	if err != nil {
		log.Warn("pass aborted", zap.Error(err))
		return nil, err
	}

	var aligned *align.Result
	if req.Grid != nil {
		grid, gerr := align.GridFromTimes(req.Grid)
		if gerr != nil {
			return nil, gerr
		}
		aligned, err = align.AlignOnGrid(inputs, grid)
	} else {
		aligned, err = align.AlignAll(inputs, req.Points)
	}
	if err != nil {
		log.Warn("alignment failed", zap.Error(err))
		return nil, err
	}

	res = &Result{
		PassID: passID,
		Range:  req.Range,
		Grid:   aligned.Grid,
		Series: aligned.Series,
	}

	if req.Combine != "" {
		reduce, rerr := align.ReducerByName(req.Combine)
		if rerr != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, rerr)
		}
		combined, cerr := align.Combine(reduce, core.SignalID(req.Combine), aligned.Series...)
		if cerr != nil {
			return nil, cerr
		}
		res.Combined = &combined
	}

	log.Info("pass complete",
		zap.Int("grid_points", res.Grid.Len()),
		zap.Time("grid_start", res.Grid.Start()),
		zap.Time("grid_end", res.Grid.End()),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (e *Engine) normalize(req Request) (Request, error) {
	if len(req.Signals) == 0 {
		return req, core.Errorf(core.ErrConfigInvalid, "no signals requested")
	}
	seen := make(map[core.SignalID]struct{}, len(req.Signals))
	for _, id := range req.Signals {
		if id == "" {
			return req, core.Errorf(core.ErrConfigInvalid, "empty signal id")
		}
		if _, dup := seen[id]; dup {
			return req, core.Errorf(core.ErrConfigInvalid, "signal %s requested twice", id)
		}
		seen[id] = struct{}{}
	}
	if err := req.Range.Validate(); err != nil {
		return req, core.WrapError(core.ErrConfigInvalid, err)
	}

	if req.MaxSamples == 0 {
		req.MaxSamples = e.cfg.MaxSamples
	}
	if req.MaxSamples <= 0 {
		return req, core.Errorf(core.ErrConfigInvalid, "max samples must be positive, got %d", req.MaxSamples)
	}
	if req.Points == 0 {
		req.Points = e.cfg.GridPoints
	}
	if req.Combine == "" {
		req.Combine = e.cfg.Combine
	}
	if req.Combine != "" {
		if _, err := align.ReducerByName(req.Combine); err != nil {
			return req, core.WrapError(core.ErrConfigInvalid, err)
		}
	}
	return req, nil
}

// fetchAll resolves and fetches every signal concurrently. The first failure
// cancels the rest.
func (e *Engine) fetchAll(ctx context.Context, log *zap.Logger, req Request) ([]align.Input, error) {
	inputs := make([]align.Input, len(req.Signals))
	g, gctx := errgroup.WithContext(ctx)

	for i, id := range req.Signals {
		g.Go(func() error {
			desc, err := e.resolver.Resolve(gctx, id)
			e.metrics.RecordResolution(err)
			if err != nil {
				return attribute(err, id)
			}

			ts, err := e.fetcher.Fetch(gctx, desc, req.Range, req.MaxSamples)
			if err != nil {
				return attribute(err, id)
			}
			ts.Signal = id

			log.Debug("fetched signal",
				zap.String("signal", string(id)),
				zap.String("protocol", string(desc.Protocol())),
				zap.Int("samples", ts.Len()),
			)
			inputs[i] = align.Input{Series: ts, Type: desc.Type()}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}

// attribute makes sure the terminal error names the signal it came from.
// Unclassified errors are treated as source connection failures.
func attribute(err error, id core.SignalID) error {
	e, ok := core.AsError(err)
	if !ok {
		return core.WrapError(core.ErrConnection, err).ForSignal(id)
	}
	if e.Signal == "" {
		return e.ForSignal(id)
	}
	return e
}
