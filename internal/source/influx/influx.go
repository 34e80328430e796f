// Package influx reads field history from InfluxDB 2.x buckets with Flux.
package influx

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/newthinker/sigalign/internal/core"
	"github.com/newthinker/sigalign/internal/metrics"
	"github.com/newthinker/sigalign/internal/source"
	"go.uber.org/zap"
)

// Options configures InfluxDB clients.
type Options struct {
	RequestTimeout time.Duration
}

// querier runs a Flux query and returns its (time, value) rows.
type querier func(ctx context.Context, ep core.Endpoint, token, org, flux string) ([]core.Sample, error)

// Adapter fetches TimeSeriesAccess history.
type Adapter struct {
	resolver source.ConnectionResolver
	opts     Options
	query    querier
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// New creates an InfluxDB adapter.
func New(resolver source.ConnectionResolver, opts Options, reg *metrics.Registry, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		resolver: resolver,
		opts:     opts,
		metrics:  reg,
		logger:   logger.Named("influx"),
	}
	a.query = a.runQuery
	return a
}

// FetchHistory reads the field history of acc within tr, at most maxSamples
// rows.
func (a *Adapter) FetchHistory(ctx context.Context, acc core.TimeSeriesAccess, tr core.TimeRange, maxSamples int) (ts core.TimeSeries, err error) {
	if err := source.CheckRequest(acc.SignalID, tr, maxSamples); err != nil {
		return core.TimeSeries{}, err
	}

	start := time.Now()
	a.metrics.FetchStarted()
	defer func() {
		a.metrics.RecordFetch(core.ProtocolInfluxDB, err, ts.Len(), time.Since(start).Seconds())
	}()

	ep, err := a.resolver.ResolveConnection(ctx, acc.EndpointURL)
	if err != nil {
		if e, ok := core.AsError(err); ok {
			return core.TimeSeries{}, e.ForSignal(acc.SignalID)
		}
		return core.TimeSeries{}, err
	}

	token, ok := ep.Credentials.(core.Token)
	if !ok {
		kind := "anonymous"
		if ep.Credentials != nil {
			kind = ep.Credentials.Kind()
		}
		return core.TimeSeries{}, core.Errorf(core.ErrAuth,
			"influxdb needs token credentials, connection has %s", kind).ForSignal(acc.SignalID)
	}

	flux := BuildQuery(acc, tr, maxSamples)
	a.logger.Debug("running flux query",
		zap.String("signal", string(acc.SignalID)),
		zap.String("query", flux),
	)

	qctx := ctx
	if a.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()
	}
	samples, err := a.query(qctx, ep, token.Value, acc.Organization, flux)
	if err != nil {
		return core.TimeSeries{}, mapError(qctx, err).ForSignal(acc.SignalID)
	}

	ts = source.Finish(acc.SignalID, samples, tr, maxSamples)
	a.logger.Debug("fetched history",
		zap.String("signal", string(acc.SignalID)),
		zap.Int("rows", len(samples)),
		zap.Int("samples", ts.Len()),
		zap.Duration("took", time.Since(start)),
	)
	return ts, nil
}

func (a *Adapter) runQuery(ctx context.Context, ep core.Endpoint, token, org, flux string) ([]core.Sample, error) {
	opts := influxdb2.DefaultOptions()
	if a.opts.RequestTimeout > 0 {
		// The client counts whole seconds; ctx carries the exact deadline.
		opts.SetHTTPRequestTimeout(uint(math.Ceil(a.opts.RequestTimeout.Seconds())))
	}
	client := influxdb2.NewClientWithOptions(ep.URL, token, opts)
	defer client.Close()

	res, err := client.QueryAPI(org).Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var out []core.Sample
	for res.Next() {
		rec := res.Record()
		if rec.Value() == nil {
			continue
		}
		v, ok := toFloat(rec.Value())
		if !ok {
			return nil, core.Errorf(core.ErrQuery, "non numeric field value %T", rec.Value())
		}
		out = append(out, core.Sample{Time: rec.Time(), Value: v})
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// mapError classifies a query failure by HTTP status. Anything without a
// status is a transport failure.
func mapError(ctx context.Context, err error) *core.Error {
	if e, ok := core.AsError(err); ok {
		return e
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.ErrConnection, err)
	}

	var herr *ihttp.Error
	if errors.As(err, &herr) {
		switch herr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return core.WrapError(core.ErrAuth, err)
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
			return core.WrapError(core.ErrQuery, err)
		}
	}
	return core.WrapError(core.ErrConnection, err)
}
