// Package opcua reads raw history from OPC UA servers.
package opcua

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/newthinker/sigalign/internal/core"
	"github.com/newthinker/sigalign/internal/metrics"
	"github.com/newthinker/sigalign/internal/source"
	"go.uber.org/zap"
)

const closeTimeout = 5 * time.Second

// Options configures OPC UA sessions.
type Options struct {
	ApplicationName string
	RequestTimeout  time.Duration
	// Security applies when the connection record names none.
	Security core.MessageSecurity
}

// Adapter fetches OpcUaAccess history. Every fetch resolves its endpoint
// and opens its own session.
type Adapter struct {
	resolver source.ConnectionResolver
	opts     Options
	dial     dialFunc
	metrics  *metrics.Registry
	logger   *zap.Logger
}

// New creates an OPC UA adapter.
func New(resolver source.ConnectionResolver, opts Options, reg *metrics.Registry, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ApplicationName == "" {
		opts.ApplicationName = "sigalign"
	}
	return &Adapter{
		resolver: resolver,
		opts:     opts,
		dial:     dial,
		metrics:  reg,
		logger:   logger.Named("opcua"),
	}
}

// FetchHistory reads the raw history of a node within tr, at most
// maxSamples values.
func (a *Adapter) FetchHistory(ctx context.Context, acc core.OpcUaAccess, tr core.TimeRange, maxSamples int) (ts core.TimeSeries, err error) {
	if err := source.CheckRequest(acc.SignalID, tr, maxSamples); err != nil {
		return core.TimeSeries{}, err
	}

	start := time.Now()
	a.metrics.FetchStarted()
	defer func() {
		a.metrics.RecordFetch(core.ProtocolOpcUa, err, ts.Len(), time.Since(start).Seconds())
	}()

	ep, err := a.resolver.ResolveConnection(ctx, acc.EndpointURL)
	if err != nil {
		return core.TimeSeries{}, attribute(err, acc.SignalID)
	}

	sess, err := a.dial(ctx, ep, a.opts)
	if err != nil {
		return core.TimeSeries{}, mapError(ctx, err).ForSignal(acc.SignalID)
	}
	defer a.close(sess, acc)

	ns := newNamespaceCache(sess)
	nodeID, err := ns.nodeID(ctx, acc.NamespaceURI, acc.Node)
	if err != nil {
		return core.TimeSeries{}, mapError(ctx, err).ForSignal(acc.SignalID)
	}

	r, err := readRaw(ctx, sess, nodeID, tr, maxSamples)
	if err != nil {
		return core.TimeSeries{}, mapError(ctx, err).ForSignal(acc.SignalID)
	}
	a.metrics.RecordExcluded(core.ProtocolOpcUa, r.excluded)

	ts = source.Finish(acc.SignalID, r.samples, tr, maxSamples)
	if r.excluded > 0 {
		a.logger.Info("excluded bad quality samples",
			zap.String("signal", string(acc.SignalID)),
			zap.Int("excluded", r.excluded),
			zap.Int("raw", r.raw),
		)
		if r.raw >= 2 && ts.Len() < 2 {
			return core.TimeSeries{}, core.Errorf(core.ErrInsufficientSamples,
				"%d of %d samples had bad quality", r.excluded, r.raw).ForSignal(acc.SignalID)
		}
	}

	a.logger.Debug("fetched history",
		zap.String("signal", string(acc.SignalID)),
		zap.String("node", nodeID.String()),
		zap.Int("samples", ts.Len()),
		zap.Duration("took", time.Since(start)),
	)
	return ts, nil
}

// close ends the session on a detached context so cancelled fetches still
// release server resources.
func (a *Adapter) close(sess session, acc core.OpcUaAccess) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := sess.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("closing session",
			zap.String("signal", string(acc.SignalID)),
			zap.String("endpoint", acc.EndpointURL),
			zap.Error(err),
		)
	}
}

// namespaceCache resolves namespace URIs to indexes. The namespace array is
// read at most once per session.
type namespaceCache struct {
	sess session
	uris []string
}

func newNamespaceCache(sess session) *namespaceCache {
	return &namespaceCache{sess: sess}
}

func (c *namespaceCache) index(ctx context.Context, uri string) (uint16, error) {
	if c.uris == nil {
		uris, err := c.sess.NamespaceArray(ctx)
		if err != nil {
			return 0, fmt.Errorf("reading namespace array: %w", err)
		}
		c.uris = uris
	}
	for i, u := range c.uris {
		if u == uri {
			return uint16(i), nil
		}
	}
	return 0, core.Errorf(core.ErrQuery, "namespace %q not on server", uri)
}

func (c *namespaceCache) nodeID(ctx context.Context, uri string, node core.NodeIdentifier) (*ua.NodeID, error) {
	ns, err := c.index(ctx, uri)
	if err != nil {
		return nil, err
	}
	if node.IsNumeric {
		return ua.NewNumericNodeID(ns, node.Numeric), nil
	}
	return ua.NewStringNodeID(ns, node.String), nil
}

type rawResult struct {
	samples  []core.Sample
	raw      int
	excluded int
}

// readRaw follows continuation points until maxSamples usable values have
// been read or the server has no more. Bad-quality values do not count
// towards maxSamples. A leftover continuation point is released.
func readRaw(ctx context.Context, sess session, id *ua.NodeID, tr core.TimeRange, maxSamples int) (rawResult, error) {
	var r rawResult
	nodes := []*ua.HistoryReadValueID{{
		NodeID:       id,
		DataEncoding: &ua.QualifiedName{},
	}}

	for {
		details := &ua.ReadRawModifiedDetails{
			IsReadModified:   false,
			StartTime:        tr.Start,
			EndTime:          tr.End,
			NumValuesPerNode: uint32(maxSamples - len(r.samples)),
			ReturnBounds:     false,
		}
		resp, err := sess.HistoryReadRawModified(ctx, nodes, details)
		if err != nil {
			return r, err
		}
		if resp == nil || len(resp.Results) == 0 {
			return r, core.Errorf(core.ErrQuery, "history read of %s returned no result", id)
		}
		res := resp.Results[0]
		if isBad(res.StatusCode) {
			return r, fmt.Errorf("history read of %s: %w", id, res.StatusCode)
		}

		if err := r.collect(res); err != nil {
			return r, err
		}

		if len(res.ContinuationPoint) == 0 {
			return r, nil
		}
		nodes[0].ContinuationPoint = res.ContinuationPoint
		if len(r.samples) >= maxSamples {
			// Leftover continuation points hold server memory until released.
			_ = sess.ReleaseContinuationPoints(ctx, nodes)
			return r, nil
		}
	}
}

func (r *rawResult) collect(res *ua.HistoryReadResult) error {
	if res.HistoryData == nil || res.HistoryData.Value == nil {
		return nil
	}
	data, ok := res.HistoryData.Value.(*ua.HistoryData)
	if !ok {
		return core.Errorf(core.ErrQuery, "unexpected history data %T", res.HistoryData.Value)
	}

	for _, dv := range data.DataValues {
		if dv == nil {
			continue
		}
		r.raw++
		if isBad(dv.Status) {
			r.excluded++
			continue
		}
		v, ok := variantToFloat(dv.Value)
		if !ok {
			return core.Errorf(core.ErrQuery, "non numeric history value %T", variantValue(dv.Value))
		}
		t := dv.SourceTimestamp
		if t.IsZero() {
			t = dv.ServerTimestamp
		}
		r.samples = append(r.samples, core.Sample{Time: t, Value: v})
	}
	return nil
}

// isBad reports whether the status severity is Bad.
func isBad(s ua.StatusCode) bool {
	return uint32(s)&0xC0000000 == 0x80000000
}

func variantValue(v *ua.Variant) any {
	if v == nil {
		return nil
	}
	return v.Value()
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
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

func attribute(err error, id core.SignalID) error {
	if e, ok := core.AsError(err); ok {
		return e.ForSignal(id)
	}
	return err
}
