// Package source holds the historical source adapters and the dispatch from
// access descriptors to them.
package source

import (
	"context"
	"fmt"

	"github.com/newthinker/sigalign/internal/core"
)

// ConnectionResolver resolves endpoint and credentials for a connection URL.
// Adapters call it on every fetch.
type ConnectionResolver interface {
	ResolveConnection(ctx context.Context, url string) (core.Endpoint, error)
}

// OpcUaFetcher reads history from an OPC UA server.
type OpcUaFetcher interface {
	FetchHistory(ctx context.Context, a core.OpcUaAccess, tr core.TimeRange, maxSamples int) (core.TimeSeries, error)
}

// TimeSeriesFetcher reads history from an InfluxDB bucket.
type TimeSeriesFetcher interface {
	FetchHistory(ctx context.Context, a core.TimeSeriesAccess, tr core.TimeRange, maxSamples int) (core.TimeSeries, error)
}

// Adapters maps every descriptor variant to its adapter.
type Adapters struct {
	OpcUa      OpcUaFetcher
	TimeSeries TimeSeriesFetcher
}

// Fetch dispatches desc to the adapter of its variant.
func (a Adapters) Fetch(ctx context.Context, desc core.AccessDescriptor, tr core.TimeRange, maxSamples int) (core.TimeSeries, error) {
	switch d := desc.(type) {
	case core.OpcUaAccess:
		if a.OpcUa == nil {
			return core.TimeSeries{}, unavailable(desc)
		}
		return a.OpcUa.FetchHistory(ctx, d, tr, maxSamples)
	case core.TimeSeriesAccess:
		if a.TimeSeries == nil {
			return core.TimeSeries{}, unavailable(desc)
		}
		return a.TimeSeries.FetchHistory(ctx, d, tr, maxSamples)
	default:
		return core.TimeSeries{}, core.Errorf(core.ErrMalformedDescriptor, "unsupported access descriptor %T", desc)
	}
}

func unavailable(desc core.AccessDescriptor) error {
	return core.WrapError(core.ErrConfigInvalid,
		fmt.Errorf("no %s adapter configured", desc.Protocol())).ForSignal(desc.Signal())
}

// Finish applies the common post-processing to fetched samples: sort,
// de-duplicate, restrict to tr and truncate to maxSamples.
func Finish(id core.SignalID, samples []core.Sample, tr core.TimeRange, maxSamples int) core.TimeSeries {
	samples = core.SortSamples(samples)
	kept := samples[:0]
	for _, s := range samples {
		if tr.Contains(s.Time) {
			kept = append(kept, s)
		}
	}
	if maxSamples > 0 && len(kept) > maxSamples {
		kept = kept[:maxSamples]
	}
	return core.TimeSeries{Signal: id, Samples: kept}
}

// CheckRequest validates the arguments shared by every FetchHistory.
func CheckRequest(id core.SignalID, tr core.TimeRange, maxSamples int) error {
	if err := tr.Validate(); err != nil {
		return core.WrapError(core.ErrQuery, err).ForSignal(id)
	}
	if maxSamples <= 0 {
		return core.Errorf(core.ErrQuery, "max samples must be positive, got %d", maxSamples).ForSignal(id)
	}
	return nil
}
