package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newthinker/sigalign/internal/core"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("expected non-nil registry")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	// Should have go runtime metrics at minimum
	if len(mfs) == 0 {
		t.Error("expected some metrics to be registered")
	}
}

func find(t *testing.T, reg *Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestRegistry_RecordFetch(t *testing.T) {
	reg := NewRegistry()

	reg.FetchStarted()
	reg.RecordFetch(core.ProtocolOpcUa, nil, 12, 0.05)
	reg.FetchStarted()
	reg.RecordFetch(core.ProtocolInfluxDB, core.ErrAuth, 0, 0.01)

	mf := find(t, reg, "sigalign_fetches_total")
	if mf == nil {
		t.Fatal("expected sigalign_fetches_total metric")
	}
	if len(mf.GetMetric()) != 2 {
		t.Errorf("expected 2 series, got %d", len(mf.GetMetric()))
	}

	samples := find(t, reg, "sigalign_samples_fetched_total")
	if samples == nil {
		t.Fatal("expected sigalign_samples_fetched_total metric")
	}

	inFlight := find(t, reg, "sigalign_fetches_in_flight")
	if got := inFlight.GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Errorf("expected 0 fetches in flight, got %v", got)
	}
}

func TestRegistry_RecordExcludedSkipsZero(t *testing.T) {
	reg := NewRegistry()
	reg.RecordExcluded(core.ProtocolOpcUa, 0)
	if find(t, reg, "sigalign_samples_excluded_total") != nil {
		t.Error("expected no excluded series for zero count")
	}

	reg.RecordExcluded(core.ProtocolOpcUa, 3)
	mf := find(t, reg, "sigalign_samples_excluded_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 3 {
		t.Error("expected 3 excluded samples")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "ok"},
		{core.ErrConnection, "connection_error"},
		{core.WrapError(core.ErrDisjointRanges, errors.New("x")).ForSignal("a"), "disjoint_ranges"},
		{errors.New("plain"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := Status(tt.err); got != tt.expected {
				t.Errorf("Status() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var reg *Registry
	// Should not panic
	reg.FetchStarted()
	reg.RecordFetch(core.ProtocolOpcUa, nil, 1, 0.1)
	reg.RecordExcluded(core.ProtocolOpcUa, 1)
	reg.RecordResolution(nil)
	reg.RecordPass(nil, 500, 1)
}

func TestRegistry_WriteTextfile(t *testing.T) {
	reg := NewRegistry()
	reg.RecordPass(nil, 500, 1.5)

	path := filepath.Join(t.TempDir(), "sigalign.prom")
	if err := reg.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "sigalign_passes_total") {
		t.Error("expected sigalign_passes_total in textfile")
	}
	if !strings.Contains(string(data), "sigalign_grid_points 500") {
		t.Error("expected grid points gauge in textfile")
	}
}
