package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/sigalign/internal/core"
	"github.com/newthinker/sigalign/internal/pipeline"
	"github.com/newthinker/sigalign/internal/source"
	"github.com/newthinker/sigalign/internal/source/influx"
	"github.com/newthinker/sigalign/internal/source/opcua"
	"github.com/newthinker/sigalign/internal/storage/export"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	alignFrom       string
	alignTo         string
	alignLast       time.Duration
	alignPoints     int
	alignMaxSamples int
	alignCombine    string
	alignExport     bool
)

var alignCmd = &cobra.Command{
	Use:   "align [signal...]",
	Short: "Fetch signal histories and align them on one grid",
	Long: `Resolve every signal, fetch its history from OPC UA or InfluxDB and
resample all series onto an evenly spaced grid over their common range.
The result is printed as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAlign,
}

func init() {
	alignCmd.Flags().StringVar(&alignFrom, "from", "", "range start, RFC 3339")
	alignCmd.Flags().StringVar(&alignTo, "to", "", "range end, RFC 3339 (default now)")
	alignCmd.Flags().DurationVar(&alignLast, "last", 0, "range of this length ending now, e.g. 8s")
	alignCmd.Flags().IntVar(&alignPoints, "points", 0, "grid points (default fetch.grid_points)")
	alignCmd.Flags().IntVar(&alignMaxSamples, "max-samples", 0, "samples per signal (default fetch.max_samples)")
	alignCmd.Flags().StringVar(&alignCombine, "combine", "", "combine aligned series: mean, min, max or sum")
	alignCmd.Flags().BoolVar(&alignExport, "export", false, "also write the result to the export storage")

	alignCmd.MarkFlagsMutuallyExclusive("last", "from")
	alignCmd.MarkFlagsMutuallyExclusive("last", "to")

	rootCmd.AddCommand(alignCmd)
}

func runAlign(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	tr, err := alignRange(time.Now(), e.cfg.Fetch.Lookback)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapters := source.Adapters{
		OpcUa: opcua.New(e.resolver, opcua.Options{
			ApplicationName: e.cfg.OpcUa.ApplicationName,
			RequestTimeout:  e.cfg.OpcUa.RequestTimeout,
			Security: core.MessageSecurity{
				Policy: e.cfg.OpcUa.SecurityPolicy,
				Mode:   e.cfg.OpcUa.SecurityMode,
			},
		}, e.metrics, e.log),
		TimeSeries: influx.New(e.resolver, influx.Options{
			RequestTimeout: e.cfg.InfluxDB.RequestTimeout,
		}, e.metrics, e.log),
	}

	engine := pipeline.New(e.resolver, adapters, pipeline.Config{
		MaxSamples: e.cfg.Fetch.MaxSamples,
		GridPoints: e.cfg.Fetch.GridPoints,
		Combine:    e.cfg.Fetch.Combine,
	}, e.metrics, e.log)

	signals := make([]core.SignalID, len(args))
	for i, a := range args {
		signals[i] = core.SignalID(a)
	}

	res, err := engine.Run(ctx, pipeline.Request{
		Signals:    signals,
		Range:      tr,
		MaxSamples: alignMaxSamples,
		Points:     alignPoints,
		Combine:    alignCombine,
	})
	if err != nil {
		return err
	}

	if alignExport {
		exporter, err := newExporter(e)
		if err != nil {
			return err
		}
		p, err := exporter.Export(ctx, res)
		if err != nil {
			return err
		}
		e.log.Info("result exported", zap.String("path", p))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(export.NewDocument(res, time.Now()))
}

// alignRange derives the query range from --from/--to/--last. Without any
// of them the configured lookback ending now is used.
func alignRange(now time.Time, lookback time.Duration) (core.TimeRange, error) {
	if alignLast > 0 {
		return core.LastWindow(now, alignLast), nil
	}

	end := now
	if alignTo != "" {
		t, err := time.Parse(time.RFC3339Nano, alignTo)
		if err != nil {
			return core.TimeRange{}, fmt.Errorf("invalid --to (expected RFC 3339): %w", err)
		}
		end = t
	}
	if alignFrom == "" {
		return core.LastWindow(end, lookback), nil
	}

	start, err := time.Parse(time.RFC3339Nano, alignFrom)
	if err != nil {
		return core.TimeRange{}, fmt.Errorf("invalid --from (expected RFC 3339): %w", err)
	}
	if end.Before(start) {
		return core.TimeRange{}, fmt.Errorf("end must be after start")
	}
	return core.TimeRange{Start: start, End: end}, nil
}
