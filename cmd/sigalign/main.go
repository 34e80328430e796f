package main

import (
	"fmt"
	"os"

	"github.com/newthinker/sigalign/internal/config"
	"github.com/newthinker/sigalign/internal/core"
	"github.com/newthinker/sigalign/internal/directory"
	"github.com/newthinker/sigalign/internal/logger"
	"github.com/newthinker/sigalign/internal/metrics"
	"github.com/newthinker/sigalign/internal/resolver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile     string
	catalogFile string
	debug       bool
)

var rootCmd = &cobra.Command{
	Use:   "sigalign",
	Short: "sigalign - signal resolution and time-series alignment",
	Long: `sigalign resolves symbolic signal names to OPC UA or InfluxDB history,
fetches the raw samples and aligns them on one shared time grid.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&catalogFile, "catalog", "", "signal catalog file (overrides directory.catalog)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes retryable source failures from everything else.
func exitCode(err error) int {
	if core.IsRetryable(err) {
		return 75 // EX_TEMPFAIL
	}
	return 1
}

// env is what every command needs after startup.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	catalog  *directory.Catalog
	resolver *resolver.Resolver
	metrics  *metrics.Registry
}

func setup() (*env, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}
	if catalogFile != "" {
		cfg.Directory.Catalog = catalogFile
	}
	if debug {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log, err := logger.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if cfgFile == "" {
		log.Debug("no config file specified, using defaults")
	}

	catalog, err := directory.LoadCatalog(cfg.Directory.Catalog)
	if err != nil {
		return nil, err
	}

	rt := &env{
		cfg:     cfg,
		log:     log,
		catalog: catalog,
	}
	if cfg.Metrics.Enabled {
		rt.metrics = metrics.NewRegistry()
	}
	rt.resolver = resolver.New(catalog, log)
	return rt, nil
}

// close flushes logs and writes the metrics textfile.
func (rt *env) close() {
	if rt.metrics != nil {
		if err := rt.metrics.WriteTextfile(rt.cfg.Metrics.Path); err != nil {
			rt.log.Warn("writing metrics", zap.String("path", rt.cfg.Metrics.Path), zap.Error(err))
		}
	}
	_ = rt.log.Sync()
}
