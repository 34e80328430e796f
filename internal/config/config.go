package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/sigalign/internal/align"
	"github.com/newthinker/sigalign/internal/core"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SIGALIGN_FETCH_MAX_SAMPLES.
const EnvPrefix = "SIGALIGN"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	OpcUa     OpcUaConfig     `mapstructure:"opcua"`
	InfluxDB  InfluxDBConfig  `mapstructure:"influxdb"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DirectoryConfig locates the signal catalog.
type DirectoryConfig struct {
	Catalog string `mapstructure:"catalog"`
}

// FetchConfig holds alignment pass defaults.
type FetchConfig struct {
	MaxSamples int           `mapstructure:"max_samples"`
	Lookback   time.Duration `mapstructure:"lookback"`
	GridPoints int           `mapstructure:"grid_points"`
	Combine    string        `mapstructure:"combine"`
}

type OpcUaConfig struct {
	ApplicationName string        `mapstructure:"application_name"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	SecurityPolicy  string        `mapstructure:"security_policy"`
	SecurityMode    string        `mapstructure:"security_mode"`
}

type InfluxDBConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MetricsConfig holds metrics configuration. Metrics are written to Path in
// the node exporter textfile format after each run.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ExportConfig selects where aligned results are written.
type ExportConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("fetch.max_samples", d.Fetch.MaxSamples)
	v.SetDefault("fetch.lookback", d.Fetch.Lookback)
	v.SetDefault("fetch.grid_points", d.Fetch.GridPoints)
	v.SetDefault("opcua.application_name", d.OpcUa.ApplicationName)
	v.SetDefault("opcua.request_timeout", d.OpcUa.RequestTimeout)
	v.SetDefault("opcua.security_policy", d.OpcUa.SecurityPolicy)
	v.SetDefault("opcua.security_mode", d.OpcUa.SecurityMode)
	v.SetDefault("influxdb.request_timeout", d.InfluxDB.RequestTimeout)
	v.SetDefault("export.type", d.Export.Type)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Fetch: FetchConfig{
			MaxSamples: 10000,
			Lookback:   time.Hour,
			GridPoints: align.DefaultPoints,
		},
		OpcUa: OpcUaConfig{
			ApplicationName: "sigalign",
			RequestTimeout:  10 * time.Second,
			SecurityPolicy:  "None",
			SecurityMode:    "None",
		},
		InfluxDB: InfluxDBConfig{
			RequestTimeout: 20 * time.Second,
		},
		Export: ExportConfig{
			Type: "localfs",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Directory.Catalog == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("directory.catalog is required"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	// Fetch validation
	if c.Fetch.MaxSamples <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fetch.max_samples must be positive, got %d", c.Fetch.MaxSamples))
	}
	if c.Fetch.GridPoints < 2 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fetch.grid_points must be at least 2, got %d", c.Fetch.GridPoints))
	}
	if c.Fetch.Lookback < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fetch.lookback cannot be negative, got %s", c.Fetch.Lookback))
	}
	if c.Fetch.Combine != "" {
		if _, err := align.ReducerByName(c.Fetch.Combine); err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
	}

	if c.OpcUa.RequestTimeout < 0 || c.InfluxDB.RequestTimeout < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("request timeouts cannot be negative"))
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("metrics.path required when metrics are enabled"))
	}

	// Export validation - if type set, check its settings exist
	switch c.Export.Type {
	case "", "localfs":
	case "s3":
		if c.Export.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("export.s3.bucket required when export type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("export.type must be localfs or s3, got %q", c.Export.Type))
	}

	return nil
}
