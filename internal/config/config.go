package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEpoch is the reference instant all delivery times are measured from.
var DefaultEpoch = time.Date(2015, time.February, 3, 2, 0, 0, 0, time.UTC)

type Config struct {
	Travel    TravelConfig    `mapstructure:"travel" json:"travel"`
	Batch     BatchConfig     `mapstructure:"batch" json:"batch"`
	Time      TimeConfig      `mapstructure:"time" json:"time"`
	Objective ObjectiveConfig `mapstructure:"objective" json:"objective"`
	Solver    SolverConfig    `mapstructure:"solver" json:"solver"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" json:"artifacts"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
	HTTP      HTTPConfig      `mapstructure:"http" json:"http"`
	Database  DatabaseConfig  `mapstructure:"database" json:"-"`
	Redis     RedisConfig     `mapstructure:"redis" json:"-"`
}

type TravelConfig struct {
	SpeedMPS float64 `mapstructure:"speed_mps" json:"speedMps"`
}

type BatchConfig struct {
	Policy   string `mapstructure:"policy" json:"policy"`
	Size     int    `mapstructure:"size" json:"size"`
	Clusters int    `mapstructure:"clusters" json:"clusters"`
	// Dashers per batch; 0 allots one per order.
	Dashers int `mapstructure:"dashers" json:"dashers"`
}

type TimeConfig struct {
	EpochRaw string    `mapstructure:"epoch" json:"epoch"`
	Epoch    time.Time `mapstructure:"-" json:"-"`
}

type ObjectiveConfig struct {
	Reference string `mapstructure:"reference" json:"reference"`
}

type SolverConfig struct {
	Provider  string        `mapstructure:"provider" json:"provider"`
	TimeLimit time.Duration `mapstructure:"time_limit" json:"timeLimit"`
	MIPGap    float64       `mapstructure:"mip_gap" json:"mipGap"`
	Workers   int           `mapstructure:"workers" json:"workers"`
	// Verbose turns on the engine's own progress log.
	Verbose bool `mapstructure:"verbose" json:"verbose"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" json:"dir,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

type HTTPConfig struct {
	Addr      string  `mapstructure:"addr" json:"addr"`
	RateLimit float64 `mapstructure:"rate_limit" json:"rateLimit"`
	RateBurst int     `mapstructure:"rate_burst" json:"rateBurst"`
	MaxBodyMB int64   `mapstructure:"max_body_mb" json:"maxBodyMb"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Travel:    TravelConfig{SpeedMPS: 4.5},
		Batch:     BatchConfig{Policy: "sequential", Size: 6, Clusters: 10},
		Time:      TimeConfig{EpochRaw: DefaultEpoch.Format(time.RFC3339), Epoch: DefaultEpoch},
		Objective: ObjectiveConfig{Reference: "food_ready"},
		Solver:    SolverConfig{Provider: "highs", TimeLimit: 60 * time.Second, Workers: 1},
		Log:       LogConfig{Level: "info", Format: "json"},
		HTTP:      HTTPConfig{Addr: ":8080", RateLimit: 1, RateBurst: 2, MaxBodyMB: 16},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("travel.speed_mps", d.Travel.SpeedMPS)
	v.SetDefault("batch.policy", d.Batch.Policy)
	v.SetDefault("batch.size", d.Batch.Size)
	v.SetDefault("batch.clusters", d.Batch.Clusters)
	v.SetDefault("batch.dashers", d.Batch.Dashers)
	v.SetDefault("time.epoch", d.Time.EpochRaw)
	v.SetDefault("objective.reference", d.Objective.Reference)
	v.SetDefault("solver.provider", d.Solver.Provider)
	v.SetDefault("solver.time_limit", d.Solver.TimeLimit)
	v.SetDefault("solver.mip_gap", d.Solver.MIPGap)
	v.SetDefault("solver.workers", d.Solver.Workers)
	v.SetDefault("solver.verbose", d.Solver.Verbose)
	v.SetDefault("artifacts.dir", d.Artifacts.Dir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.rate_limit", d.HTTP.RateLimit)
	v.SetDefault("http.rate_burst", d.HTTP.RateBurst)
	v.SetDefault("http.max_body_mb", d.HTTP.MaxBodyMB)
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
}

// Load reads configuration from defaults, an optional file and DASHROUTE_*
// environment variables, in increasing priority. A .env file in the working
// directory is loaded into the environment first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DASHROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var ErrInvalid = errors.New("invalid config")

// Validate checks value ranges and resolves Time.Epoch from its raw form.
func (c *Config) Validate() error {
	if c.Travel.SpeedMPS <= 0 {
		return fmt.Errorf("%w: travel.speed_mps must be > 0", ErrInvalid)
	}
	switch c.Batch.Policy {
	case "sequential", "clustered":
	default:
		return fmt.Errorf("%w: unknown batch.policy %q", ErrInvalid, c.Batch.Policy)
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("%w: batch.size must be > 0", ErrInvalid)
	}
	if c.Batch.Policy == "clustered" && c.Batch.Clusters <= 0 {
		return fmt.Errorf("%w: batch.clusters must be > 0", ErrInvalid)
	}
	if c.Batch.Dashers < 0 {
		return fmt.Errorf("%w: batch.dashers must be >= 0", ErrInvalid)
	}
	switch c.Objective.Reference {
	case "food_ready", "created_at":
	default:
		return fmt.Errorf("%w: unknown objective.reference %q", ErrInvalid, c.Objective.Reference)
	}
	if c.Solver.TimeLimit <= 0 {
		return fmt.Errorf("%w: solver.time_limit must be > 0", ErrInvalid)
	}
	if c.Solver.MIPGap < 0 {
		return fmt.Errorf("%w: solver.mip_gap must be >= 0", ErrInvalid)
	}
	if c.Solver.Workers < 0 {
		return fmt.Errorf("%w: solver.workers must be >= 0", ErrInvalid)
	}
	epoch, err := time.Parse(time.RFC3339, c.Time.EpochRaw)
	if err != nil {
		epoch, err = time.Parse(time.DateTime, c.Time.EpochRaw)
		if err != nil {
			return fmt.Errorf("%w: time.epoch %q: %v", ErrInvalid, c.Time.EpochRaw, err)
		}
	}
	c.Time.Epoch = epoch.UTC()
	return nil
}

// DashersFor returns how many dashers a batch of n orders gets.
func (c Config) DashersFor(n int) int {
	if c.Batch.Dashers <= 0 {
		return n
	}
	return c.Batch.Dashers
}
