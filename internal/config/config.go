package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"
)

// Config represents the engine configuration
type Config struct {
	LogLevel         string `koanf:"log_level"`
	LogFormat        string `koanf:"log_format"`
	DataDir          string `koanf:"data_dir"`
	Timezone         string `koanf:"timezone"`
	AlgorithmVersion int    `koanf:"algorithm_version"`
	BaselineDays     int    `koanf:"baseline_days"`

	Strava       StravaConfig       `koanf:"strava"`
	Intervals    IntervalsConfig    `koanf:"intervals"`
	Athlete      AthleteConfig      `koanf:"athlete"`
	Unifier      UnifierConfig      `koanf:"unifier"`
	TrainingLoad TrainingLoadConfig `koanf:"training_load"`
	Recovery     RecoveryWeights    `koanf:"recovery"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Cache        CacheConfig        `koanf:"cache"`
	Publish      PublishConfig      `koanf:"publish"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

// StravaConfig holds Strava API credentials
type StravaConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURL  string `koanf:"redirect_url"`
}

// Enabled reports whether Strava credentials are configured
func (s StravaConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// IntervalsConfig holds Intervals.icu API settings. Intervals.icu is the
// authoritative workout history used by the training-load fallback.
type IntervalsConfig struct {
	BaseURL    string        `koanf:"base_url"`
	AthleteID  string        `koanf:"athlete_id"`
	APIKey     string        `koanf:"api_key"`
	Timeout    time.Duration `koanf:"timeout"`
	RetryCount int           `koanf:"retry_count"`
}

// Enabled reports whether an Intervals.icu key is configured
func (i IntervalsConfig) Enabled() bool {
	return i.APIKey != "" && i.AthleteID != ""
}

// AthleteConfig holds athlete-specific settings
type AthleteConfig struct {
	RestingHR   float64       `koanf:"resting_hr"`
	MaxHR       float64       `koanf:"max_hr"`
	ThresholdHR float64       `koanf:"threshold_hr"`
	FTP         float64       `koanf:"ftp"`
	BodyMassKg  float64       `koanf:"body_mass_kg"`
	SleepNeed   time.Duration `koanf:"sleep_need"`
}

// UnifierConfig tunes activity deduplication and TSS estimation
type UnifierConfig struct {
	StartTolerance        time.Duration `koanf:"start_tolerance"`
	DurationTolerance     float64       `koanf:"duration_tolerance"`
	EstimatedTSSPerMinute float64       `koanf:"estimated_tss_per_minute"`
	SyncDaysBack          int           `koanf:"sync_days_back"`
}

// TrainingLoadConfig holds the window and degenerate-data thresholds
type TrainingLoadConfig struct {
	WindowDays int     `koanf:"window_days"`
	MinCTL     float64 `koanf:"min_ctl"`
	MinATL     float64 `koanf:"min_atl"`
	MinSpread  float64 `koanf:"min_spread"`
}

// RecoveryWeights are the calibrated Recovery sub-score weights
type RecoveryWeights struct {
	HRV         float64 `koanf:"hrv"`
	RestingHR   float64 `koanf:"resting_hr"`
	Sleep       float64 `koanf:"sleep"`
	Form        float64 `koanf:"form"`
	Respiratory float64 `koanf:"respiratory"`
}

// Sum returns the total of all weights
func (w RecoveryWeights) Sum() float64 {
	return w.HRV + w.RestingHR + w.Sleep + w.Form + w.Respiratory
}

// OrchestratorConfig holds per-type deadlines and dependency wait bounds
type OrchestratorConfig struct {
	SleepTimeout             time.Duration `koanf:"sleep_timeout"`
	RecoveryTimeout          time.Duration `koanf:"recovery_timeout"`
	StrainTimeout            time.Duration `koanf:"strain_timeout"`
	DependencyMaxWait        time.Duration `koanf:"dependency_max_wait"`
	DependencyInitialBackoff time.Duration `koanf:"dependency_initial_backoff"`
	DependencyMaxBackoff     time.Duration `koanf:"dependency_max_backoff"`
}

// CacheConfig holds Tier 1 cache settings
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// PublishConfig holds consumer push settings. Empty addresses disable a publisher.
type PublishConfig struct {
	RedisAddr       string        `koanf:"redis_addr"`
	RedisPassword   string        `koanf:"redis_password"`
	RedisDB         int           `koanf:"redis_db"`
	RedisChannel    string        `koanf:"redis_channel"`
	RedisLatestTTL  time.Duration `koanf:"redis_latest_ttl"`
	MQTTBroker      string        `koanf:"mqtt_broker"`
	MQTTClientID    string        `koanf:"mqtt_client_id"`
	MQTTUsername    string        `koanf:"mqtt_username"`
	MQTTPassword    string        `koanf:"mqtt_password"`
	MQTTTopicPrefix string        `koanf:"mqtt_topic_prefix"`
}

// TelemetryConfig holds metrics and tracing settings
type TelemetryConfig struct {
	ServiceName      string `koanf:"service_name"`
	MetricsNamespace string `koanf:"metrics_namespace"`
	OTLPEndpoint     string `koanf:"otlp_endpoint"`
}

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Default returns the default configuration
func Default() Config {
	return Config{
		LogLevel:         "info",
		LogFormat:        "json",
		DataDir:          defaultDataDir(),
		Timezone:         "Local",
		AlgorithmVersion: 1,
		BaselineDays:     7,
		Strava: StravaConfig{
			RedirectURL: "http://localhost:8089/callback",
		},
		Intervals: IntervalsConfig{
			BaseURL:    "https://intervals.icu",
			Timeout:    10 * time.Second,
			RetryCount: 2,
		},
		Athlete: AthleteConfig{
			RestingHR:   50,
			MaxHR:       185,
			ThresholdHR: 165,
			FTP:         0,
			BodyMassKg:  70,
			SleepNeed:   8 * time.Hour,
		},
		Unifier: UnifierConfig{
			StartTolerance:        120 * time.Second,
			DurationTolerance:     0.05,
			EstimatedTSSPerMinute: 0.65,
			SyncDaysBack:          90,
		},
		TrainingLoad: TrainingLoadConfig{
			WindowDays: 90,
			MinCTL:     10,
			MinATL:     1,
			MinSpread:  0.5,
		},
		Recovery: RecoveryWeights{
			HRV:         0.35,
			RestingHR:   0.20,
			Sleep:       0.25,
			Form:        0.10,
			Respiratory: 0.10,
		},
		Orchestrator: OrchestratorConfig{
			SleepTimeout:             8 * time.Second,
			RecoveryTimeout:          15 * time.Second,
			StrainTimeout:            10 * time.Second,
			DependencyMaxWait:        6 * time.Second,
			DependencyInitialBackoff: 100 * time.Millisecond,
			DependencyMaxBackoff:     time.Second,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Publish: PublishConfig{
			RedisChannel:    "readiness:scores",
			RedisLatestTTL:  24 * time.Hour,
			MQTTClientID:    "readiness-engine",
			MQTTTopicPrefix: "readiness/scores",
		},
		Telemetry: TelemetryConfig{
			ServiceName:      "readiness",
			MetricsNamespace: "readiness",
		},
	}
}

// Validate checks if the config is usable
func (c *Config) Validate() error {
	if c.AlgorithmVersion < 1 {
		return fmt.Errorf("%w: algorithm_version must be >= 1, got %d", ErrInvalidConfig, c.AlgorithmVersion)
	}
	if c.BaselineDays < 1 {
		return fmt.Errorf("%w: baseline_days must be >= 1, got %d", ErrInvalidConfig, c.BaselineDays)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}

	// Validate threshold_hr < max_hr when both are set
	if c.Athlete.ThresholdHR > 0 && c.Athlete.MaxHR > 0 && c.Athlete.ThresholdHR >= c.Athlete.MaxHR {
		return fmt.Errorf("%w: athlete.threshold_hr (%v) must be less than athlete.max_hr (%v)", ErrInvalidConfig, c.Athlete.ThresholdHR, c.Athlete.MaxHR)
	}
	if c.Athlete.RestingHR >= c.Athlete.MaxHR {
		return fmt.Errorf("%w: athlete.resting_hr (%v) must be less than athlete.max_hr (%v)", ErrInvalidConfig, c.Athlete.RestingHR, c.Athlete.MaxHR)
	}

	if c.Unifier.DurationTolerance < 0 || c.Unifier.DurationTolerance >= 1 {
		return fmt.Errorf("%w: unifier.duration_tolerance must be in [0, 1), got %v", ErrInvalidConfig, c.Unifier.DurationTolerance)
	}
	if c.Unifier.EstimatedTSSPerMinute <= 0 {
		return fmt.Errorf("%w: unifier.estimated_tss_per_minute must be positive", ErrInvalidConfig)
	}
	if c.TrainingLoad.WindowDays < 1 {
		return fmt.Errorf("%w: training_load.window_days must be >= 1", ErrInvalidConfig)
	}

	if sum := c.Recovery.Sum(); math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: recovery weights must sum to 1, got %.3f", ErrInvalidConfig, sum)
	}

	o := c.Orchestrator
	if o.SleepTimeout <= 0 || o.RecoveryTimeout <= 0 || o.StrainTimeout <= 0 {
		return fmt.Errorf("%w: orchestrator timeouts must be positive", ErrInvalidConfig)
	}
	if o.DependencyMaxWait >= o.RecoveryTimeout {
		return fmt.Errorf("%w: orchestrator.dependency_max_wait (%v) must be shorter than recovery_timeout (%v)", ErrInvalidConfig, o.DependencyMaxWait, o.RecoveryTimeout)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalidConfig)
	}

	return nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DBPath returns the path to the SQLite database file
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "readiness.db")
}

func defaultDataDir() string {
	return filepath.Join(".", ".readiness")
}
