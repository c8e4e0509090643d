package analytics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ReliabilityConfig struct {
	WindowDays      int     `yaml:"windowDays"`
	MinDataPoints   int     `yaml:"minDataPoints"`
	MaxTransitions  int     `yaml:"maxTransitions"`
	MaxReports      int     `yaml:"maxReports"`
	UptimeWeight    float64 `yaml:"uptimeWeight"`
	StabilityWeight float64 `yaml:"stabilityWeight"`
	ReportWeight    float64 `yaml:"reportWeight"`
}

type FlappingConfig struct {
	WindowHours    int `yaml:"windowHours"`
	MinTransitions int `yaml:"minTransitions"`
}

type DowntimeConfig struct {
	WindowHours int `yaml:"windowHours"`
	MinHours    int `yaml:"minHours"`
	MediumHours int `yaml:"mediumHours"`
	HighHours   int `yaml:"highHours"`
}

type SpikeConfig struct {
	RecentDays   int     `yaml:"recentDays"`
	BaselineDays int     `yaml:"baselineDays"`
	MinReports   int     `yaml:"minReports"`
	MinFactor    float64 `yaml:"minFactor"`
	MediumFactor float64 `yaml:"mediumFactor"`
	HighFactor   float64 `yaml:"highFactor"`
}

type PatternConfig struct {
	WindowDays    int `yaml:"windowDays"`
	MinHistory    int `yaml:"minHistory"`
	MinDaySamples int `yaml:"minDaySamples"`
}

// Config carries the tunable windows and thresholds for the scorer and the
// four detectors. All values have working defaults; the YAML file only needs
// the ones being overridden.
type Config struct {
	Reliability ReliabilityConfig `yaml:"reliability"`
	Flapping    FlappingConfig    `yaml:"flapping"`
	Downtime    DowntimeConfig    `yaml:"downtime"`
	Spike       SpikeConfig       `yaml:"spike"`
	Pattern     PatternConfig     `yaml:"pattern"`
}

func DefaultConfig() Config {
	return Config{
		Reliability: ReliabilityConfig{
			WindowDays:      30,
			MinDataPoints:   10,
			MaxTransitions:  20,
			MaxReports:      10,
			UptimeWeight:    0.6,
			StabilityWeight: 0.2,
			ReportWeight:    0.2,
		},
		Flapping: FlappingConfig{
			WindowHours:    24,
			MinTransitions: 5,
		},
		Downtime: DowntimeConfig{
			WindowHours: 72,
			MinHours:    24,
			MediumHours: 48,
			HighHours:   72,
		},
		Spike: SpikeConfig{
			RecentDays:   7,
			BaselineDays: 23,
			MinReports:   3,
			MinFactor:    2.0,
			MediumFactor: 3.0,
			HighFactor:   5.0,
		},
		Pattern: PatternConfig{
			WindowDays:    14,
			MinHistory:    10,
			MinDaySamples: 10,
		},
	}
}

// LoadConfig reads overrides from a YAML file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	positives := map[string]int{
		"reliability.windowDays":     c.Reliability.WindowDays,
		"reliability.maxTransitions": c.Reliability.MaxTransitions,
		"reliability.maxReports":     c.Reliability.MaxReports,
		"flapping.windowHours":       c.Flapping.WindowHours,
		"flapping.minTransitions":    c.Flapping.MinTransitions,
		"downtime.windowHours":       c.Downtime.WindowHours,
		"downtime.minHours":          c.Downtime.MinHours,
		"spike.recentDays":           c.Spike.RecentDays,
		"spike.baselineDays":         c.Spike.BaselineDays,
		"spike.minReports":           c.Spike.MinReports,
		"pattern.windowDays":         c.Pattern.WindowDays,
		"pattern.minHistory":         c.Pattern.MinHistory,
	}
	for name, v := range positives {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Downtime.MinHours > c.Downtime.MediumHours || c.Downtime.MediumHours > c.Downtime.HighHours {
		return fmt.Errorf("downtime severity hours must be ordered min <= medium <= high")
	}
	if c.Spike.MinFactor <= 1 {
		return fmt.Errorf("spike.minFactor must exceed 1")
	}
	weights := c.Reliability.UptimeWeight + c.Reliability.StabilityWeight + c.Reliability.ReportWeight
	if weights <= 0 {
		return fmt.Errorf("reliability weights must sum to a positive value")
	}
	return nil
}
