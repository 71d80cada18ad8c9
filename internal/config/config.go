// Package config loads the tempo-deck agent configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the agent settings. Durations accept Go duration strings
// ("30s", "1m").
type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	HelperURL      string        `yaml:"helper_url"`
	MinRefresh     time.Duration `yaml:"min_refresh"`
	RenderInterval time.Duration `yaml:"render_interval"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	HTTPAddr       string        `yaml:"http_addr"` // empty = status server disabled
	LogLevel       string        `yaml:"log_level"`
	Button         ButtonConfig  `yaml:"button"`
}

// ButtonConfig wires an optional GPIO push button to a manual refresh.
type ButtonConfig struct {
	Pin      int           `yaml:"pin"` // 0 = disabled
	Chip     string        `yaml:"chip"`
	Surface  string        `yaml:"surface"` // surface acknowledged on press; empty = none
	Sample   time.Duration `yaml:"sample"`
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Broker:         "tcp://127.0.0.1:1883",
		ClientID:       "tempo-deck",
		TopicPrefix:    "tempo/deck",
		HelperURL:      "http://127.0.0.1:9123",
		MinRefresh:     30 * time.Second,
		RenderInterval: 5 * time.Second,
		PollInterval:   60 * time.Second,
		FetchTimeout:   8 * time.Second,
		HTTPAddr:       ":8080",
		LogLevel:       "info",
		Button: ButtonConfig{
			Chip:     "gpiochip0",
			Sample:   20 * time.Millisecond,
			Debounce: 50 * time.Millisecond,
		},
	}
}

// LoadFile loads YAML config over the defaults. An empty path returns
// the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate performs sanity checks on the configuration.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Broker) == "" {
		errs = append(errs, errors.New("broker is required"))
	}
	if strings.TrimSpace(c.HelperURL) == "" {
		errs = append(errs, errors.New("helper_url is required"))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"min_refresh", c.MinRefresh},
		{"render_interval", c.RenderInterval},
		{"poll_interval", c.PollInterval},
		{"fetch_timeout", c.FetchTimeout},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", d.name))
		}
	}
	if c.Button.Pin < 0 {
		errs = append(errs, errors.New("button.pin must be >= 0"))
	}
	if c.Button.Pin > 0 && c.Button.Sample <= 0 {
		errs = append(errs, errors.New("button.sample must be > 0"))
	}
	if c.Button.Debounce < 0 {
		errs = append(errs, errors.New("button.debounce must be >= 0"))
	}
	return errors.Join(errs...)
}
