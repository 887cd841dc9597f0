// Package config loads acuity settings from a YAML file, .env and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vthunder/acuity/internal/capture"
	"github.com/vthunder/acuity/internal/escalation"
)

// Duration is a time.Duration written as "1s", "3m" in YAML
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// D returns the value as a time.Duration
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

type CaptureConfig struct {
	Command      []string `yaml:"command"`
	Timeout      Duration `yaml:"timeout"`
	ProcessHints int      `yaml:"process_hints"` // 0 disables
}

type ClassifierConfig struct {
	URL     string   `yaml:"url"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

type ScheduleConfig struct {
	FocusPeriod   Duration `yaml:"focus_period"`
	ObservePeriod Duration `yaml:"observe_period"`
	BatchSize     int      `yaml:"batch_size"`
}

type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	Path    string `yaml:"path"`
}

type RemoteConfig struct {
	URL          string   `yaml:"url"` // empty disables
	Token        string   `yaml:"token"`
	QueueSize    int      `yaml:"queue_size"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

type HTTPConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"` // bearer token for /api routes, empty allows all
}

type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// Config is the full runtime configuration
type Config struct {
	StatePath  string                `yaml:"state_path"`
	Capture    CaptureConfig         `yaml:"capture"`
	Classifier ClassifierConfig      `yaml:"classifier"`
	Schedule   ScheduleConfig        `yaml:"schedule"`
	Escalation escalation.Thresholds `yaml:"escalation"`
	Store      StoreConfig           `yaml:"store"`
	Remote     RemoteConfig          `yaml:"remote"`
	HTTP       HTTPConfig            `yaml:"http"`
	Discord    DiscordConfig         `yaml:"discord"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		StatePath: "state",
		Capture: CaptureConfig{
			Command:      capture.DefaultCommand(),
			Timeout:      Duration(10 * time.Second),
			ProcessHints: 5,
		},
		Classifier: ClassifierConfig{
			URL:     "http://localhost:11434",
			Model:   "llava",
			Timeout: Duration(30 * time.Second),
		},
		Schedule: ScheduleConfig{
			FocusPeriod:   Duration(time.Second),
			ObservePeriod: Duration(3 * time.Minute),
			BatchSize:     1,
		},
		Escalation: escalation.DefaultThresholds(),
		Store: StoreConfig{
			Enabled: true,
			Driver:  "sqlite",
		},
		Remote: RemoteConfig{
			QueueSize:    256,
			WriteTimeout: Duration(10 * time.Second),
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8090",
		},
	}
}

// LoadEnv loads .env files into the process environment. Missing files are
// not an error.
func LoadEnv(files ...string) bool {
	if err := godotenv.Load(files...); err != nil {
		return false
	}
	return true
}

// Load reads path over the defaults (a missing file is fine when path is
// empty), applies ACUITY_* overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.StatePath, "acuity.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.StatePath = envStr("ACUITY_STATE_PATH", c.StatePath)
	if v := os.Getenv("ACUITY_CAPTURE_COMMAND"); v != "" {
		c.Capture.Command = strings.Fields(v)
	}
	c.Capture.Timeout = envDuration("ACUITY_CAPTURE_TIMEOUT", c.Capture.Timeout)
	c.Capture.ProcessHints = envInt("ACUITY_PROCESS_HINTS", c.Capture.ProcessHints)

	c.Classifier.URL = envStr("OLLAMA_URL", c.Classifier.URL)
	c.Classifier.Model = envStr("ACUITY_MODEL", c.Classifier.Model)
	c.Classifier.Timeout = envDuration("ACUITY_CLASSIFY_TIMEOUT", c.Classifier.Timeout)

	c.Schedule.FocusPeriod = envDuration("ACUITY_FOCUS_PERIOD", c.Schedule.FocusPeriod)
	c.Schedule.ObservePeriod = envDuration("ACUITY_OBSERVE_PERIOD", c.Schedule.ObservePeriod)
	c.Schedule.BatchSize = envInt("ACUITY_BATCH_SIZE", c.Schedule.BatchSize)

	c.Escalation.Warning = envInt("ACUITY_WARNING_AFTER", c.Escalation.Warning)
	c.Escalation.Critical = envInt("ACUITY_CRITICAL_AFTER", c.Escalation.Critical)

	c.Store.Enabled = envBool("ACUITY_STORE_ENABLED", c.Store.Enabled)
	c.Store.Driver = envStr("ACUITY_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = envStr("ACUITY_STORE_PATH", c.Store.Path)

	c.Remote.URL = envStr("ACUITY_REMOTE_URL", c.Remote.URL)
	c.Remote.Token = envStr("ACUITY_REMOTE_TOKEN", c.Remote.Token)

	c.HTTP.Addr = envStr("ACUITY_HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.Token = envStr("ACUITY_API_TOKEN", c.HTTP.Token)

	c.Discord.Token = envStr("DISCORD_TOKEN", c.Discord.Token)
	c.Discord.ChannelID = envStr("DISCORD_CHANNEL_ID", c.Discord.ChannelID)
}

// Validate checks the settings are usable
func (c *Config) Validate() error {
	var errs []error
	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path must not be empty"))
	}
	if len(c.Capture.Command) == 0 {
		errs = append(errs, errors.New("capture.command must not be empty"))
	}
	if c.Capture.Timeout <= 0 {
		errs = append(errs, errors.New("capture.timeout must be positive"))
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, errors.New("classifier.timeout must be positive"))
	}
	if c.Schedule.FocusPeriod <= 0 || c.Schedule.ObservePeriod <= 0 {
		errs = append(errs, errors.New("schedule periods must be positive"))
	}
	if c.Schedule.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("schedule.batch_size must be at least 1, got %d", c.Schedule.BatchSize))
	}
	if err := c.Escalation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Store.Enabled && c.Store.Driver != "sqlite" && c.Store.Driver != "sqlite3" {
		errs = append(errs, fmt.Errorf("store.driver must be sqlite or sqlite3, got %q", c.Store.Driver))
	}
	if (c.Discord.Token == "") != (c.Discord.ChannelID == "") {
		errs = append(errs, errors.New("discord.token and discord.channel_id must be set together"))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback Duration) Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return Duration(d)
		}
	}
	return fallback
}
