// Package config loads the device configuration: an embedded board profile
// overlaid with an optional YAML file.
package config

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"failsafe-go/errcode"
	"failsafe-go/services/hal"
	"failsafe-go/services/mqtt"
	"failsafe-go/types"

	"gopkg.in/yaml.v3"
)

// DefaultProfile is used when neither the flag nor the file names one.
const DefaultProfile = "failsafe"

//go:embed profiles/*.yaml
var profiles embed.FS

// ProfileLookup resolves an embedded profile by name. Tests may replace it.
var ProfileLookup = func(name string) ([]byte, bool) {
	b, err := profiles.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, false
	}
	return b, true
}

// Profiles lists the embedded profile names.
func Profiles() []string {
	ents, err := profiles.ReadDir("profiles")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range ents {
		out = append(out, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(out)
	return out
}

// DefaultSearchPaths returns the config file search order after an explicit
// -config path: ./failsafe.yaml, /etc/failsafe/failsafe.yaml.
func DefaultSearchPaths() []string {
	return []string{"failsafe.yaml", "/etc/failsafe/failsafe.yaml"}
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing DefaultSearchPaths entry wins; "" with a nil
// error means no file, and the profile alone applies.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Config holds the whole device configuration.
type Config struct {
	Profile    string           `yaml:"profile"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // text | json
	Thresholds types.Thresholds `yaml:"thresholds"`
	Periods    Periods          `yaml:"periods"`
	// Jitter bounds the random delay before each task's first run.
	Jitter    time.Duration `yaml:"jitter"`
	Producers Producers     `yaml:"producers"`
	Topics    Topics        `yaml:"topics"`
	Link      LinkConfig    `yaml:"link"`
	MQTT      mqtt.Config   `yaml:"mqtt"`
	HAL       hal.Params    `yaml:"hal"`
}

type Periods struct {
	Gas        time.Duration `yaml:"gas"`
	Climate    time.Duration `yaml:"climate"`
	Engine     time.Duration `yaml:"engine"`
	Supervisor time.Duration `yaml:"supervisor"`
	Report     time.Duration `yaml:"report"`
}

type Producers struct {
	Gas     bool `yaml:"gas"`
	Climate bool `yaml:"climate"`
}

type Topics struct {
	Gas         string `yaml:"gas"`
	Temperature string `yaml:"temperature"`
	Humidity    string `yaml:"humidity"`
}

// LinkConfig selects the network link. Static skips interface checks.
type LinkConfig struct {
	Iface   string        `yaml:"iface"`
	Static  bool          `yaml:"static"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load builds the configuration for path ("" = profile only). The profile is
// the first of: the profile argument, the file's profile key, DefaultProfile.
// Environment variables in the file are expanded before parsing.
func Load(path, profile string) (*Config, error) {
	var file []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		file = []byte(os.ExpandEnv(string(data)))
	}

	if profile == "" && file != nil {
		var head struct {
			Profile string `yaml:"profile"`
		}
		if err := yaml.Unmarshal(file, &head); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		profile = head.Profile
	}
	if profile == "" {
		profile = DefaultProfile
	}

	base, ok := ProfileLookup(profile)
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "config load", Msg: fmt.Sprintf("unknown profile %q (have %v)", profile, Profiles())}
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(base, cfg); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", profile, err)
	}
	if file != nil {
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.Profile = profile
	return cfg, nil
}

// Validate reports the first problem that would make the device misbehave.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return invalid(err.Error())
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return invalid(fmt.Sprintf("log_format %q (valid: text, json)", c.LogFormat))
	}

	for _, p := range []struct {
		name string
		d    time.Duration
	}{
		{"gas", c.Periods.Gas},
		{"climate", c.Periods.Climate},
		{"engine", c.Periods.Engine},
		{"supervisor", c.Periods.Supervisor},
		{"report", c.Periods.Report},
	} {
		if p.d <= 0 {
			return invalid(fmt.Sprintf("periods.%s must be positive", p.name))
		}
	}
	if c.Jitter < 0 {
		return invalid("jitter must not be negative")
	}

	if c.Producers.Gas && c.Topics.Gas == "" {
		return invalid("topics.gas is required")
	}
	if c.Producers.Climate && (c.Topics.Temperature == "" || c.Topics.Humidity == "") {
		return invalid("topics.temperature and topics.humidity are required")
	}

	if _, err := mqtt.ParseBroker(c.MQTT.Broker); err != nil {
		return err
	}
	if c.HAL.Fan.Max == 0 {
		return invalid("hal.fan.max must be positive")
	}
	return nil
}

func invalid(msg string) error {
	return &errcode.E{C: errcode.InvalidConfig, Op: "config validate", Msg: msg}
}
