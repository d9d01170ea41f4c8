package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"failsafe-go/errcode"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "failsafe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeFile(t, "profile: grp7\n")
	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/failsafe.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_NoneFound(t *testing.T) {
	t.Chdir(t.TempDir())
	got, err := FindConfig("")
	if err != nil || got != "" {
		t.Fatalf("FindConfig(\"\") = %q, %v", got, err)
	}
}

func TestProfilesEmbedded(t *testing.T) {
	got := Profiles()
	if len(got) != 2 || got[0] != "failsafe" || got[1] != "grp7" {
		t.Fatalf("Profiles() = %v", got)
	}
	for _, name := range got {
		cfg, err := Load("", name)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("profile %s invalid: %v", name, err)
		}
	}
}

func TestLoadDefaultProfile(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Profile != "failsafe" {
		t.Fatalf("profile = %q", cfg.Profile)
	}
	if cfg.Thresholds.Warning != 800 || cfg.Thresholds.Critical != 1200 {
		t.Fatalf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.HAL.Fan.Max != 4095 {
		t.Fatalf("fan max = %d", cfg.HAL.Fan.Max)
	}
	if !strings.HasPrefix(cfg.MQTT.Broker, "mqtts://") {
		t.Fatalf("broker = %q", cfg.MQTT.Broker)
	}
	if cfg.Periods.Gas != 3*time.Second || cfg.Periods.Engine != time.Second {
		t.Fatalf("periods = %+v", cfg.Periods)
	}
	if cfg.Topics.Gas != "failsafe/mq2" || cfg.Topics.Temperature != "failsafe/dht11/t" || cfg.Topics.Humidity != "failsafe/dht11/h" {
		t.Fatalf("topics = %+v", cfg.Topics)
	}
}

func TestGrp7Profile(t *testing.T) {
	cfg, err := Load("", "grp7")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Periods.Gas != 2*time.Second || cfg.Periods.Climate != 2*time.Second {
		t.Fatalf("periods = %+v", cfg.Periods)
	}
	if cfg.Thresholds.Warning != 1050 || cfg.Thresholds.Critical != 2047 || cfg.HAL.Fan.Max != 255 || !cfg.HAL.Gas.Raw {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadFileOverlaysProfile(t *testing.T) {
	t.Setenv("FAILSAFE_MQTT_PASSWORD", "s3cret")
	path := writeFile(t, `
profile: grp7
thresholds:
  warning: 1000
mqtt:
  password: ${FAILSAFE_MQTT_PASSWORD}
hal:
  fan:
    pin: GPIO13
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Profile != "grp7" {
		t.Fatalf("profile = %q", cfg.Profile)
	}
	// Overridden keys change, siblings keep the profile's values.
	if cfg.Thresholds.Warning != 1000 || cfg.Thresholds.Critical != 2047 {
		t.Fatalf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.HAL.Fan.Pin != "GPIO13" || cfg.HAL.Fan.Max != 255 {
		t.Fatalf("fan = %+v", cfg.HAL.Fan)
	}
	if cfg.MQTT.Password != "s3cret" {
		t.Fatalf("password = %q", cfg.MQTT.Password)
	}
	if !strings.HasPrefix(cfg.MQTT.Broker, "mqtt://") {
		t.Fatalf("broker = %q", cfg.MQTT.Broker)
	}
}

func TestLoadProfileArgumentWins(t *testing.T) {
	path := writeFile(t, "profile: grp7\n")
	cfg, err := Load(path, "failsafe")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Profile != "failsafe" || cfg.Thresholds.Warning != 800 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadUnknownProfile(t *testing.T) {
	_, err := Load("", "pico")
	if !errors.Is(err, errcode.InvalidConfig) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeFile(t, "thresholds: [1, 2\n")
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"inverted thresholds": func(c *Config) { c.Thresholds.Warning, c.Thresholds.Critical = 1200, 800 },
		"equal thresholds":    func(c *Config) { c.Thresholds.Warning = c.Thresholds.Critical },
		"zero engine period":  func(c *Config) { c.Periods.Engine = 0 },
		"negative jitter":     func(c *Config) { c.Jitter = -time.Second },
		"missing gas topic":   func(c *Config) { c.Topics.Gas = "" },
		"missing humidity":    func(c *Config) { c.Topics.Humidity = "" },
		"bad broker scheme":   func(c *Config) { c.MQTT.Broker = "http://example.com" },
		"zero fan ceiling":    func(c *Config) { c.HAL.Fan.Max = 0 },
		"bad log level":       func(c *Config) { c.LogLevel = "loud" },
		"bad log format":      func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load("", "failsafe")
			if err != nil {
				t.Fatal(err)
			}
			mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, errcode.InvalidConfig) {
				t.Fatalf("Validate() = %v, want invalid_config", err)
			}
		})
	}
}

func TestValidateDisabledProducerNeedsNoTopic(t *testing.T) {
	cfg, err := Load("", "failsafe")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Producers.Climate = false
	cfg.Topics.Temperature = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		" debug ": slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	log, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.Warn("shown", "component", "test")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("output = %q", out)
	}
}
