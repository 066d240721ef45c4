package config

import (
	"bytes"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(DefaultEngineConfig(), cfg.Engine); diff != "" {
		t.Errorf("Engine defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("expected default log format text, got %q", cfg.LogFormat)
	}
}

func TestWriteDefaultProducesParseableYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDefault(&buf); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	var decoded CLIConfig
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if diff := cmp.Diff(DefaultEngineConfig(), decoded.Engine); diff != "" {
		t.Errorf("round-tripped engine config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesFromConfigFile(t *testing.T) {
	path := t.TempDir() + "/linspect.yaml"
	if err := os.WriteFile(path, []byte("lin_baudrate: 9600\nlog_format: json\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.LinBaudrate != 9600 {
		t.Errorf("expected overridden lin_baudrate=9600, got %d", cfg.Engine.LinBaudrate)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("expected overridden log_format=json, got %q", cfg.LogFormat)
	}
}
