package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.Audio.GetCaptureChunkDuration() != 3*time.Second {
		t.Errorf("Expected 3s capture chunks, got %v", cfg.Audio.GetCaptureChunkDuration())
	}
	if cfg.Audio.GetStreamChunkDuration() != 5*time.Second {
		t.Errorf("Expected 5s stream chunks, got %v", cfg.Audio.GetStreamChunkDuration())
	}
	if cfg.Decoding.ConditionOnPreviousText {
		t.Error("Conditioning on previous text must default to off")
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Logs must default to stderr, got %s", cfg.Logging.Output)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{"valid configuration", func(c *Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Model.Backend = "onnx" }, "backend must be one of"},
		{"unknown device", func(c *Config) { c.Model.Device = "tpu" }, "device must be one of"},
		{"device is case insensitive", func(c *Config) { c.Model.Device = "CUDA" }, ""},
		{"remote without endpoint", func(c *Config) { c.Model.Endpoint = "" }, "endpoint cannot be empty"},
		{"whispercpp without model path", func(c *Config) { c.Model.Backend = "whispercpp" }, "path cannot be empty"},
		{"beam size zero", func(c *Config) { c.Decoding.BeamSize = 0 }, "beam_size must be at least 1"},
		{"temperature too high", func(c *Config) { c.Decoding.Temperature = 1.5 }, "temperature must be between"},
		{"queue capacity zero", func(c *Config) { c.Audio.QueueCapacity = 0 }, "queue_capacity must be at least 1"},
		{"negative device id", func(c *Config) { id := -1; c.Audio.DeviceID = &id }, "device_id cannot be negative"},
		{"zero stream chunk", func(c *Config) { c.Audio.StreamChunkSeconds = 0 }, "stream_chunk_seconds must be positive"},
		{"positive log prob floor", func(c *Config) { c.PostProcess.MinAvgLogProb = 0.5 }, "min_avg_logprob"},
		{"vad window too small", func(c *Config) { c.VAD.WindowSize = 128 }, "window_size must be between"},
		{"unknown input", func(c *Config) { c.Input.Source = "tcp" }, "source must be"},
		{"udp without address", func(c *Config) { c.Input.Source = SourceUDP; c.Input.UDPAddress = "" }, "udp_address cannot be empty"},
		{"http port out of range", func(c *Config) { c.HTTP.Enabled = true; c.HTTP.Port = 70000 }, "http port must be between"},
		{"http disabled ignores port", func(c *Config) { c.HTTP.Port = 0 }, ""},
		{"invalid log level", func(c *Config) { c.Logging.Level = "trace" }, "level must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error containing '%s' but got none", tt.errorMsg)
			} else if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name       string
		configYAML string
		errorMsg   string
		check      func(t *testing.T, c *Config)
	}{
		{
			name: "valid config file",
			configYAML: `
model:
  backend: remote
  size: small
  device: auto
  compute_type: float16
  endpoint: "http://localhost:8000/v1"
decoding:
  language: pt
  beam_size: 3
  initial_prompt: "Reunião de equipe."
audio:
  device_id: 4
  capture_chunk_seconds: 2.5
postprocess:
  merge_gap_seconds: 0.5
  hallucinations: ["inscreva-se"]
logging:
  level: debug
  format: json
`,
			check: func(t *testing.T, c *Config) {
				if c.Model.Size != "small" || c.Model.Device != "auto" {
					t.Errorf("Unexpected model section %+v", c.Model)
				}
				if c.Audio.DeviceID == nil || *c.Audio.DeviceID != 4 || !c.Audio.CaptureMode() {
					t.Errorf("Expected capture on device 4, got %v", c.Audio.DeviceID)
				}
				if c.Audio.GetCaptureChunkDuration() != 2500*time.Millisecond {
					t.Errorf("Expected 2.5s capture chunks, got %v", c.Audio.GetCaptureChunkDuration())
				}
				if c.Audio.StreamChunkSeconds != 5.0 {
					t.Errorf("Expected untouched default stream chunk, got %v", c.Audio.StreamChunkSeconds)
				}
				if c.PostProcess.GetMergeGap() != 500*time.Millisecond {
					t.Errorf("Expected 0.5s merge gap, got %v", c.PostProcess.GetMergeGap())
				}
				if len(c.PostProcess.Hallucinations) != 1 {
					t.Errorf("Expected one extra hallucination phrase, got %v", c.PostProcess.Hallucinations)
				}
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
decoding:
  beam_size: invalid_number
`,
			errorMsg: "failed to parse",
		},
		{
			name: "invalid values",
			configYAML: `
model:
  device: tpu
`,
			errorMsg: "device must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Loader{Lookup: noEnv, EnvFile: filepath.Join(tempDir, "missing.env")}.Load(configPath)

			if tt.errorMsg != "" {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			tt.check(t, config)
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Loader{Lookup: noEnv}.Load("nonexistent.yaml")
	if err == nil {
		t.Fatal("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	env := mapEnv(map[string]string{
		"CORTEX_MODEL":             "large-v3",
		"CORTEX_DEVICE":            "cuda",
		"CORTEX_DEVICE_ID":         "7",
		"CORTEX_VAD_FILTER":        "true",
		"CORTEX_BEAM_SIZE":         " 2 ",
		"CORTEX_MERGE_GAP_SECONDS": "1.5",
		"CORTEX_LOG_LEVEL":         "warn",
	})

	cfg, err := Loader{Lookup: env, EnvFile: filepath.Join(t.TempDir(), "none.env")}.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.Size != "large-v3" || cfg.Model.Device != "cuda" {
		t.Errorf("Unexpected model overrides %+v", cfg.Model)
	}
	if cfg.Audio.DeviceID == nil || *cfg.Audio.DeviceID != 7 {
		t.Errorf("Expected device id 7, got %v", cfg.Audio.DeviceID)
	}
	if !cfg.Decoding.VADFilter || cfg.Decoding.BeamSize != 2 {
		t.Errorf("Unexpected decoding overrides %+v", cfg.Decoding)
	}
	if cfg.PostProcess.MergeGapSeconds != 1.5 {
		t.Errorf("Expected merge gap 1.5, got %v", cfg.PostProcess.MergeGapSeconds)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected warn level, got %s", cfg.Logging.Level)
	}
}

func TestEnvOverrideInvalidValue(t *testing.T) {
	env := mapEnv(map[string]string{"CORTEX_BEAM_SIZE": "five"})
	_, err := Loader{Lookup: env, EnvFile: filepath.Join(t.TempDir(), "none.env")}.Load("")
	if err == nil || !strings.Contains(err.Error(), "CORTEX_BEAM_SIZE") {
		t.Errorf("Expected error naming the variable, got %v", err)
	}
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "CORTEX_API_KEY=from-dotenv\nCORTEX_LANGUAGE=es\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	env := mapEnv(map[string]string{"CORTEX_LANGUAGE": "pt"})
	cfg, err := Loader{Lookup: env, EnvFile: envFile}.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.APIKey != "from-dotenv" {
		t.Errorf("Expected API key from .env, got %q", cfg.Model.APIKey)
	}
	if cfg.Decoding.Language != "pt" {
		t.Errorf("Expected the environment to win over .env, got %q", cfg.Decoding.Language)
	}
}

func TestDurationHelpers(t *testing.T) {
	audio := AudioConfig{
		CaptureChunkSeconds: 1.5,
		StreamChunkSeconds:  10.0,
		MinFlushSeconds:     0.25,
		PopTimeoutMs:        250,
	}

	if audio.GetCaptureChunkDuration() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5 seconds, got %v", audio.GetCaptureChunkDuration())
	}

	if audio.GetStreamChunkDuration() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", audio.GetStreamChunkDuration())
	}

	if audio.GetMinFlushDuration() != 250*time.Millisecond {
		t.Errorf("Expected 0.25 seconds, got %v", audio.GetMinFlushDuration())
	}

	if audio.GetPopTimeout() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", audio.GetPopTimeout())
	}

	decoding := DecodingConfig{VADMinSilenceMs: 700}
	if decoding.GetVADMinSilence() != 700*time.Millisecond {
		t.Errorf("Expected 700ms, got %v", decoding.GetVADMinSilence())
	}

	vad := VADConfig{MinSpeechDuration: 0.5}
	if vad.GetMinSpeechDuration() != 500*time.Millisecond {
		t.Errorf("Expected 0.5 seconds, got %v", vad.GetMinSpeechDuration())
	}

	model := ModelConfig{Timeout: 30}
	if model.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", model.GetTimeoutDuration())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid text to file",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "/var/log/cortex.log"},
			valid:  true,
		},
		{
			name:   "invalid log level",
			config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
