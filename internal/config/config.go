package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Model       ModelConfig       `yaml:"model"`
	Decoding    DecodingConfig    `yaml:"decoding"`
	Audio       AudioConfig       `yaml:"audio"`
	PostProcess PostProcessConfig `yaml:"postprocess"`
	VAD         VADConfig         `yaml:"vad"`
	Input       InputConfig       `yaml:"input"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ModelConfig selects the speech engine and where it runs
type ModelConfig struct {
	Backend     string `yaml:"backend"` // remote, whispercpp or stub
	Size        string `yaml:"size"`
	Path        string `yaml:"path"` // model file for local backends
	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`
	Threads     int    `yaml:"threads"`
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"api_key"`
	Timeout     int    `yaml:"timeout"` // seconds
	MaxRetries  int    `yaml:"max_retries"`
}

// DecodingConfig contains the options passed with every inference call
type DecodingConfig struct {
	Language                  string  `yaml:"language"` // empty or "auto" detects
	BeamSize                  int     `yaml:"beam_size"`
	Temperature               float32 `yaml:"temperature"`
	VADFilter                 bool    `yaml:"vad_filter"`
	VADMinSilenceMs           int     `yaml:"vad_min_silence_ms"`
	ConditionOnPreviousText   bool    `yaml:"condition_on_previous_text"`
	LogProbThreshold          float32 `yaml:"log_prob_threshold"`
	NoSpeechThreshold         float32 `yaml:"no_speech_threshold"`
	CompressionRatioThreshold float32 `yaml:"compression_ratio_threshold"`
	InitialPrompt             string  `yaml:"initial_prompt"`
}

// AudioConfig contains capture and chunking parameters
type AudioConfig struct {
	DeviceID            *int    `yaml:"device_id"` // capture device; nil uses stdin or the default loopback
	Capture             bool    `yaml:"capture"`   // capture even without a device id
	QueueCapacity       int     `yaml:"queue_capacity"`
	CaptureChunkSeconds float64 `yaml:"capture_chunk_seconds"`
	StreamChunkSeconds  float64 `yaml:"stream_chunk_seconds"`
	MinFlushSeconds     float64 `yaml:"min_flush_seconds"`
	PopTimeoutMs        int     `yaml:"pop_timeout_ms"`
	FramesPerBuffer     int     `yaml:"frames_per_buffer"`
	DumpDir             string  `yaml:"dump_dir"`
}

// PostProcessConfig contains transcript filter thresholds
type PostProcessConfig struct {
	MinAvgLogProb   float64  `yaml:"min_avg_logprob"`
	MergeGapSeconds float64  `yaml:"merge_gap_seconds"`
	MaxMergedChars  int      `yaml:"max_merged_chars"`
	Hallucinations  []string `yaml:"hallucinations"` // added to the built-in list
}

// VADConfig contains voice activity detection configuration
type VADConfig struct {
	Threshold         float32 `yaml:"threshold"`
	WindowSize        int     `yaml:"window_size"`         // samples
	MinSpeechDuration float64 `yaml:"min_speech_duration"` // seconds
}

// InputConfig selects the byte stream feeding stream mode
type InputConfig struct {
	Source        string `yaml:"source"` // "stdin" or "udp"
	UDPAddress    string `yaml:"udp_address"`
	UDPBufferSize int    `yaml:"udp_buffer_size"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Input sources
const (
	SourceStdin = "stdin"
	SourceUDP   = "udp"
)

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Backend:     "remote",
			Size:        "base",
			Device:      "cpu",
			ComputeType: "int8",
			Endpoint:    "http://127.0.0.1:8000/v1",
			Timeout:     60,
			MaxRetries:  2,
		},
		Decoding: DecodingConfig{
			BeamSize:                  5,
			VADMinSilenceMs:           500,
			LogProbThreshold:          -1.0,
			NoSpeechThreshold:         0.6,
			CompressionRatioThreshold: 2.4,
		},
		Audio: AudioConfig{
			QueueCapacity:       100,
			CaptureChunkSeconds: 3.0,
			StreamChunkSeconds:  5.0,
			MinFlushSeconds:     0.5,
			PopTimeoutMs:        250,
			FramesPerBuffer:     1024,
		},
		PostProcess: PostProcessConfig{
			MinAvgLogProb:   -1.0,
			MergeGapSeconds: 0.8,
			MaxMergedChars:  480,
		},
		VAD: VADConfig{
			Threshold:         0.3,
			WindowSize:        512,
			MinSpeechDuration: 0.25,
		},
		Input: InputConfig{
			Source:        SourceStdin,
			UDPAddress:    "127.0.0.1:5004",
			UDPBufferSize: 65536,
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	return Loader{}.Load(path)
}

// Loader loads configuration from a file, a .env file and the environment.
// Environment variables win over .env entries, which win over the file.
type Loader struct {
	// Lookup reads an environment variable; nil uses os.LookupEnv
	Lookup func(key string) (string, bool)
	// EnvFile is read when it exists; empty means ".env"
	EnvFile string
}

// Load builds the configuration. An empty path skips the YAML file.
func (l Loader) Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	lookup, err := l.lookup()
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// lookup merges the .env file under the real environment
func (l Loader) lookup() (func(string) (string, bool), error) {
	env := l.Lookup
	if env == nil {
		env = os.LookupEnv
	}

	file := l.EnvFile
	if file == "" {
		file = ".env"
	}
	dotenv, err := godotenv.Read(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return env, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", file, err)
	}

	return func(key string) (string, bool) {
		if v, ok := env(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// EnvPrefix prefixes every recognized environment variable
const EnvPrefix = "CORTEX_"

// ApplyEnv overrides fields from CORTEX_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	integer := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}
	float := func(dst *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*dst = f
			return nil
		}
	}

	overrides := []struct {
		key string
		set func(string) error
	}{
		{"BACKEND", str(&c.Model.Backend)},
		{"MODEL", str(&c.Model.Size)},
		{"MODEL_PATH", str(&c.Model.Path)},
		{"DEVICE", str(&c.Model.Device)},
		{"COMPUTE_TYPE", str(&c.Model.ComputeType)},
		{"ENDPOINT", str(&c.Model.Endpoint)},
		{"API_KEY", str(&c.Model.APIKey)},
		{"LANGUAGE", str(&c.Decoding.Language)},
		{"BEAM_SIZE", integer(&c.Decoding.BeamSize)},
		{"VAD_FILTER", boolean(&c.Decoding.VADFilter)},
		{"INITIAL_PROMPT", str(&c.Decoding.InitialPrompt)},
		{"DEVICE_ID", func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.Audio.DeviceID = &n
			return nil
		}},
		{"QUEUE_CAPACITY", integer(&c.Audio.QueueCapacity)},
		{"CAPTURE_CHUNK_SECONDS", float(&c.Audio.CaptureChunkSeconds)},
		{"STREAM_CHUNK_SECONDS", float(&c.Audio.StreamChunkSeconds)},
		{"DUMP_DIR", str(&c.Audio.DumpDir)},
		{"MERGE_GAP_SECONDS", float(&c.PostProcess.MergeGapSeconds)},
		{"INPUT", str(&c.Input.Source)},
		{"UDP_ADDRESS", str(&c.Input.UDPAddress)},
		{"HTTP_ENABLED", boolean(&c.HTTP.Enabled)},
		{"HTTP_PORT", integer(&c.HTTP.Port)},
		{"LOG_LEVEL", str(&c.Logging.Level)},
		{"LOG_FORMAT", str(&c.Logging.Format)},
		{"LOG_OUTPUT", str(&c.Logging.Output)},
	}

	for _, o := range overrides {
		v, ok := lookup(EnvPrefix + o.key)
		if !ok {
			continue
		}
		if err := o.set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, o.key, err)
		}
	}
	return nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	if err := c.Decoding.Validate(); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.PostProcess.Validate(); err != nil {
		return fmt.Errorf("postprocess config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates model configuration
func (m *ModelConfig) Validate() error {
	validBackends := map[string]bool{"remote": true, "whispercpp": true, "stub": true}
	if !validBackends[m.Backend] {
		return fmt.Errorf("backend must be one of [remote, whispercpp, stub], got '%s'", m.Backend)
	}

	if m.Size == "" {
		return fmt.Errorf("size cannot be empty")
	}

	validDevices := map[string]bool{"cpu": true, "gpu": true, "cuda": true, "auto": true}
	if !validDevices[strings.ToLower(m.Device)] {
		return fmt.Errorf("device must be one of [cpu, gpu, cuda, auto], got '%s'", m.Device)
	}

	if m.ComputeType == "" {
		return fmt.Errorf("compute_type cannot be empty")
	}

	if m.Backend == "remote" && m.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty for the remote backend")
	}

	if m.Backend == "whispercpp" && m.Path == "" {
		return fmt.Errorf("path cannot be empty for the whispercpp backend")
	}

	if m.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", m.Timeout)
	}

	if m.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", m.MaxRetries)
	}

	if m.Threads < 0 {
		return fmt.Errorf("threads cannot be negative, got %d", m.Threads)
	}

	return nil
}

// Validate validates decoding options
func (d *DecodingConfig) Validate() error {
	if d.BeamSize < 1 {
		return fmt.Errorf("beam_size must be at least 1, got %d", d.BeamSize)
	}

	if d.Temperature < 0 || d.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", d.Temperature)
	}

	if d.VADMinSilenceMs < 0 {
		return fmt.Errorf("vad_min_silence_ms cannot be negative, got %d", d.VADMinSilenceMs)
	}

	if d.NoSpeechThreshold < 0 || d.NoSpeechThreshold > 1 {
		return fmt.Errorf("no_speech_threshold must be between 0 and 1, got %f", d.NoSpeechThreshold)
	}

	if d.CompressionRatioThreshold < 0 {
		return fmt.Errorf("compression_ratio_threshold cannot be negative, got %f", d.CompressionRatioThreshold)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.DeviceID != nil && *a.DeviceID < 0 {
		return fmt.Errorf("device_id cannot be negative, got %d", *a.DeviceID)
	}

	if a.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", a.QueueCapacity)
	}

	if a.CaptureChunkSeconds <= 0 {
		return fmt.Errorf("capture_chunk_seconds must be positive, got %f", a.CaptureChunkSeconds)
	}

	if a.StreamChunkSeconds <= 0 {
		return fmt.Errorf("stream_chunk_seconds must be positive, got %f", a.StreamChunkSeconds)
	}

	if a.MinFlushSeconds < 0 {
		return fmt.Errorf("min_flush_seconds cannot be negative, got %f", a.MinFlushSeconds)
	}

	if a.PopTimeoutMs < 1 {
		return fmt.Errorf("pop_timeout_ms must be at least 1, got %d", a.PopTimeoutMs)
	}

	if a.FramesPerBuffer < 64 {
		return fmt.Errorf("frames_per_buffer must be at least 64, got %d", a.FramesPerBuffer)
	}

	return nil
}

// Validate validates post-processing thresholds
func (p *PostProcessConfig) Validate() error {
	if p.MinAvgLogProb > 0 {
		return fmt.Errorf("min_avg_logprob must not be positive, got %f", p.MinAvgLogProb)
	}

	if p.MergeGapSeconds < 0 {
		return fmt.Errorf("merge_gap_seconds cannot be negative, got %f", p.MergeGapSeconds)
	}

	if p.MaxMergedChars < 0 {
		return fmt.Errorf("max_merged_chars cannot be negative, got %d", p.MaxMergedChars)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.WindowSize < 256 || v.WindowSize > 2048 {
		return fmt.Errorf("window_size must be between 256 and 2048 samples, got %d", v.WindowSize)
	}

	if v.MinSpeechDuration <= 0 {
		return fmt.Errorf("min_speech_duration must be positive, got %f", v.MinSpeechDuration)
	}

	return nil
}

// Validate validates the stream input selection
func (i *InputConfig) Validate() error {
	switch i.Source {
	case SourceStdin:
	case SourceUDP:
		if i.UDPAddress == "" {
			return fmt.Errorf("udp_address cannot be empty for udp input")
		}
		if i.UDPBufferSize < 1024 {
			return fmt.Errorf("udp_buffer_size must be at least 1024 bytes, got %d", i.UDPBufferSize)
		}
	default:
		return fmt.Errorf("source must be 'stdin' or 'udp', got '%s'", i.Source)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration. Output may be stdout, stderr
// or a file path.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// CaptureMode reports whether the service captures from a device
func (a *AudioConfig) CaptureMode() bool {
	return a.Capture || a.DeviceID != nil
}

// GetCaptureChunkDuration returns the capture chunk length as a time.Duration
func (a *AudioConfig) GetCaptureChunkDuration() time.Duration {
	return time.Duration(a.CaptureChunkSeconds * float64(time.Second))
}

// GetStreamChunkDuration returns the stream chunk length as a time.Duration
func (a *AudioConfig) GetStreamChunkDuration() time.Duration {
	return time.Duration(a.StreamChunkSeconds * float64(time.Second))
}

// GetMinFlushDuration returns the shortest flushed tail as a time.Duration
func (a *AudioConfig) GetMinFlushDuration() time.Duration {
	return time.Duration(a.MinFlushSeconds * float64(time.Second))
}

// GetPopTimeout returns the capture queue wait as a time.Duration
func (a *AudioConfig) GetPopTimeout() time.Duration {
	return time.Duration(a.PopTimeoutMs) * time.Millisecond
}

// GetVADMinSilence returns the VAD minimum silence as a time.Duration
func (d *DecodingConfig) GetVADMinSilence() time.Duration {
	return time.Duration(d.VADMinSilenceMs) * time.Millisecond
}

// GetMergeGap returns the merge gap threshold as a time.Duration
func (p *PostProcessConfig) GetMergeGap() time.Duration {
	return time.Duration(p.MergeGapSeconds * float64(time.Second))
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return time.Duration(v.MinSpeechDuration * float64(time.Second))
}

// GetTimeoutDuration returns the engine request timeout as a time.Duration
func (m *ModelConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}
