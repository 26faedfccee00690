package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eduardohotta/cortex/internal/config"
	"github.com/eduardohotta/cortex/internal/device"
	"github.com/eduardohotta/cortex/internal/protocol"
)

var (
	// Global flags
	cfgFile     string
	envFile     string
	listDevices bool

	// Overrides, applied only when set on the command line
	flagBackend     string
	flagModel       string
	flagLanguage    string
	flagDevice      string
	flagComputeType string
	flagDeviceID    int
	flagCapture     bool
	flagInput       string
	flagVADFilter   bool
	flagHTTP        bool
	flagDumpDir     string
	flagLogLevel    string
)

// rootCmd runs the service when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "transcriber",
	Short: "Real-time capture-to-transcript service",
	Long: `transcriber reads live audio, cuts it into fixed-length chunks, runs speech
recognition on each chunk and writes one JSON object per line to stdout.

Audio comes from stdin (PCM16 LE mono 16 kHz), from a UDP socket carrying the
same format, or from a capture device.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listDevices {
			return runDevices()
		}
		return runService(cmd)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the transcription service (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd)
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices as a JSON array",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDevices()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, serviceVersion)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (YAML); defaults are used when empty")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file read when present")
	pf.StringVar(&flagBackend, "backend", "", "speech engine backend: remote, whispercpp or stub")
	pf.StringVar(&flagModel, "model", "", "model size")
	pf.StringVar(&flagLanguage, "language", "", "language code (e.g. pt, en); empty detects")
	pf.StringVar(&flagDevice, "device", "", "inference device: cpu, gpu, cuda or auto")
	pf.StringVar(&flagComputeType, "compute-type", "", "compute precision")
	pf.IntVar(&flagDeviceID, "device-id", -1, "audio device id for direct capture")
	pf.BoolVar(&flagCapture, "capture", false, "capture from the default loopback device")
	pf.StringVar(&flagInput, "input", "", "stream input: stdin, udp or udp://host:port")
	pf.BoolVar(&flagVADFilter, "vad-filter", false, "skip chunks without speech")
	pf.BoolVar(&flagHTTP, "http", false, "enable the HTTP API")
	pf.StringVar(&flagDumpDir, "dump-dir", "", "write every chunk as WAV into this directory")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.Flags().BoolVar(&listDevices, "list-devices", false, "list audio devices and exit")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Loader{EnvFile: envFile}.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Model.Backend = flagBackend
	}
	if flags.Changed("model") {
		cfg.Model.Size = flagModel
	}
	if flags.Changed("language") {
		cfg.Decoding.Language = flagLanguage
	}
	if flags.Changed("device") {
		cfg.Model.Device = flagDevice
	}
	if flags.Changed("compute-type") {
		cfg.Model.ComputeType = flagComputeType
	}
	if flags.Changed("device-id") {
		id := flagDeviceID
		cfg.Audio.DeviceID = &id
	}
	if flags.Changed("capture") {
		cfg.Audio.Capture = flagCapture
	}
	if flags.Changed("input") {
		if addr, ok := strings.CutPrefix(flagInput, "udp://"); ok {
			cfg.Input.Source = config.SourceUDP
			cfg.Input.UDPAddress = addr
		} else {
			cfg.Input.Source = flagInput
		}
	}
	if flags.Changed("vad-filter") {
		cfg.Decoding.VADFilter = flagVADFilter
	}
	if flags.Changed("http") {
		cfg.HTTP.Enabled = flagHTTP
	}
	if flags.Changed("dump-dir") {
		cfg.Audio.DumpDir = flagDumpDir
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// runDevices writes the device listing, or an error line, to stdout
func runDevices() error {
	emitter := protocol.NewEmitter(os.Stdout)

	drv, err := device.NewDriver()
	if err != nil {
		emitter.Error(err.Error())
		return err
	}
	defer drv.Close()

	devices, err := drv.Devices()
	if err != nil {
		emitter.Error(err.Error())
		return err
	}
	return emitter.Devices(devices)
}
