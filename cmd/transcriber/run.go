package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/eduardohotta/cortex/internal/audio"
	"github.com/eduardohotta/cortex/internal/config"
	"github.com/eduardohotta/cortex/internal/device"
	"github.com/eduardohotta/cortex/internal/engine"
	"github.com/eduardohotta/cortex/internal/metrics"
	"github.com/eduardohotta/cortex/internal/protocol"
	"github.com/eduardohotta/cortex/internal/server"
	"github.com/eduardohotta/cortex/internal/stream"
	"github.com/eduardohotta/cortex/internal/transcript"
	"github.com/eduardohotta/cortex/internal/transcription"
	"github.com/eduardohotta/cortex/internal/vad"
)

const shutdownTimeout = 30 * time.Second

// runService loads the model, opens the audio source and runs the
// processing loop until the input ends or a signal arrives.
func runService(cmd *cobra.Command) error {
	emitter := protocol.NewEmitter(os.Stdout)

	cfg, err := loadConfig(cmd)
	if err != nil {
		emitter.Error(err.Error())
		return err
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Service starting",
		slog.String("version", serviceVersion),
		slog.String("config_path", cfgFile),
		slog.String("backend", cfg.Model.Backend),
		slog.String("model", cfg.Model.Size),
		slog.String("device", cfg.Model.Device),
		slog.String("compute_type", cfg.Model.ComputeType),
		slog.Bool("capture", cfg.Audio.CaptureMode()),
		slog.String("input", cfg.Input.Source),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics live on a private registry served by the HTTP API
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(reg)
	emitter.OnEmit(appMetrics.RecordLine)

	var hub *server.EventHub
	if cfg.HTTP.Enabled {
		hub = server.NewEventHub(logger, appMetrics)
		emitter.AddMirror(hub)
	}

	worker, err := transcription.NewWorker(workerConfig(cfg), engine.Load, emitter, appMetrics, logger)
	if err != nil {
		emitter.Error(err.Error())
		return err
	}
	// Left set when the loop outlives the shutdown timeout; Close would wait
	// on its inference.
	abandoned := false
	defer func() {
		if abandoned {
			logger.Warn("Leaving engine open, inference still running")
			return
		}
		if err := worker.Close(); err != nil {
			logger.Warn("Error closing engine", slog.String("error", err.Error()))
		}
	}()

	emitter.LoadingModel(cfg.Model.Size, cfg.Model.Device)
	if err := worker.Load(ctx); err != nil {
		return reportFatal(emitter, logger, err)
	}

	src, mode, deviceID, udp, err := openSource(cfg, logger, appMetrics)
	if err != nil {
		return reportFatal(emitter, logger, err)
	}

	runner := stream.NewRunner(worker, transcript.NewProcessor(processorConfig(cfg)), emitter, appMetrics, logger)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, server.Components{
			Worker:  worker,
			Runner:  runner,
			Emitter: emitter,
			Events:  hub,
			UDP:     udp,
		}, reg, appMetrics, serviceVersion)
		if err := httpServer.Start(); err != nil {
			src.Close()
			return reportFatal(emitter, logger, err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Stop(shutdownCtx); err != nil {
				logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
			}
		}()
	}

	runCfg := stream.Config{
		Mode: mode,
		Chunking: audio.ChunkingConfig{
			Duration:   cfg.Audio.GetStreamChunkDuration(),
			MinFlush:   cfg.Audio.GetMinFlushDuration(),
			SampleRate: audio.TargetSampleRate,
		},
	}
	if mode == protocol.ModeCapture {
		runCfg.Chunking.Duration = cfg.Audio.GetCaptureChunkDuration()
	}
	if cfg.Audio.DumpDir != "" {
		dumper, err := audio.NewDumper(cfg.Audio.DumpDir)
		if err != nil {
			src.Close()
			return reportFatal(emitter, logger, err)
		}
		runCfg.Dumper = dumper
	}

	if err := emitter.Ready(cfg.Model.Size, mode, deviceID); err != nil {
		src.Close()
		return err
	}

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, src, runCfg) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		logger.Info("Received shutdown signal, finishing current chunk")
		// A stream source may sit in a blocking read that never returns
		select {
		case err = <-done:
		case <-time.After(shutdownTimeout):
			logger.Warn("Processing loop did not stop in time")
			abandoned = true
			return errors.New("processing loop did not stop in time")
		}
	}

	stats := runner.GetStats()
	logger.Info("Service stopped",
		slog.Duration("audio", stats.AudioDuration),
		slog.Uint64("chunks", stats.ChunksHandled),
		slog.Uint64("events", stats.EventsEmitted),
	)
	return err
}

// openSource opens the capture device or the byte stream selected by cfg
func openSource(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (audio.Source, string, *int, *server.UDPReceiver, error) {
	if cfg.Audio.CaptureMode() {
		drv, err := device.NewDriver()
		if err != nil {
			return nil, "", nil, nil, err
		}
		capture, err := audio.OpenCapture(drv, audio.CaptureConfig{
			DeviceID:        cfg.Audio.DeviceID,
			QueueCapacity:   cfg.Audio.QueueCapacity,
			PopTimeout:      cfg.Audio.GetPopTimeout(),
			FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		}, logger)
		if err != nil {
			drv.Close()
			return nil, "", nil, nil, err
		}
		id := capture.Device().ID
		return &driverSource{CaptureSource: capture, driver: drv}, protocol.ModeCapture, &id, nil, nil
	}

	if cfg.Input.Source == config.SourceUDP {
		udp := server.NewUDPReceiver(server.UDPConfig{
			Address:    cfg.Input.UDPAddress,
			BufferSize: cfg.Input.UDPBufferSize,
		}, logger, m)
		if err := udp.Start(); err != nil {
			return nil, "", nil, nil, err
		}
		return audio.NewStreamSource(udp, audio.PCMReadSize), protocol.ModeStdin, nil, udp, nil
	}

	return audio.NewStreamSource(os.Stdin, audio.PCMReadSize), protocol.ModeStdin, nil, nil, nil
}

// driverSource releases the driver together with the capture stream
type driverSource struct {
	*audio.CaptureSource
	driver device.Driver
}

func (s *driverSource) Close() error {
	return errors.Join(s.CaptureSource.Close(), s.driver.Close())
}

// reportFatal writes err as the terminal error line
func reportFatal(emitter *protocol.Emitter, logger *slog.Logger, err error) error {
	msg := err.Error()
	var me *transcription.ModelError
	if errors.As(err, &me) {
		msg = me.Message()
	}
	logger.Error("Fatal error", slog.String("error", err.Error()))
	emitter.Error(msg)
	return err
}

func workerConfig(cfg *config.Config) transcription.Config {
	language := cfg.Decoding.Language
	if language == "auto" {
		language = ""
	}
	vadCfg := vad.DefaultConfig()
	vadCfg.Threshold = cfg.VAD.Threshold
	vadCfg.WindowSize = cfg.VAD.WindowSize
	vadCfg.MinSpeech = cfg.VAD.GetMinSpeechDuration()
	vadCfg.MinSilence = cfg.Decoding.GetVADMinSilence()

	return transcription.Config{
		Engine: engine.Settings{
			Backend:     cfg.Model.Backend,
			ModelSize:   cfg.Model.Size,
			ModelPath:   cfg.Model.Path,
			Device:      cfg.Model.Device,
			ComputeType: cfg.Model.ComputeType,
			Threads:     cfg.Model.Threads,
			Endpoint:    cfg.Model.Endpoint,
			APIKey:      cfg.Model.APIKey,
			Timeout:     cfg.Model.GetTimeoutDuration(),
			MaxRetries:  cfg.Model.MaxRetries,
		},
		Options: engine.Options{
			BeamSize:                  cfg.Decoding.BeamSize,
			Language:                  language,
			Temperature:               cfg.Decoding.Temperature,
			ConditionOnPreviousText:   cfg.Decoding.ConditionOnPreviousText,
			LogProbThreshold:          float64(cfg.Decoding.LogProbThreshold),
			NoSpeechThreshold:         float64(cfg.Decoding.NoSpeechThreshold),
			CompressionRatioThreshold: float64(cfg.Decoding.CompressionRatioThreshold),
			InitialPrompt:             cfg.Decoding.InitialPrompt,
		},
		VADFilter: cfg.Decoding.VADFilter,
		VAD:       vadCfg,
	}
}

func processorConfig(cfg *config.Config) transcript.Config {
	return transcript.Config{
		MinAvgLogProb:       cfg.PostProcess.MinAvgLogProb,
		MergeGap:            cfg.PostProcess.GetMergeGap(),
		MaxMergedChars:      cfg.PostProcess.MaxMergedChars,
		ExtraHallucinations: cfg.PostProcess.Hallucinations,
	}
}
