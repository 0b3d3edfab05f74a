package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/vspfilter/cmd"
	"github.com/smazurov/vspfilter/internal/api"
	"github.com/smazurov/vspfilter/internal/config"
	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/internal/logging"
	"github.com/smazurov/vspfilter/internal/metrics/collectors"
	"github.com/smazurov/vspfilter/internal/metrics/exporters"
	"github.com/smazurov/vspfilter/internal/version"
	"github.com/smazurov/vspfilter/internal/vsp"
	"github.com/smazurov/vspfilter/pkg/linuxav/hotplug"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"vspfilter.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	CORSOrigin string `help:"Access-Control-Allow-Origin of the API" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Device settings, "auto" scans for a capable node
	InputDevice  string `help:"Input (rpf) video node" default:"" toml:"vsp.input_device" env:"VSP_INPUT_DEVICE"`
	OutputDevice string `help:"Output (wpf) video node" default:"" toml:"vsp.output_device" env:"VSP_OUTPUT_DEVICE"`
	WatchDevices bool   `help:"Tear the session down when its nodes are removed" default:"true" toml:"vsp.watch_devices" env:"VSP_WATCH_DEVICES"`

	// Auth settings, empty disables auth
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsPrometheusEnabled bool   `help:"Serve /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSEEnabled        bool   `help:"Publish metrics snapshots on /api/metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`
	MetricsInterval          string `help:"Metrics snapshot interval" default:"1s" toml:"metrics.interval" env:"METRICS_INTERVAL"`

	// Reload logging levels when the config file changes
	WatchConfig bool `help:"Watch the config file for logging changes" default:"true" toml:"server.watch_config" env:"SERVER_WATCH_CONFIG"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingVSP     string `help:"Converter logging level" default:"info" toml:"logging.vsp" env:"LOGGING_VSP"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingMetrics string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"vsp":     o.LoggingVSP,
			"api":     o.LoggingAPI,
			"http":    o.LoggingHTTP,
			"metrics": o.LoggingMetrics,
			"config":  o.LoggingConfig,
		},
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		deviceFile, err := config.LoadDeviceFile(config.DeviceFilePath())
		if err != nil {
			logger.Warn("Failed to read device file", "path", config.DeviceFilePath(), "error", err)
		}
		inputDevice, outputDevice := config.ResolveDevicePaths(opts.InputDevice, opts.OutputDevice, deviceFile)

		eventBus := events.New()

		session := vsp.NewSession(vsp.Options{
			InputDevice:  inputDevice,
			OutputDevice: outputDevice,
			Bus:          eventBus,
		})

		collector := collectors.NewSessionCollector(eventBus)

		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSEEnabled {
			sseExporter = exporters.NewSSEExporter(eventBus)
			if interval, parseErr := time.ParseDuration(opts.MetricsInterval); parseErr == nil {
				sseExporter.SetInterval(interval)
			} else {
				logger.Warn("Invalid metrics interval, using default", "value", opts.MetricsInterval, "error", parseErr)
			}
		}

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			CORSOrigin:   opts.CORSOrigin,
			Session:      session,
			EventBus:     eventBus,
		}
		if opts.MetricsPrometheusEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		var watcher *config.Watcher[logging.Config]
		if opts.WatchConfig && opts.Config != "" {
			watcher = config.NewWatcher(opts.Config, config.LoadLoggingConfig, logging.GetLogger("config"))
			watcher.OnReload(func(c logging.Config) {
				logging.SetLevels(c.Level, c.Modules)
				logger.Info("Logging levels reloaded", "level", c.Level)
			})
		}

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			logger.Info("Converter devices",
				"input", deviceOrAuto(inputDevice),
				"output", deviceOrAuto(outputDevice))

			collector.Start()
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}
			if watcher != nil {
				if startErr := watcher.Start(); startErr != nil {
					logger.Warn("Failed to start config watcher, hot-reload disabled", "error", startErr)
					watcher = nil
				}
			}

			if opts.WatchDevices {
				go watchDevices(ctx, server, logger)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			cancel()
			if sseExporter != nil {
				sseExporter.Stop()
			}
			collector.Stop()
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping config watcher", "error", stopErr)
				}
			}
		})
	})

	cli.Root().Use = "vspfilter"
	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateConvertCmd())

	cli.Run()
}

func deviceOrAuto(path string) string {
	if path == "" {
		return config.AutoDevice
	}
	return path
}

// watchDevices feeds video and media uevents to the server until ctx is done.
func watchDevices(ctx context.Context, server *api.Server, logger *slog.Logger) {
	monitor, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux, hotplug.SubsystemMedia)
	if err != nil {
		logger.Warn("Device hotplug monitoring unavailable", "error", err)
		return
	}
	defer func() { _ = monitor.Close() }()

	devices := make(chan hotplug.Event, 16)
	go server.WatchDevices(ctx, devices)
	if err := monitor.Run(ctx, devices); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Device hotplug monitoring stopped", "error", err)
	}
}
