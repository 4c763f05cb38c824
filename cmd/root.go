package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/telemetry"
)

var (
	cfgFile  string
	cfg      config.Config
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
	meter    metric.Meter
	shutdown func(context.Context) error
	services *internal.Services
	Version  = "dev" // Set at build time: go build -ldflags "-X github.com/Qubut/IP-Claim/packages/gpatents_processor/cmd.Version=v1.0.0"
)

var RootCmd = &cobra.Command{
	Use:           "gpatents-processor",
	Short:         "Google Patents result page fetcher and parser",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		var logFile string
		if cfg.Log.LogDir != "" {
			if err := os.MkdirAll(cfg.Log.LogDir, 0o755); err != nil {
				return fmt.Errorf("create log directory: %w", err)
			}
			logFile = filepath.Join(cfg.Log.LogDir,
				fmt.Sprintf("gpatents-processor[%s].log", time.Now().Format("20060102-150405")))
		}

		exporter := cfg.Telemetry.Exporter
		if !cfg.Telemetry.Enabled {
			exporter = "none"
		}
		tracer, meter, logger, shutdown, err = telemetry.InitOTEL(telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			LogFile:     logFile,
			LogLevel:    cfg.Log.LogLevel,
			Version:     Version,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		services, err = internal.InitServices(cfg, tracer, logger, meter)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil {
				logger.Errorw("shutdown error", "err", err)
				return err
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of gpatents-processor",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config operations",
}

var printConfigCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the current loaded configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "Path to config file (yaml/json/toml)")

	// Names map to config keys with dashes read as underscores.
	type flagDef struct {
		name, def, usage string
	}
	flags := []flagDef{
		{"log.log-level", "info", "Log level (debug/info/warn/error)"},
		{"log.log-dir", "logs", "Directory for log files (empty disables file logging)"},
		{"telemetry.enabled", "false", "Enable OpenTelemetry"},
		{"telemetry.exporter", "none", "Telemetry exporter (otlp|stdout|none)"},
		{"telemetry.endpoint", "localhost:4317", "OTLP endpoint (host:port)"},
		{"telemetry.protocol", "grpc", "OTLP protocol (grpc|http)"},
		{"telemetry.insecure", "true", "Allow insecure OTLP connection"},
		{"telemetry.service-name", "gpatents-processor", "Service name for telemetry"},
		{"google-patents.base-url", "https://patents.google.com/xhr", "Result page service base URL"},
		{"google-patents.language", "en", "Result page language"},
		{"google-patents.timeout", "30s", "Request timeout (duration)"},
		{"google-patents.max-retries", "3", "Max retries per page"},
		{"google-patents.concurrency", "4", "Concurrent page requests"},
		{"google-patents.requests-per-second", "2", "Page request rate limit"},
		{"familizer.url", "https://www.familyizer.com/getfamily5.lc", "Family lookup URL"},
		{"familizer.timeout", "60s", "Family lookup timeout (duration)"},
		{"familizer.max-retries", "2", "Max retries per family lookup"},
		{"familizer.requests-per-second", "0.5", "Family lookup rate limit"},
		{"download.directory", "data", "Directory for cached pages and lookups"},
		{"download.skip-exists", "true", "Skip pages already cached"},
		{"parse.workers", "4", "Parse workers"},
		{"parse.output-jsonl", "patents.jsonl", "Output JSONL path (empty to skip)"},
		{"parse.output-csv", "patents.csv", "Output CSV path (empty to skip)"},
		{"parse.markdown-abstracts", "true", "Render CSV abstracts as Markdown"},
	}
	for _, f := range flags {
		RootCmd.PersistentFlags().String(f.name, f.def, f.usage)
	}

	configCmd.AddCommand(printConfigCmd)

	RootCmd.AddCommand(fetchCmd)
	RootCmd.AddCommand(familyCmd)
	RootCmd.AddCommand(parseCmd)
	RootCmd.AddCommand(identifyCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}
