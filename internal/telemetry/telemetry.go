package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Qubut/IP-Claim/packages/gpatents_processor/internal/logger"
)

// Config for OTEL setup
type Config struct {
	ServiceName string            // e.g., "gpatents-processor"
	Exporter    string            // "stdout", "otlp" or "none"
	Endpoint    string            // OTLP endpoint, e.g., "localhost:4317"
	Protocol    string            // "grpc" or "http" (default "grpc")
	Insecure    bool              // Disable TLS for OTLP (development only)
	Headers     map[string]string // Custom headers for OTLP, e.g., for auth
	LogFile     string            // Path for JSON logs
	LogLevel    string            // "debug", "info", "warn", "error" (default "info")
	Version     string
}

type exporters struct {
	trace  sdktrace.SpanExporter
	log    log.Exporter
	metric sdkmetric.Exporter
}

// InitOTEL sets up providers, tracer, meter, and returns them + bridged logger.
// The "none" exporter installs no providers and logs only to LogFile.
func InitOTEL(
	cfg Config,
) (trace.Tracer, metric.Meter, *zap.SugaredLogger, func(context.Context) error, error) {
	if cfg.Exporter == "none" || cfg.Exporter == "" {
		return initNoop(cfg)
	}
	ctx := context.Background()

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var exp exporters
	switch cfg.Exporter {
	case "stdout":
		exp, err = stdoutExporters()
	case "otlp":
		exp, err = otlpExporters(ctx, cfg)
	default:
		err = fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, nil, nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp.trace),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp.metric)),
	)
	otel.SetMeterProvider(mp)

	lp := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exp.log)),
		log.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	level := parseLevel(cfg.LogLevel)
	var cores []zapcore.Core
	if cfg.LogFile != "" {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    100, // MB
				MaxBackups: 5,
			}),
			level,
		))
	}
	cores = append(cores, otelzap.NewCore(
		cfg.ServiceName,
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
		otelzap.WithVersion(cfg.Version),
	))

	zapLogger := zap.New(zapcore.NewTee(cores...))

	shutdown := func(ctx context.Context) error {
		var shutdownErr error
		if err := tp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if err := lp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if err := mp.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		_ = zapLogger.Sync()
		return shutdownErr
	}

	return otel.Tracer(cfg.ServiceName), otel.Meter(cfg.ServiceName), zapLogger.Sugar(), shutdown, nil
}

func initNoop(
	cfg Config,
) (trace.Tracer, metric.Meter, *zap.SugaredLogger, func(context.Context) error, error) {
	sugar, err := logger.NewLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	shutdown := func(context.Context) error {
		_ = sugar.Sync()
		return nil
	}
	return tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
		metricnoop.NewMeterProvider().Meter(cfg.ServiceName),
		sugar, shutdown, nil
}

func parseLevel(raw string) zap.AtomicLevel {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if raw == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return level
}

func stdoutExporters() (exporters, error) {
	var exp exporters
	var err error
	if exp.trace, err = stdouttrace.New(stdouttrace.WithPrettyPrint()); err != nil {
		return exp, err
	}
	if exp.log, err = stdoutlog.New(); err != nil {
		return exp, err
	}
	exp.metric, err = stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	return exp, err
}

func otlpExporters(ctx context.Context, cfg Config) (exporters, error) {
	var exp exporters
	if cfg.Endpoint == "" {
		return exp, fmt.Errorf("OTLP endpoint required")
	}

	var (
		traceClient otlptrace.Client
		err         error
	)
	switch cfg.Protocol {
	case "grpc", "":
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			logOpts = append(logOpts, otlploggrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			traceOpts = append(traceOpts, otlptracegrpc.WithHeaders(cfg.Headers))
			logOpts = append(logOpts, otlploggrpc.WithHeaders(cfg.Headers))
			metricOpts = append(metricOpts, otlpmetricgrpc.WithHeaders(cfg.Headers))
		}
		traceClient = otlptracegrpc.NewClient(traceOpts...)
		if exp.log, err = otlploggrpc.New(ctx, logOpts...); err != nil {
			return exp, err
		}
		if exp.metric, err = otlpmetricgrpc.New(ctx, metricOpts...); err != nil {
			return exp, err
		}
	case "http":
		traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		logOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			logOpts = append(logOpts, otlploghttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			traceOpts = append(traceOpts, otlptracehttp.WithHeaders(cfg.Headers))
			logOpts = append(logOpts, otlploghttp.WithHeaders(cfg.Headers))
			metricOpts = append(metricOpts, otlpmetrichttp.WithHeaders(cfg.Headers))
		}
		traceClient = otlptracehttp.NewClient(traceOpts...)
		if exp.log, err = otlploghttp.New(ctx, logOpts...); err != nil {
			return exp, err
		}
		if exp.metric, err = otlpmetrichttp.New(ctx, metricOpts...); err != nil {
			return exp, err
		}
	default:
		return exp, fmt.Errorf("invalid protocol: %s", cfg.Protocol)
	}
	exp.trace, err = otlptrace.New(ctx, traceClient)
	return exp, err
}
