package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Log           Log           `mapstructure:"log"            validate:"required"`
	Telemetry     Telemetry     `mapstructure:"telemetry"      validate:"required"`
	GooglePatents GooglePatents `mapstructure:"google_patents" validate:"required"`
	Familizer     Familizer     `mapstructure:"familizer"      validate:"required"`
	Download      Download      `mapstructure:"download"`
	Parse         Parse         `mapstructure:"parse"`
}

type Log struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogDir   string `mapstructure:"log_dir"`
}

type Telemetry struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter"     validate:"oneof=otlp stdout none"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"     validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name" validate:"required"`
}

// GooglePatents configures result-page fetching.
type GooglePatents struct {
	BaseURL           string        `mapstructure:"base_url"            validate:"required,url"`
	Language          string        `mapstructure:"language"            validate:"required,len=2,alpha"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"required,gt=0"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	Concurrency       int           `mapstructure:"concurrency"         validate:"min=1,max=30"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
}

// Familizer configures the family-lookup service.
type Familizer struct {
	URL               string        `mapstructure:"url"                 validate:"required,url"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"required,gt=0"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
}

type Download struct {
	Directory  string `mapstructure:"directory"   validate:"required"`
	SkipExists bool   `mapstructure:"skip_exists"`
}

type Parse struct {
	Workers           int    `mapstructure:"workers"            validate:"min=1,max=64"`
	OutputJSONL       string `mapstructure:"output_jsonl"`
	OutputCSV         string `mapstructure:"output_csv"`
	MarkdownAbstracts bool   `mapstructure:"markdown_abstracts"`
}

// Load reads the config file, GPP_* environment and any flags in flags that
// the user set. Only section.key flags are bound, with dashes read as
// underscores: download.skip-exists binds download.skip_exists.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("GPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gpatents-processor")
		v.AddConfigPath("/etc/gpatents-processor")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if !strings.Contains(f.Name, ".") || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the rules that span fields.
func Validate(cfg Config) error {
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_dir", "logs")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "gpatents-processor")
	v.SetDefault("google_patents.base_url", "https://patents.google.com/xhr")
	v.SetDefault("google_patents.language", "en")
	v.SetDefault("google_patents.timeout", 30*time.Second)
	v.SetDefault("google_patents.max_retries", 3)
	v.SetDefault("google_patents.concurrency", 4)
	v.SetDefault("google_patents.requests_per_second", 2.0)
	v.SetDefault("familizer.url", "https://www.familyizer.com/getfamily5.lc")
	v.SetDefault("familizer.timeout", 60*time.Second)
	v.SetDefault("familizer.max_retries", 2)
	v.SetDefault("familizer.requests_per_second", 0.5)
	v.SetDefault("download.directory", "data")
	v.SetDefault("download.skip_exists", true)
	v.SetDefault("parse.workers", 4)
	v.SetDefault("parse.output_jsonl", "patents.jsonl")
	v.SetDefault("parse.output_csv", "patents.csv")
	v.SetDefault("parse.markdown_abstracts", true)
}
