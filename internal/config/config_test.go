package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  log_level: info\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "none", cfg.Telemetry.Exporter)
	assert.Equal(t, "en", cfg.GooglePatents.Language)
	assert.Equal(t, 30*time.Second, cfg.GooglePatents.Timeout)
	assert.Equal(t, 4, cfg.GooglePatents.Concurrency)
	assert.Equal(t, "https://www.familyizer.com/getfamily5.lc", cfg.Familizer.URL)
	assert.True(t, cfg.Download.SkipExists)
	assert.Equal(t, "patents.jsonl", cfg.Parse.OutputJSONL)
}

func TestLoad_FileOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
google_patents:
  base_url: http://localhost:8080/xhr
  language: de
  concurrency: 2
  timeout: 5s
download:
  directory: /tmp/pages
  skip_exists: false
parse:
  workers: 8
`), nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/xhr", cfg.GooglePatents.BaseURL)
	assert.Equal(t, "de", cfg.GooglePatents.Language)
	assert.Equal(t, 5*time.Second, cfg.GooglePatents.Timeout)
	assert.Equal(t, 2, cfg.GooglePatents.Concurrency)
	assert.Equal(t, "/tmp/pages", cfg.Download.Directory)
	assert.False(t, cfg.Download.SkipExists)
	assert.Equal(t, 8, cfg.Parse.Workers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GPP_GOOGLE_PATENTS_LANGUAGE", "fr")
	t.Setenv("GPP_PARSE_WORKERS", "3")

	cfg, err := Load(writeConfig(t, "log:\n  log_level: debug\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "fr", cfg.GooglePatents.Language)
	assert.Equal(t, 3, cfg.Parse.Workers)
	assert.Equal(t, "debug", cfg.Log.LogLevel)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "google_patents:\n  proxy: socks5://x\n"},
		{"bad level", "log:\n  log_level: verbose\n"},
		{"bad exporter", "telemetry:\n  exporter: zipkin\n"},
		{"bad language", "google_patents:\n  language: english\n"},
		{"zero concurrency", "google_patents:\n  concurrency: 0\n"},
		{"otlp without endpoint", "telemetry:\n  enabled: true\n  exporter: otlp\n  endpoint: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("google_patents.language", "en", "")
	flags.String("download.skip-exists", "true", "")
	require.NoError(t, flags.Parse([]string{"--google_patents.language=ja", "--download.skip-exists=false"}))

	cfg, err := Load(writeConfig(t, "google_patents:\n  language: de\n"), flags)
	require.NoError(t, err)
	assert.Equal(t, "ja", cfg.GooglePatents.Language)
	assert.False(t, cfg.Download.SkipExists)
}

func TestLoad_UnsetFlagsKeepDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("parse.workers", "10", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(writeConfig(t, "log:\n  log_level: info\n"), flags)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Parse.Workers)
}
