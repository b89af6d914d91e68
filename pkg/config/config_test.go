package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sdejongh/keepsync/pkg/models"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, models.PolicyContinue, cfg.Sync.ErrorPolicy)
	assert.Equal(t, []string{".app"}, cfg.Sync.AtomicUnits)
	assert.Equal(t, ByteSize(10*1024*1024), cfg.Logging.MaxSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"ErrorPolicy", func(c *Config) { c.Sync.ErrorPolicy = "retry" }, "sync.error_policy"},
		{"Workers", func(c *Config) { c.Performance.MaxWorkers = 0 }, "performance.max_workers"},
		{"Buffer", func(c *Config) { c.Performance.BufferSize = 512 }, "performance.buffer_size"},
		{"Bandwidth", func(c *Config) { c.Performance.BandwidthLimit = -1 }, "performance.bandwidth_limit"},
		{"OutputFormat", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"Color", func(c *Config) { c.Output.Color = "sometimes" }, "output.color"},
		{"LogFormat", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"LogLevel", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"Rotation", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr), "err = %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"1024", 1024, false},
		{"10MB", 10_000_000, false},
		{"10MiB", 10 * 1024 * 1024, false},
		{"1.5 GB", 1_500_000_000, false},
		{"lots", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteSizeYAML(t *testing.T) {
	var doc struct {
		Limit ByteSize `yaml:"limit"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("limit: 5MB\n"), &doc))
	assert.Equal(t, ByteSize(5_000_000), doc.Limit)

	require.NoError(t, yaml.Unmarshal([]byte("limit: 2048\n"), &doc))
	assert.Equal(t, ByteSize(2048), doc.Limit)

	assert.Error(t, yaml.Unmarshal([]byte("limit: [1, 2]\n"), &doc))
	assert.Error(t, yaml.Unmarshal([]byte("limit: huge\n"), &doc))

	doc.Limit = 5_000_000
	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "limit: 5.0 MB\n", string(out))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
sync:
  error_policy: fail-fast
  verify: true
  atomic_units: [".app", ".bundle"]
performance:
  max_workers: 8
  bandwidth_limit: 10MB
output:
  format: json
logging:
  enabled: true
  level: debug
exclude:
  - "*.tmp"
  - "!keep.tmp"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, models.PolicyFailFast, cfg.Sync.ErrorPolicy)
	assert.True(t, cfg.Sync.Verify)
	assert.Equal(t, []string{".app", ".bundle"}, cfg.Sync.AtomicUnits)
	assert.Equal(t, 8, cfg.Performance.MaxWorkers)
	assert.Equal(t, ByteSize(10_000_000), cfg.Performance.BandwidthLimit)
	// unset keys keep their defaults
	assert.Equal(t, 65536, cfg.Performance.BufferSize)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, []string{"*.tmp", "!keep.tmp"}, cfg.Exclude)
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("performance: [\n"), 0644))
	_, err = LoadFromFile(bad)
	assert.ErrorContains(t, err, "failed to parse")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("performance:\n  max_workers: 0\n"), 0644))
	_, err = LoadFromFile(invalid)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Performance.BandwidthLimit = 2_000_000
	cfg.Exclude = []string{".git/"}

	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	cfg.Performance.MaxWorkers = 0
	assert.Error(t, SaveToFile(cfg, path))
}

func TestApply(t *testing.T) {
	cfg := Default()
	cfg.Sync.ErrorPolicy = models.PolicyFailFast
	cfg.Sync.CreateMissingRoot = true
	cfg.Performance.BandwidthLimit = 1000
	cfg.Exclude = []string{"*.log"}

	op := &models.SyncOperation{PathA: "a", PathB: "b"}
	cfg.Apply(op)

	assert.Equal(t, models.PolicyFailFast, op.ErrorPolicy)
	assert.True(t, op.CreateMissing)
	assert.Equal(t, int64(1000), op.BandwidthLimit)
	assert.Equal(t, 5, op.MaxWorkers)
	assert.Equal(t, []string{"*.log"}, op.ExcludePatterns)
	require.NoError(t, op.Validate())

	// the operation does not alias the config
	op.ExcludePatterns[0] = "changed"
	assert.Equal(t, "*.log", cfg.Exclude[0])
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("keepsync", "config.yaml"), filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
