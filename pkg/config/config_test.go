package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestDefault tests the reference defaults.
func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 16, cfg.MaxOpenFiles)
	assert.Equal(t, 256, cfg.MaxNameLength)
	assert.Equal(t, 1024, cfg.MaxArgBytes)
	assert.Equal(t, ".coff", cfg.ImageSuffix)
	assert.NoError(t, cfg.Validate())
}

// TestLoadYAML tests YAML loading over defaults.
func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "kernel.yaml", `
max_open_files: 8
max_processes: 4
verbose: true
files:
  motd.txt: hello
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.MaxOpenFiles = 8
	want.MaxProcesses = 4
	want.Verbose = true
	want.Files = map[string]string{"motd.txt": "hello"}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

// TestLoadJSONC tests JSON with comments and trailing commas.
func TestLoadJSONC(t *testing.T) {
	path := writeFile(t, "kernel.jsonc", `{
		// smaller tables for tests
		"max_open_files": 4,
		"image_suffix": "",
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxOpenFiles)
	assert.Equal(t, "", cfg.ImageSuffix)
	assert.Equal(t, 256, cfg.MaxNameLength)
}

// TestLoadErrors tests the failure modes of Load.
func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }, ErrConfigNotFound},
		{"extension", func(t *testing.T) string { return writeFile(t, "kernel.toml", "x = 1") }, ErrUnsupportedFormat},
		{"bad yaml", func(t *testing.T) string { return writeFile(t, "kernel.yaml", "max_open_files: [") }, ErrInvalidConfig},
		{"bad json", func(t *testing.T) string { return writeFile(t, "kernel.json", "{") }, ErrInvalidConfig},
		{"invalid value", func(t *testing.T) string { return writeFile(t, "kernel.yml", "max_open_files: 1") }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestApplyEnv tests environment overrides.
func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"UKERNEL_MAX_OPEN_FILES": "32",
		"UKERNEL_IMAGE_SUFFIX":   ".elf",
		"UKERNEL_VERBOSE":        "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 32, cfg.MaxOpenFiles)
	assert.Equal(t, ".elf", cfg.ImageSuffix)
	assert.True(t, cfg.Verbose)

	env["UKERNEL_MAX_PROCESSES"] = "many"
	assert.ErrorIs(t, Default().ApplyEnv(lookup), ErrInvalidConfig)
}

// TestReadEnvFile tests .env parsing and the missing file case.
func TestReadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "UKERNEL_MAX_ARG_BYTES=2048\n# comment\n")

	env, err := ReadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2048", env["UKERNEL_MAX_ARG_BYTES"])

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(MapLookup(env)))
	assert.Equal(t, 2048, cfg.MaxArgBytes)

	env, err = ReadEnvFile(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Empty(t, env)
}
