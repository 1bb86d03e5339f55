package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Missing(t *testing.T) {
	home := t.TempDir()

	cfg, err := Load(filepath.Join(home, "nope.yaml"), home)
	require.NoError(t, err)

	assert.Equal(t, "pbs", cfg.Backend)
	assert.Equal(t, filepath.Join(home, "pbs-output"), cfg.OutputDir)
	assert.Equal(t, filepath.Join(home, ".pbs_log"), cfg.LogPath)
	assert.Equal(t, "24", cfg.Defaults.Walltime)
	assert.Equal(t, 10, cfg.MaxEmailJobs)
}

func TestLoad_File(t *testing.T) {
	home := t.TempDir()
	file := filepath.Join(home, "config.yaml")

	require.NoError(t, os.WriteFile(file, []byte(`
backend: slurm
output_dir: ~/slurm-output
command_timeout: 30s
defaults:
  walltime: 4
  memory: 512Mi
`), 0o600))

	cfg, err := Load(file, home)
	require.NoError(t, err)

	assert.Equal(t, "slurm", cfg.Backend)
	assert.Equal(t, filepath.Join(home, "slurm-output"), cfg.OutputDir)
	assert.Equal(t, filepath.Join(home, ".pbs_log"), cfg.LogPath)
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "4", cfg.Defaults.Walltime)
	assert.Equal(t, "512Mi", cfg.Defaults.Memory)
	assert.Equal(t, "1", cfg.Defaults.CPU)
}

func TestLoad_Invalid(t *testing.T) {
	home := t.TempDir()

	cases := []struct {
		Name  string
		Given string
	}{
		{Name: "backend", Given: "backend: lsf\n"},
		{Name: "syntax", Given: "backend: [pbs\n"},
		{Name: "timeout", Given: "command_timeout: -1s\n"},
	}

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			file := filepath.Join(home, c.Name+".yaml")
			require.NoError(t, os.WriteFile(file, []byte(c.Given), 0o600))

			_, err := Load(file, home)
			assert.Error(t, err)
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	assert.Equal(t, "/home/alice/.config/batchq/config.yaml", DefaultPath("/home/alice"))

	t.Setenv(EnvConfigFile, "/etc/batchq.yaml")
	assert.Equal(t, "/etc/batchq.yaml", DefaultPath("/home/alice"))
}

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "job.tmpl")
	require.NoError(t, os.WriteFile(file, []byte("#PBS -N {{ .JobName }}\n"), 0o600))

	text, err := Config{Template: file}.LoadTemplate()
	require.NoError(t, err)
	assert.Equal(t, "#PBS -N {{ .JobName }}\n", text)

	text, err = Config{}.LoadTemplate()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestOverride(t *testing.T) {
	home := t.TempDir()

	base := Default()
	base.CommandTimeout = time.Minute

	noTimeout := time.Duration(0)

	cfg, err := base.Override(Overrides{
		Backend:        "slurm",
		OutputDir:      "~/out",
		CommandTimeout: &noTimeout,
	}, home)
	require.NoError(t, err)

	assert.Equal(t, "slurm", cfg.Backend)
	assert.Equal(t, filepath.Join(home, "out"), cfg.OutputDir)
	assert.Equal(t, base.LogPath, cfg.LogPath)
	assert.Zero(t, cfg.CommandTimeout)

	kept, err := base.Override(Overrides{}, home)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, kept.CommandTimeout)

	_, err = base.Override(Overrides{Backend: "lsf"}, home)
	assert.Error(t, err)
}
