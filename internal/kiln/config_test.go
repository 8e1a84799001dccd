package kiln

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/arch"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kiln.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigParsesFile(t *testing.T) {
	path := writeConfig(t, `# kiln settings
KILN_ROOT = "/srv/project"
KILN_COMPILER='clang'

not a pair
R2_BUCKET_NAME=states
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/project", cfg.Values["KILN_ROOT"])
	assert.Equal(t, "clang", cfg.Values["KILN_COMPILER"])
	assert.Equal(t, "states", cfg.Values["R2_BUCKET_NAME"])
	assert.NotContains(t, cfg.Values, "not a pair")
}

func TestLoadConfigMissingFileIsEmpty(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.conf"))
	require.NoError(t, err)
	assert.NotNil(t, cfg.Values)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "KILN_ARCH=x86_64\nKILN_DEBUG=0\n")
	t.Setenv("KILN_ARCH", "aarch64")
	t.Setenv("R2_ACCOUNT_ID", "acct")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "aarch64", cfg.Values["KILN_ARCH"])
	assert.Equal(t, "acct", cfg.Values["R2_ACCOUNT_ID"])
	assert.Equal(t, "0", cfg.Values["KILN_DEBUG"])
}

func TestInitConfigDefaults(t *testing.T) {
	s, err := initConfig(&Config{Values: map[string]string{}})
	require.NoError(t, err)
	assert.Equal(t, ".", s.Root)
	assert.Equal(t, filepath.Join(".", "parts"), s.StateDir)
	assert.Equal(t, "gcc", s.Compiler)
	assert.Equal(t, arch.KernelFromHost, s.Kernel)
	assert.Equal(t, defaultProbeTimeout, s.ProbeTimeout)
	assert.False(t, s.Debug)
}

func TestInitConfigValues(t *testing.T) {
	t.Cleanup(func() { Debug = false })
	s, err := initConfig(&Config{Values: map[string]string{
		"KILN_ROOT":          "/p",
		"KILN_ARCH":          "armv7l",
		"KILN_COMPILER":      "none",
		"KILN_KERNEL_ARCH":   "target",
		"KILN_PROBE_TIMEOUT": "3",
		"KILN_DEBUG":         "1",
	}})
	require.NoError(t, err)
	assert.Equal(t, "/p/parts", s.StateDir)
	assert.Equal(t, "armv7l", s.Machine)
	assert.Equal(t, "none", s.Compiler)
	assert.Equal(t, arch.KernelFromTarget, s.Kernel)
	assert.Equal(t, 3*time.Second, s.ProbeTimeout)
	assert.True(t, s.Debug)
	assert.True(t, Debug)
}

func TestInitConfigRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"kernel source": {"KILN_KERNEL_ARCH": "guest"},
		"timeout":       {"KILN_PROBE_TIMEOUT": "soon"},
		"zero timeout":  {"KILN_PROBE_TIMEOUT": "0s"},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := initConfig(&Config{Values: values})
			assert.Error(t, err)
		})
	}
}

func TestProbeTimeoutAcceptsDurations(t *testing.T) {
	s, err := initConfig(&Config{Values: map[string]string{"KILN_PROBE_TIMEOUT": "1500ms"}})
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, s.ProbeTimeout)
}
