package kiln

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/arch"
	"kiln/internal/states"
)

var hostTarget = arch.Target{HostMachine: "x86_64", Platform: "x86_64", Triplet: "x86_64-linux-gnu", DebArch: "amd64", KernelArch: "x86"}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadPropertiesPartMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.yaml")
	writeFile(t, path, "plugin: make\nsource: https://example.com/x.tar.gz\nsnap: [usr/bin/x]\n")

	props, err := loadProperties(path, "x")
	require.NoError(t, err)
	assert.Equal(t, "make", props["plugin"])
	assert.Equal(t, []any{"usr/bin/x"}, props["snap"])
}

func TestLoadPropertiesProjectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	writeFile(t, path, `name: demo
parts:
  hello:
    plugin: autotools
  empty:
`)
	props, err := loadProperties(path, "hello")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"plugin": "autotools"}, props)

	props, err = loadProperties(path, "empty")
	require.NoError(t, err)
	assert.Empty(t, props)

	_, err = loadProperties(path, "missing")
	assert.ErrorContains(t, err, `no part named "missing"`)
}

func TestLoadPropertiesEdgeCases(t *testing.T) {
	props, err := loadProperties("", "x")
	require.NoError(t, err)
	assert.Empty(t, props)

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "")
	props, err = loadProperties(empty, "x")
	require.NoError(t, err)
	assert.Empty(t, props)

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "- a\n- b\n")
	_, err = loadProperties(bad, "x")
	assert.Error(t, err)

	_, err = loadProperties(filepath.Join(dir, "absent.yaml"), "x")
	assert.Error(t, err)
}

func TestWalkOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "usr", "bin", "hello"), "#!/bin/sh\n")
	writeFile(t, filepath.Join(dir, "usr", "share", "doc", "README"), "hi\n")
	require.NoError(t, os.Symlink("hello", filepath.Join(dir, "usr", "bin", "hi")))

	files, dirs, err := walkOutput(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"usr/bin/hello", "usr/bin/hi", "usr/share/doc/README"}, files)
	assert.ElementsMatch(t, []string{"usr", "usr/bin", "usr/share", "usr/share/doc"}, dirs)

	_, _, err = walkOutput(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestCandidateCarriesRecordedOutputs(t *testing.T) {
	store := states.NewStore(t.TempDir())
	recorded, err := states.New(states.Build, states.Inputs{
		Files:           []string{"bin/x"},
		Directories:     []string{"bin"},
		DependencyPaths: []string{"/stage/lib"},
	}, hostTarget)
	require.NoError(t, err)
	require.NoError(t, store.Save("x", recorded))

	c, err := stepInputs{}.candidate(store, "x", states.Build, hostTarget)
	require.NoError(t, err)
	assert.True(t, recorded.Equal(c))

	out := t.TempDir()
	writeFile(t, filepath.Join(out, "lib", "libx.so"), "")
	c, err = stepInputs{outputDir: out}.candidate(store, "x", states.Build, hostTarget)
	require.NoError(t, err)
	assert.Equal(t, states.PathSet{"lib/libx.so"}, c.Files)
	assert.Empty(t, c.DependencyPaths)
}

func TestCandidatePluginProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.yaml")
	writeFile(t, path, "plugin: go\ngo-importpath: example.com/x\ngo-buildtags: [netgo]\n")

	in := stepInputs{propertiesFile: path, buildProps: []string{"go-buildtags"}}
	c, err := in.candidate(states.NewStore(t.TempDir()), "x", states.Build, hostTarget)
	require.NoError(t, err)
	assert.Contains(t, c.Properties, "go-buildtags")
	assert.NotContains(t, c.Properties, "go-importpath")
}
