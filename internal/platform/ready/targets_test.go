package ready

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrig/internal/capability"
)

func writeTargets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTargets(t *testing.T) {
	path := writeTargets(t, `
targets:
  - name: localhost
    capability:
      cores: {min: 4}
      memory_mb: {min: 8192, max: 16384}
      disk: {members: [ssd, nvme]}
      gpu: {flag: false}
      os: {enum: linux}
  - name: lab-box
    ssh: [ssh, tester@lab-box]
    capability:
      cores: {min: 16}
`)

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	local := targets[0]
	assert.Equal(t, "localhost", local.Name)
	require.NotNil(t, local.Channel)

	dims := local.Capability.Dimensions
	assert.Equal(t, capability.RangeValue(4, 4), dims["cores"])
	assert.Equal(t, capability.RangeValue(8192, 16384), dims["memory_mb"])
	assert.Equal(t, capability.KindSet, dims["disk"].Kind)
	assert.Equal(t, capability.FlagValue(false), dims["gpu"])
	assert.Equal(t, capability.EnumValue("linux"), dims["os"])

	assert.Equal(t, "lab-box", targets[1].Name)
}

func TestLoadTargets_MissingName(t *testing.T) {
	path := writeTargets(t, `
targets:
  - capability:
      cores: {min: 2}
`)
	_, err := LoadTargets(path)
	assert.ErrorContains(t, err, "needs a name")
}

func TestLoadTargets_UninferableDimension(t *testing.T) {
	path := writeTargets(t, `
targets:
  - name: bad
    capability:
      cores: {}
`)
	_, err := LoadTargets(path)
	assert.ErrorContains(t, err, "cannot infer value kind")
}

func TestLoadTargets_NoFile(t *testing.T) {
	_, err := LoadTargets(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
