package kiln

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/states"
)

func TestStateMatrix(t *testing.T) {
	store := seedStore(t, "hello", states.Pull, states.Build)
	require.NoError(t, copyPart(seedStore(t, "world", states.Pull, states.Prime), store, "world"))
	require.NoError(t, os.WriteFile(store.Path("world", states.Prime), []byte("garbage"), 0o644))

	rows, err := stateMatrix(store)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "hello", rows[0].Part)
	assert.Equal(t, [4]cellStatus{statusRecorded, statusRecorded, statusMissing, statusMissing}, rows[0].Status)
	assert.Equal(t, "world", rows[1].Part)
	assert.Equal(t, [4]cellStatus{statusRecorded, statusMissing, statusMissing, statusCorrupt}, rows[1].Status)
	assert.Error(t, rows[1].Errs[states.Prime])
}

func TestRenderMatrix(t *testing.T) {
	rows := []partRow{
		{Part: "hello", Status: [4]cellStatus{statusRecorded, statusRecorded, statusMissing, statusMissing}},
		{Part: "a-much-longer-part", Status: [4]cellStatus{statusRecorded, statusCorrupt, statusMissing, statusMissing}},
	}
	var out bytes.Buffer
	require.NoError(t, renderMatrix(&out, rows))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"PART", "PULL", "BUILD", "STAGE", "PRIME"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"hello", "recorded", "recorded", "-", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"a-much-longer-part", "recorded", "corrupt", "-", "-"}, strings.Fields(lines[2]))
	// columns line up
	assert.Equal(t, strings.Index(lines[0], "PULL"), strings.Index(lines[1], "recorded"))
}

func TestStateText(t *testing.T) {
	store := seedStore(t, "hello", states.Pull)
	assert.Contains(t, stateText(store, "hello", states.Pull), "step: pull")
	assert.Equal(t, "no recorded state", stateText(store, "hello", states.Build))
}
