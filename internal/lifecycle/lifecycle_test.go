package lifecycle

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/arch"
	"kiln/internal/states"
)

var target = arch.Target{HostMachine: "x86_64", Platform: "x86_64", Triplet: "x86_64-linux-gnu", DebArch: "amd64", KernelArch: "x86"}

var properties = map[string]any{
	"source": "https://example.com/hello.tar.gz",
	"plugin": "autotools",
	"stage":  []string{"usr/bin/hello"},
	"snap":   []string{"usr/bin/hello"},
}

func candidates(t *testing.T, props map[string]any, tgt arch.Target) map[states.Step]states.State {
	t.Helper()
	out := make(map[states.Step]states.State)
	for _, step := range states.Steps() {
		s, err := states.New(step, states.Inputs{
			Files:       []string{"usr/bin/hello"},
			Directories: []string{"usr", "usr/bin"},
			Properties:  props,
		}, tgt)
		require.NoError(t, err)
		out[step] = s
	}
	return out
}

func recordAll(t *testing.T, p *Planner, part string, c map[states.Step]states.State) {
	t.Helper()
	for _, step := range states.Steps() {
		require.NoError(t, p.Record(part, c[step]))
	}
}

func actions(plan Plan) []Action {
	var out []Action
	for _, d := range plan.Decisions {
		out = append(out, d.Action)
	}
	return out
}

func TestPlanFreshPartRunsEverything(t *testing.T) {
	p := &Planner{Store: states.NewStore(t.TempDir())}
	plan, err := p.Plan("hello", candidates(t, properties, target))
	require.NoError(t, err)

	assert.Equal(t, []Action{Run, Run, Run, Run}, actions(plan))
	first, ok := plan.FirstRun()
	require.True(t, ok)
	assert.Equal(t, states.Pull, first)
	assert.Equal(t, "no recorded state", plan.Decisions[0].Reason)
	assert.False(t, plan.UpToDate())
}

func TestPlanUpToDate(t *testing.T) {
	p := &Planner{Store: states.NewStore(t.TempDir())}
	c := candidates(t, properties, target)
	recordAll(t, p, "hello", c)

	plan, err := p.Plan("hello", candidates(t, properties, target))
	require.NoError(t, err)
	assert.True(t, plan.UpToDate())
	assert.Equal(t, []Action{Skip, Skip, Skip, Skip}, actions(plan))
}

func TestPlanUnrelatedChangeDoesNotRebuild(t *testing.T) {
	p := &Planner{Store: states.NewStore(t.TempDir())}
	recordAll(t, p, "hello", candidates(t, properties, target))

	changed := map[string]any{}
	for k, v := range properties {
		changed[k] = v
	}
	changed["description"] = "now with a description"

	plan, err := p.Plan("hello", candidates(t, changed, target))
	require.NoError(t, err)
	assert.True(t, plan.UpToDate())
}

func TestPlanDirtyStepPropagates(t *testing.T) {
	var log bytes.Buffer
	p := &Planner{Store: states.NewStore(t.TempDir()), Log: &log}
	recordAll(t, p, "hello", candidates(t, properties, target))

	changed := map[string]any{}
	for k, v := range properties {
		changed[k] = v
	}
	changed["stage"] = []string{"usr/bin/hello", "usr/share/man"}

	plan, err := p.Plan("hello", candidates(t, changed, target))
	require.NoError(t, err)
	assert.Equal(t, []Action{Skip, Skip, Run, Run}, actions(plan))
	assert.Contains(t, plan.Decisions[2].Reason, `"stage" part property`)
	assert.Equal(t, "stage step runs again", plan.Decisions[3].Reason)
	assert.Contains(t, log.String(), "hello: stage step is dirty")
}

func TestPlanTargetChangeRebuildsFromPull(t *testing.T) {
	p := &Planner{Store: states.NewStore(t.TempDir())}
	recordAll(t, p, "hello", candidates(t, properties, target))

	armhf := arch.Target{HostMachine: "aarch64", Platform: "armv7l", Triplet: "arm-linux-gnueabihf", DebArch: "armhf", KernelArch: "arm64"}
	plan, err := p.Plan("hello", candidates(t, properties, armhf))
	require.NoError(t, err)
	assert.Equal(t, []Action{Run, Run, Run, Run}, actions(plan))
}

func TestPlanCorruptStateAborts(t *testing.T) {
	store := states.NewStore(t.TempDir())
	p := &Planner{Store: store}
	recordAll(t, p, "hello", candidates(t, properties, target))
	require.NoError(t, os.WriteFile(store.Path("hello", states.Build), []byte("garbage: ["), 0o644))

	_, err := p.Plan("hello", candidates(t, properties, target))
	var corrupt *states.CorruptStateError
	require.ErrorAs(t, err, &corrupt)
}

func TestPlanWithoutCandidateUsesPresence(t *testing.T) {
	p := &Planner{Store: states.NewStore(t.TempDir())}
	c := candidates(t, properties, target)
	require.NoError(t, p.Record("hello", c[states.Pull]))

	plan, err := p.Plan("hello", map[states.Step]states.State{})
	require.NoError(t, err)
	assert.Equal(t, []Action{Skip, Run, Run, Run}, actions(plan))
}

func TestRecordDropsLaterStates(t *testing.T) {
	store := states.NewStore(t.TempDir())
	p := &Planner{Store: store}
	c := candidates(t, properties, target)
	recordAll(t, p, "hello", c)

	require.NoError(t, p.Record("hello", c[states.Build]))

	for step, want := range map[states.Step]bool{
		states.Pull: true, states.Build: true, states.Stage: false, states.Prime: false,
	} {
		_, ok, err := store.Load("hello", step)
		require.NoError(t, err)
		assert.Equal(t, want, ok, step.String())
	}
}

func TestClean(t *testing.T) {
	store := states.NewStore(t.TempDir())
	p := &Planner{Store: store}
	recordAll(t, p, "hello", candidates(t, properties, target))

	require.NoError(t, p.Clean("hello", states.Stage))
	for step, want := range map[states.Step]bool{
		states.Pull: true, states.Build: true, states.Stage: false, states.Prime: false,
	} {
		_, ok, err := store.Load("hello", step)
		require.NoError(t, err)
		assert.Equal(t, want, ok, step.String())
	}

	require.NoError(t, p.Clean("hello", states.Pull))
	plan, err := p.Plan("hello", nil)
	require.NoError(t, err)
	assert.Equal(t, []Action{Run, Run, Run, Run}, actions(plan))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "run", Run.String())
	assert.Equal(t, "skip", Skip.String())
}
