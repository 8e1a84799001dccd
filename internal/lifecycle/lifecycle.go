// Package lifecycle decides which steps of a part must run by comparing
// freshly built step states with the ones recorded after the last
// successful run.
package lifecycle

import (
	"fmt"
	"io"

	"kiln/internal/states"
)

// Action is the decision for one step.
type Action int

const (
	Skip Action = iota
	Run
)

func (a Action) String() string {
	if a == Run {
		return "run"
	}
	return "skip"
}

// Decision is the plan for one step of a part.
type Decision struct {
	Step   states.Step
	Action Action
	Reason string
}

// Plan is the ordered list of decisions for one part.
type Plan struct {
	Part      string
	Decisions []Decision
}

// FirstRun returns the earliest step that must run.
func (p Plan) FirstRun() (states.Step, bool) {
	for _, d := range p.Decisions {
		if d.Action == Run {
			return d.Step, true
		}
	}
	return 0, false
}

// UpToDate reports whether every step can be skipped.
func (p Plan) UpToDate() bool {
	_, found := p.FirstRun()
	return !found
}

// Planner compares candidate states with the store.
type Planner struct {
	Store *states.Store
	Log   io.Writer // nil discards
}

// Plan decides run/skip for every step of part. candidates holds the state
// each step would record if it ran now; a step without a candidate is
// compared only by presence of a recorded state. The first step that is
// missing or differs runs, and so does every step after it.
//
// A corrupt recorded state aborts planning.
func (p *Planner) Plan(part string, candidates map[states.Step]states.State) (Plan, error) {
	log := p.log()
	plan := Plan{Part: part}
	dirty := false
	var dirtyStep states.Step

	for _, step := range states.Steps() {
		if dirty {
			plan.Decisions = append(plan.Decisions, Decision{
				Step:   step,
				Action: Run,
				Reason: fmt.Sprintf("%s step runs again", dirtyStep),
			})
			continue
		}

		recorded, ok, err := p.Store.Load(part, step)
		if err != nil {
			return Plan{}, err
		}
		if !ok {
			dirty, dirtyStep = true, step
			plan.Decisions = append(plan.Decisions, Decision{Step: step, Action: Run, Reason: "no recorded state"})
			continue
		}

		candidate, have := candidates[step]
		if !have {
			plan.Decisions = append(plan.Decisions, Decision{Step: step, Action: Skip, Reason: "recorded"})
			continue
		}
		report := states.Diff(recorded, candidate)
		if report.Dirty() {
			dirty, dirtyStep = true, step
			fmt.Fprintf(log, "%s: %s step is dirty: %s\n", part, step, report)
			plan.Decisions = append(plan.Decisions, Decision{Step: step, Action: Run, Reason: report.String()})
			continue
		}
		plan.Decisions = append(plan.Decisions, Decision{Step: step, Action: Skip, Reason: "up to date"})
	}
	return plan, nil
}

// Record persists state after its step ran successfully. Recorded states of
// later steps are dropped: they were produced from the superseded output.
func (p *Planner) Record(part string, state states.State) error {
	if err := p.Store.Save(part, state); err != nil {
		return fmt.Errorf("record %s state of %s: %w", state.Step, part, err)
	}
	for _, later := range state.Step.Later() {
		if err := p.Store.Remove(part, later); err != nil {
			return fmt.Errorf("clear %s state of %s: %w", later, part, err)
		}
	}
	fmt.Fprintf(p.log(), "%s: recorded %s state\n", part, state.Step)
	return nil
}

// Clean removes the recorded states of from and every later step.
func (p *Planner) Clean(part string, from states.Step) error {
	for _, step := range append([]states.Step{from}, from.Later()...) {
		if err := p.Store.Remove(part, step); err != nil {
			return fmt.Errorf("clean %s state of %s: %w", step, part, err)
		}
	}
	return nil
}

func (p *Planner) log() io.Writer {
	if p.Log == nil {
		return io.Discard
	}
	return p.Log
}
