package merge

import (
	"fmt"

	"github.com/banshee-data/sasmerge/internal/curve"
	"github.com/banshee-data/sasmerge/internal/monitoring"
)

// PassObserver is called after every pass. diagnostic is set for the passes
// whose output is meant for people: the extra pass after convergence, or
// every pass when convergence is off. Returning an error stops the run.
type PassObserver func(pass PassResult, state ConvergenceState, diagnostic bool) error

// RunOptions configures a full merge run.
type RunOptions struct {
	Pass PassOptions

	// Converge feeds each merged curve back as the next reference until the
	// chi2r vector is stable.
	Converge    bool
	Convergence ConvergenceOptions

	// Candidates are the initial references in order. Empty means the first
	// dataset.
	Candidates []curve.Curve
}

// RunResult is the outcome of Run.
type RunResult struct {
	Final  PassResult
	State  ConvergenceState
	Passes int
}

// Controller drives passes through the convergence state machine.
type Controller struct {
	opts    RunOptions
	observe PassObserver
}

// NewController returns a controller. observe may be nil.
func NewController(opts RunOptions, observe PassObserver) *Controller {
	opts.Convergence = opts.Convergence.withDefaults()
	return &Controller{opts: opts, observe: observe}
}

// Run is shorthand for NewController(opts, observe).Run(datasets).
func Run(datasets []curve.Curve, opts RunOptions, observe PassObserver) (RunResult, error) {
	return NewController(opts, observe).Run(datasets)
}

// Run merges datasets. Without convergence every initial candidate gets one
// diagnostic pass and the last one is the result. With convergence the
// candidates are followed by the merged curve of each pass until the state
// machine leaves ITERATING, then one diagnostic pass produces the result.
func (c *Controller) Run(datasets []curve.Curve) (RunResult, error) {
	if len(datasets) == 0 {
		return RunResult{}, ErrNoDatasets
	}
	candidates := c.opts.Candidates
	if len(candidates) == 0 {
		candidates = datasets[:1]
	}

	var out RunResult
	state := ConvergenceState{Phase: PhaseInit}

	if !c.opts.Converge {
		for _, ref := range candidates {
			res, err := c.pass(datasets, ref, InitialDataset, &out)
			if err != nil {
				return out, err
			}
			state.Phase = PhaseIterating
			state.Status = StatusSinglePass
			if err := c.notify(res, state, true); err != nil {
				return out, err
			}
			out.Final = res
		}
		state.Phase = PhaseDone
		out.State = state
		return out, nil
	}

	ref, kind := candidates[0], InitialDataset
	next := 1
	for !state.Finished() {
		res, err := c.pass(datasets, ref, kind, &out)
		if err != nil {
			return out, err
		}
		state = Advance(state, res.Chi2r(), kind, c.opts.Convergence)
		monitoring.Logf("pass %d (%s): %s, iteration %d", out.Passes, kind, state.Phase, state.Iterations)
		if err := c.notify(res, state, false); err != nil {
			return out, err
		}
		out.Final = res

		if next < len(candidates) {
			ref, kind = candidates[next], InitialDataset
			next++
		} else {
			ref, kind = res.Merged, PreviousMerge
		}
	}

	// Extra pass against the latest merge so the reported diagnostics
	// describe the final reference.
	state.Phase = PhaseStopping
	res, err := c.pass(datasets, out.Final.Merged, PreviousMerge, &out)
	if err != nil {
		return out, err
	}
	if state.Status == StatusConverged {
		state.Iterations++
	}
	if err := c.notify(res, state, true); err != nil {
		return out, err
	}
	state.Phase = PhaseDone
	out.Final = res
	out.State = state
	return out, nil
}

func (c *Controller) pass(datasets []curve.Curve, ref curve.Curve, kind CandidateKind, out *RunResult) (PassResult, error) {
	out.Passes++
	res, err := RunPass(datasets, ref, kind, c.opts.Pass)
	if err != nil {
		return PassResult{}, fmt.Errorf("pass %d: %w", out.Passes, err)
	}
	return res, nil
}

func (c *Controller) notify(res PassResult, state ConvergenceState, diagnostic bool) error {
	if c.observe == nil {
		return nil
	}
	return c.observe(res, state, diagnostic)
}
