package merge

import "math"

const (
	// DefaultThreshold is the largest per-dataset chi2r change still counted
	// as stable between consecutive passes.
	DefaultThreshold = 1e-4

	// DefaultMaxIterations caps the number of merge-as-reference passes.
	DefaultMaxIterations = 20
)

// Phase is a step of the convergence state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseIterating
	PhaseStable
	PhaseStopping
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseIterating:
		return "iterating"
	case PhaseStable:
		return "stable"
	case PhaseStopping:
		return "stopping"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Status is how a run ended.
type Status int

const (
	StatusRunning Status = iota
	StatusConverged
	StatusMaxIterations
	StatusSinglePass
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusConverged:
		return "converged"
	case StatusMaxIterations:
		return "max_iterations"
	case StatusSinglePass:
		return "single_pass"
	}
	return "unknown"
}

// CandidateKind says where a pass's reference came from.
type CandidateKind int

const (
	// InitialDataset is a reference chosen by the reference selector.
	InitialDataset CandidateKind = iota
	// PreviousMerge is the merged curve of the preceding pass.
	PreviousMerge
)

func (k CandidateKind) String() string {
	if k == PreviousMerge {
		return "previous_merge"
	}
	return "initial_dataset"
}

// ConvergenceOptions tunes stability detection.
type ConvergenceOptions struct {
	Threshold     float64
	MaxIterations int
}

func (o ConvergenceOptions) withDefaults() ConvergenceOptions {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// ConvergenceState is the only state carried from one pass to the next.
type ConvergenceState struct {
	Phase Phase

	// Previous is the chi2r vector of the last unstable pass, nil before the
	// first pass.
	Previous []float64

	// Iterations counts passes whose reference was the previous merge. On
	// convergence it includes the closing diagnostic pass; at the iteration
	// cap it stops at MaxIterations.
	Iterations int

	Status Status
}

// Finished reports whether no further convergence pass should run.
func (s ConvergenceState) Finished() bool {
	return s.Phase == PhaseStable || s.Phase == PhaseStopping || s.Phase == PhaseDone
}

// Advance folds the chi2r vector of a completed pass into s and returns the
// next state. It does not modify s.
func Advance(s ConvergenceState, chi2r []float64, kind CandidateKind, opts ConvergenceOptions) ConvergenceState {
	opts = opts.withDefaults()
	next := s
	if next.Phase == PhaseInit {
		next.Phase = PhaseIterating
	}
	if kind == PreviousMerge {
		next.Iterations++
	}

	if s.Previous != nil && Stable(s.Previous, chi2r, opts.Threshold) {
		next.Phase = PhaseStable
		next.Status = StatusConverged
		return next
	}

	next.Previous = append([]float64(nil), chi2r...)
	if next.Iterations >= opts.MaxIterations {
		next.Phase = PhaseStopping
		next.Status = StatusMaxIterations
	}
	return next
}

// Stable reports whether every entry of cur is within threshold of prev.
// NaN entries mark skipped datasets and only match NaN.
func Stable(prev, cur []float64, threshold float64) bool {
	if len(prev) != len(cur) {
		return false
	}
	for k := range cur {
		p, c := prev[k], cur[k]
		if math.IsNaN(p) || math.IsNaN(c) {
			if math.IsNaN(p) != math.IsNaN(c) {
				return false
			}
			continue
		}
		if math.Abs(c-p) > threshold {
			return false
		}
	}
	return true
}
