package recon

import "fmt"

// SolverClass is the per-record dispatch decision: which solver, if any,
// applies given the number of valid measurements. The decision is made once
// per record so it can be tested independently of the solve itself.
type SolverClass int

const (
	// ClassUnreconstructable marks records with fewer than three valid
	// measurements; their result is NaN/NaN and never persisted.
	ClassUnreconstructable SolverClass = iota
	// ClassDirect marks records with exactly three valid measurements,
	// solved with the closed-form plane-wave system.
	ClassDirect
	// ClassFit marks records with four or more valid measurements, solved
	// by least squares over the same plane-wave model.
	ClassFit
)

// Classify maps a valid-measurement count to its solver class.
func Classify(validCount int) SolverClass {
	switch {
	case validCount < 3:
		return ClassUnreconstructable
	case validCount == 3:
		return ClassDirect
	default:
		return ClassFit
	}
}

func (c SolverClass) String() string {
	switch c {
	case ClassUnreconstructable:
		return "unreconstructable"
	case ClassDirect:
		return "direct"
	case ClassFit:
		return "fit"
	default:
		return fmt.Sprintf("SolverClass(%d)", int(c))
	}
}
