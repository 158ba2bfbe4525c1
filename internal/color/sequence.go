package color

import "fmt"

// Sequence is an ordered, cyclic list of targets fixed at startup.
type Sequence struct {
	targets []Target
}

// NewSequence builds a sequence from resolved targets.
func NewSequence(targets []Target) (*Sequence, error) {
	if len(targets) == 0 {
		return nil, ErrEmptySequence
	}
	cp := make([]Target, len(targets))
	copy(cp, targets)
	return &Sequence{targets: cp}, nil
}

// FromSpecs resolves every spec and builds a sequence.
func FromSpecs(specs []Spec) (*Sequence, error) {
	targets := make([]Target, 0, len(specs))
	for i, s := range specs {
		t, err := s.Resolve()
		if err != nil {
			if s.Name != "" {
				return nil, fmt.Errorf("color %d (%s): %w", i, s.Name, err)
			}
			return nil, fmt.Errorf("color %d: %w", i, err)
		}
		targets = append(targets, t)
	}
	return NewSequence(targets)
}

// Len returns the number of targets.
func (s *Sequence) Len() int {
	return len(s.targets)
}

// At returns the target at index i, wrapping around.
func (s *Sequence) At(i int) Target {
	n := len(s.targets)
	return s.targets[((i%n)+n)%n]
}

// Next returns the index following i.
func (s *Sequence) Next(i int) int {
	return (i + 1) % len(s.targets)
}
