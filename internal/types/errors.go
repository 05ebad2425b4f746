package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIndexPurged is returned by evidence operations on a destroyed index.
var ErrIndexPurged = errors.New("evidence index not found")

// StructuralError reports an outline that fails validation.
type StructuralError struct {
	Problems []string
}

func (e *StructuralError) Error() string {
	return "invalid outline: " + strings.Join(e.Problems, "; ")
}

// CapabilityError wraps a failed call into a planning or writing capability.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// ValidateOutline checks the outline shape: 2-4 top-level sections, each
// with either no sub-headings or 2-4 of them.
func ValidateOutline(o *Outline) error {
	if o == nil {
		return &StructuralError{Problems: []string{"outline is empty"}}
	}

	var problems []string
	if strings.TrimSpace(o.Title) == "" {
		problems = append(problems, "missing title")
	}
	if n := len(o.Sections); n < 2 || n > 4 {
		problems = append(problems, fmt.Sprintf("expected 2-4 top-level sections, got %d", n))
	}
	for i, s := range o.Sections {
		if strings.TrimSpace(s.Level1) == "" {
			problems = append(problems, fmt.Sprintf("section %d has no title", i+1))
		}
		if n := len(s.Level2); n != 0 && (n < 2 || n > 4) {
			problems = append(problems, fmt.Sprintf("section %q has %d sub-headings, expected 0 or 2-4", s.Level1, n))
		}
	}

	if len(problems) > 0 {
		return &StructuralError{Problems: problems}
	}
	return nil
}
