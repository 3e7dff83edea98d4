package tour

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDefinition is returned when a tour cannot be started or loaded
// because its definition is malformed.
var ErrInvalidDefinition = errors.New("invalid tour definition")

// Placement is the position of the popover relative to its target.
type Placement string

const (
	PlacementTop    Placement = "top"
	PlacementBottom Placement = "bottom"
	PlacementLeft   Placement = "left"
	PlacementRight  Placement = "right"
	PlacementCenter Placement = "center"
)

// Valid reports whether p is one of the known placements.
func (p Placement) Valid() bool {
	switch p {
	case PlacementTop, PlacementBottom, PlacementLeft, PlacementRight, PlacementCenter:
		return true
	}
	return false
}

// Content is what every step displays.
type Content struct {
	Target    string    `json:"target,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Placement Placement `json:"placement"`
}

// Anchored reports whether the step points at an element at all.
func (c Content) Anchored() bool {
	return strings.TrimSpace(c.Target) != ""
}

// Position resolves an empty placement: centered when there is no target,
// below the target otherwise.
func (c Content) Position() Placement {
	if !c.Anchored() {
		return PlacementCenter
	}
	if c.Placement == "" {
		return PlacementBottom
	}
	return c.Placement
}

// Step is one stop in a tour. It is either a PlainStep or a NavigatingStep.
type Step interface {
	StepContent() Content
	isStep()
}

// PlainStep is shown in place and advanced with Next.
type PlainStep struct {
	Content
}

func (s PlainStep) StepContent() Content { return s.Content }
func (PlainStep) isStep()                {}

// NavigatingStep has to leave the current page before the tour can go on.
// A nil Continuation means "the rest of this tour, on the destination page".
type NavigatingStep struct {
	Content
	Destination  string
	Continuation *Definition
}

func (s NavigatingStep) StepContent() Content { return s.Content }
func (NavigatingStep) isStep()                {}

// Definition is an immutable, named sequence of steps.
//
// Offset and Total are only set on a remainder derived from another
// definition: Offset is the parent index of Steps[0] and Total is the
// parent's step count.
type Definition struct {
	Name   string
	Steps  []Step
	Offset int
	Total  int
}

// Len returns the number of steps held by this definition.
func (d *Definition) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Steps)
}

// TotalSteps is the step count reported to the progress store.
func (d *Definition) TotalSteps() int {
	if d.Total > 0 {
		return d.Total
	}
	return d.Offset + len(d.Steps)
}

// Remainder returns the steps after index i under the same name, or false
// when i is the last step.
func (d *Definition) Remainder(i int) (*Definition, bool) {
	if i < 0 || i+1 >= len(d.Steps) {
		return nil, false
	}
	return &Definition{
		Name:   d.Name,
		Steps:  d.Steps[i+1:],
		Offset: d.Offset + i + 1,
		Total:  d.TotalSteps(),
	}, true
}

// ContinuationAt returns what should run on the destination page of the
// navigating step at index i.
func (d *Definition) ContinuationAt(i int) (*Definition, bool) {
	if i < 0 || i >= len(d.Steps) {
		return nil, false
	}
	nav, ok := d.Steps[i].(NavigatingStep)
	if !ok {
		return nil, false
	}
	if nav.Continuation != nil {
		return nav.Continuation, true
	}
	return d.Remainder(i)
}

// Validate checks the definition and returns every problem found, wrapped
// in ErrInvalidDefinition.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "tour must have a name")
	}
	if len(d.Steps) == 0 {
		problems = append(problems, "tour must have at least one step")
	}
	for i, step := range d.Steps {
		if step == nil {
			problems = append(problems, fmt.Sprintf("step %d is empty", i))
			continue
		}
		c := step.StepContent()
		if strings.TrimSpace(c.Title) == "" {
			problems = append(problems, fmt.Sprintf("step %d must have a title", i))
		}
		if c.Placement != "" && !c.Placement.Valid() {
			problems = append(problems, fmt.Sprintf("step %d has unknown placement %q", i, c.Placement))
		}
		if nav, ok := step.(NavigatingStep); ok {
			if !strings.HasPrefix(nav.Destination, "/") {
				problems = append(problems, fmt.Sprintf("step %d navigation path %q must start with /", i, nav.Destination))
			}
			if nav.Continuation == nil && i == len(d.Steps)-1 {
				problems = append(problems, fmt.Sprintf("step %d navigates away but nothing continues on %s", i, nav.Destination))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidDefinition, d.Name, strings.Join(problems, "; "))
	}
	return nil
}
