package core

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// StepKind classifies how a pipeline step is driven.
type StepKind string

const (
	// StepKindAgent steps are executed by the external agent process.
	StepKindAgent StepKind = "agent"

	// StepKindHumanReview steps present an artifact the user edits and
	// explicitly completes.
	StepKindHumanReview StepKind = "human_review"

	// StepKindRefinement is the terminal completion step, offering
	// "mark complete" and "skip" actions.
	StepKindRefinement StepKind = "refinement"
)

// ValidStepKind checks if a kind string is valid.
func ValidStepKind(k StepKind) bool {
	switch k {
	case StepKindAgent, StepKindHumanReview, StepKindRefinement:
		return true
	default:
		return false
	}
}

// Step is one entry of the fixed pipeline description. Pure data.
type Step struct {
	ID   int      `yaml:"-"`
	Name string   `yaml:"name"`
	Kind StepKind `yaml:"kind"`

	// ArtifactPath is the relative path of the document a human_review
	// step reviews and edits. Empty for other kinds.
	ArtifactPath string `yaml:"artifact"`

	// AutoAdvance marks an agent step as non-interactive under debug mode:
	// the debug cascade completes it without invoking the agent.
	AutoAdvance bool `yaml:"auto_advance"`

	// Reasoning marks the multi-turn decisions step. Its rerun path always
	// uses the destructive reset because it owns a dedicated conversational
	// flow incompatible with the generic rerun chat.
	Reasoning bool `yaml:"reasoning"`
}

// Catalog is the static, ordered description of the pipeline steps for one
// skill-type variant. It has no mutable state.
type Catalog struct {
	variant string
	steps   []Step
}

type catalogFile struct {
	Variants map[string][]Step `yaml:"variants"`
}

// LoadCatalog returns the catalog for a named variant ("full" or "simple").
func LoadCatalog(variant string) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(catalogYAML, &f); err != nil {
		return nil, fmt.Errorf("parsing step catalog: %w", err)
	}
	steps, ok := f.Variants[variant]
	if !ok {
		return nil, ErrNotFound("catalog variant", variant)
	}
	for i := range steps {
		steps[i].ID = i
	}
	c := &Catalog{variant: variant, steps: steps}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCatalog builds a catalog from an explicit step list. Used by tests and
// by callers that need a non-standard pipeline shape.
func NewCatalog(variant string, steps []Step) (*Catalog, error) {
	for i := range steps {
		steps[i].ID = i
	}
	c := &Catalog{variant: variant, steps: steps}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	if len(c.steps) == 0 {
		return ErrValidation("EMPTY_CATALOG", "catalog must declare at least one step")
	}
	for i, s := range c.steps {
		if !ValidStepKind(s.Kind) {
			return ErrValidation("INVALID_STEP_KIND",
				fmt.Sprintf("step %d (%s): invalid kind %q", i, s.Name, s.Kind))
		}
		if s.Kind == StepKindHumanReview && s.ArtifactPath == "" {
			return ErrValidation("MISSING_ARTIFACT_PATH",
				fmt.Sprintf("human_review step %d (%s) must declare an artifact path", i, s.Name))
		}
	}
	last := c.steps[len(c.steps)-1]
	if last.Kind != StepKindRefinement {
		return ErrValidation("INVALID_FINAL_STEP",
			fmt.Sprintf("final step %s must be a refinement step", last.Name))
	}
	return nil
}

// Variant returns the catalog variant name.
func (c *Catalog) Variant() string {
	return c.variant
}

// Len returns the number of steps.
func (c *Catalog) Len() int {
	return len(c.steps)
}

// Steps returns a copy of the ordered step list.
func (c *Catalog) Steps() []Step {
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// Step returns the step with the given id. Out-of-range ids are a
// programmer error and panic.
func (c *Catalog) Step(id int) Step {
	if id < 0 || id >= len(c.steps) {
		panic(fmt.Sprintf("step id %d out of range [0,%d)", id, len(c.steps)))
	}
	return c.steps[id]
}

// StepKind returns the kind of the step with the given id.
func (c *Catalog) StepKind(id int) StepKind {
	return c.Step(id).Kind
}

// IsLastStep reports whether id is the final step of the pipeline.
func (c *Catalog) IsLastStep(id int) bool {
	c.Step(id) // range check
	return id == len(c.steps)-1
}

// IsHumanReviewStep reports whether the step requires human review.
func (c *Catalog) IsHumanReviewStep(id int) bool {
	return c.Step(id).Kind == StepKindHumanReview
}

// ArtifactPathFor returns the relative artifact path a human_review step
// edits. Empty for other kinds.
func (c *Catalog) ArtifactPathFor(id int) string {
	return c.Step(id).ArtifactPath
}
