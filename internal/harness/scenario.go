package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lanetrace/lanetrace/internal/config"
)

// Scenario defines a conformance test scenario: a sequence of producer steps
// run against a fresh timeline, each with an expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario (and its golden file).
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Options configures the timeline under test. Omitted fields take the
	// documented defaults.
	Options *config.Options `yaml:"options,omitempty"`

	// Steps are executed in order against one timeline.
	Steps []Step `yaml:"steps"`
}

// Step is one producer operation. Exactly one operation field must be set.
//
// Expect names the error code the operation must fail with; an empty Expect
// means the operation must succeed.
type Step struct {
	Intern   *InternStep   `yaml:"intern,omitempty"`
	Begin    *BeginStep    `yaml:"begin,omitempty"`
	End      *EndStep      `yaml:"end,omitempty"`
	Annotate *AnnotateStep `yaml:"annotate,omitempty"`
	Wake     *WakeStep     `yaml:"wake,omitempty"`
	Edge     *EdgeStep     `yaml:"edge,omitempty"`
	Prune    *PruneStep    `yaml:"prune,omitempty"`

	Expect string `yaml:"expect,omitempty"`
}

// InternStep interns an entity by key.
type InternStep struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label,omitempty"`
}

// BeginStep opens an interval for a previously interned entity. The handle
// names the resulting ref for later steps.
type BeginStep struct {
	Entity   string            `yaml:"entity"`
	Source   string            `yaml:"source,omitempty"`
	Handle   string            `yaml:"handle"`
	Start    int64             `yaml:"start"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// EndStep closes the interval named by handle.
type EndStep struct {
	Handle string `yaml:"handle"`
	End    int64  `yaml:"end"`
}

// AnnotateStep sets one metadata key on the interval named by handle.
type AnnotateStep struct {
	Handle string `yaml:"handle"`
	Key    string `yaml:"key"`
	Value  string `yaml:"value"`
}

// WakeStep records a wake edge between two handles, optionally with the
// observed wake timestamp.
type WakeStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	At   *int64 `yaml:"at,omitempty"`
}

// EdgeStep records a causal edge of an arbitrary kind between two handles.
// Kind is "wakes", "precedes", or a custom tag.
type EdgeStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Kind string `yaml:"kind"`
}

// PruneStep prunes every sealed interval ending before the cutoff.
type PruneStep struct {
	Before int64 `yaml:"before"`
}

// op returns the step's single operation name, or an error when the step is
// empty or ambiguous.
func (s Step) op() (string, error) {
	var ops []string
	if s.Intern != nil {
		ops = append(ops, "intern")
	}
	if s.Begin != nil {
		ops = append(ops, "begin")
	}
	if s.End != nil {
		ops = append(ops, "end")
	}
	if s.Annotate != nil {
		ops = append(ops, "annotate")
	}
	if s.Wake != nil {
		ops = append(ops, "wake")
	}
	if s.Edge != nil {
		ops = append(ops, "edge")
	}
	if s.Prune != nil {
		ops = append(ops, "prune")
	}
	switch len(ops) {
	case 1:
		return ops[0], nil
	case 0:
		return "", fmt.Errorf("step has no operation")
	default:
		return "", fmt.Errorf("step has %d operations %v, want exactly one", len(ops), ops)
	}
}

// ParseScenario decodes a scenario from YAML, rejecting unknown fields.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario has no name")
	}
	for i, step := range s.Steps {
		if _, err := step.op(); err != nil {
			return nil, fmt.Errorf("scenario %q step %d: %w", s.Name, i, err)
		}
	}
	return &s, nil
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}
