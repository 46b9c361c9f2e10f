package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a persistence scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is an optional CUE vocabulary file or directory.
	// Relative paths are resolved against the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// Document is the seed content of the backing file.
	Document string `yaml:"document"`

	// TxPrefix prefixes the generated transaction ids. Defaults to "tx".
	TxPrefix string `yaml:"tx_prefix,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step kinds.
const (
	StepInvoke    = "invoke"
	StepApply     = "apply"
	StepCommitAll = "commit_all"
	StepRevertAll = "revert_all"
	StepReload    = "reload"
	StepReopen    = "reopen"
	StepOverwrite = "overwrite"
)

// Step is one action on the context.
type Step struct {
	Do     string `yaml:"do"`
	Commit bool   `yaml:"commit,omitempty"`
	Env    string `yaml:"env,omitempty"`
	Ops    []Op   `yaml:"ops,omitempty"`

	// Document replaces the backing file for overwrite, simulating an
	// outside writer.
	Document string `yaml:"document,omitempty"`

	// Error is an engine error code expected anywhere in the step's error
	// chain, e.g. NO_ELEMENT under COMMIT_FAILED. Empty means the step must
	// succeed.
	Error string `yaml:"error,omitempty"`
}

// Op kinds.
const (
	OpCreate = "create"
	OpSet    = "set"
	OpUnset  = "unset"
	OpText   = "text"
	OpDelete = "delete"
	OpDetach = "detach"
	OpMove   = "move"
)

// Op is one record mutation inside a step.
type Op struct {
	Op     string   `yaml:"op"`
	Target *Target  `yaml:"target,omitempty"`
	Parent *Target  `yaml:"parent,omitempty"`
	Tag    string   `yaml:"tag,omitempty"`
	Attrs  AttrList `yaml:"attrs,omitempty"`
	Text   string   `yaml:"text,omitempty"`
	Name   string   `yaml:"name,omitempty"`
	Value  string   `yaml:"value,omitempty"`

	// As names the created record for later targets.
	As string `yaml:"as,omitempty"`
}

// Target selects a record.
type Target struct {
	Ref   string `yaml:"ref,omitempty"`
	Tag   string `yaml:"tag,omitempty"`
	ID    string `yaml:"id,omitempty"`
	Child []int  `yaml:"child,omitempty"`
}

func (t Target) String() string {
	s := t.Ref
	if s == "" {
		s = t.ID
		if t.Tag != "" {
			s = t.Tag + ":" + t.ID
		}
	}
	for _, i := range t.Child {
		s += fmt.Sprintf("/%d", i)
	}
	return s
}

// AttrList is an ordered attribute mapping.
type AttrList []Attr

// Attr is one name/value pair of an AttrList.
type Attr struct {
	Name  string
	Value string
}

// UnmarshalYAML decodes a mapping keeping key order.
func (l *AttrList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: attrs must be a mapping", n.Line)
	}
	out := make(AttrList, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: attribute %q must be a scalar", v.Line, k.Value)
		}
		out = append(out, Attr{Name: k.Value, Value: v.Value})
	}
	*l = out
	return nil
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	Type   string  `yaml:"type"`
	Target *Target `yaml:"target,omitempty"`

	// Name and Value are used by attr; Absent expects no attribute.
	Name   string `yaml:"name,omitempty"`
	Value  string `yaml:"value,omitempty"`
	Absent bool   `yaml:"absent,omitempty"`

	// State is used by state, e.g. CLEAN.
	State string `yaml:"state,omitempty"`

	// Tag and Count are used by count; Count also by journal.
	Tag   string `yaml:"tag,omitempty"`
	Count *int   `yaml:"count,omitempty"`

	// Lines is used by notifications.
	Lines []string `yaml:"lines,omitempty"`
}

// Assertion type constants.
const (
	AssertAttr          = "attr"
	AssertText          = "text"
	AssertState         = "state"
	AssertLocked        = "locked"
	AssertExists        = "exists"
	AssertMissing       = "missing"
	AssertCount         = "count"
	AssertNotifications = "notifications"
	AssertUnchanged     = "unchanged"
	AssertJournal       = "journal"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Document == "" {
		return fmt.Errorf("document is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
			return fmt.Errorf("schema not found: %s", s.Schema)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Do {
	case StepInvoke, StepApply:
		if len(s.Ops) == 0 {
			return fmt.Errorf("steps[%d]: ops are required for %s", index, s.Do)
		}
	case StepCommitAll, StepRevertAll, StepReload, StepReopen:
		if len(s.Ops) > 0 {
			return fmt.Errorf("steps[%d]: %s takes no ops", index, s.Do)
		}
	case StepOverwrite:
		if len(s.Ops) > 0 || s.Document == "" {
			return fmt.Errorf("steps[%d]: overwrite takes a document and no ops", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, s.Do)
	}

	for j, op := range s.Ops {
		if err := validateOp(index, j, &op); err != nil {
			return err
		}
	}
	return nil
}

func validateOp(step, index int, op *Op) error {
	where := fmt.Sprintf("steps[%d].ops[%d]", step, index)
	switch op.Op {
	case OpCreate:
		if op.Tag == "" {
			return fmt.Errorf("%s: tag is required for create", where)
		}
		return nil
	case OpSet, OpUnset:
		if op.Name == "" {
			return fmt.Errorf("%s: name is required for %s", where, op.Op)
		}
	case OpMove:
		if op.Parent == nil {
			return fmt.Errorf("%s: parent is required for move", where)
		}
	case OpText, OpDelete, OpDetach:
	case "":
		return fmt.Errorf("%s: op is required", where)
	default:
		return fmt.Errorf("%s: unknown op %q", where, op.Op)
	}
	if op.Target == nil {
		return fmt.Errorf("%s: target is required for %s", where, op.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertAttr:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for attr", index)
		}
		fallthrough
	case AssertText, AssertState, AssertLocked, AssertExists, AssertMissing:
		if a.Target == nil {
			return fmt.Errorf("assertions[%d]: target is required for %s", index, a.Type)
		}
		if a.Type == AssertState && a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for state", index)
		}
	case AssertCount, AssertJournal:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
	case AssertNotifications, AssertUnchanged:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
