package jasper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DependencyGroup is a parent report and the reports it needs compiled first.
type DependencyGroup struct {
	Parent       string
	Dependencies []string
}

// ReportSpec names the reports a Generate call needs: a single report, or parent
// reports with their dependencies. A flat list of independent reports can be
// expressed but is rejected by Generate.
type ReportSpec struct {
	single      string
	groups      []DependencyGroup
	independent []string
}

// Single is a spec for one report without dependencies.
func Single(name string) ReportSpec {
	return ReportSpec{single: name}
}

// WithDependencies compiles deps in order, then parent, and renders parent.
func WithDependencies(parent string, deps ...string) ReportSpec {
	return ReportSpec{groups: []DependencyGroup{{Parent: parent, Dependencies: deps}}}
}

// Groups is a spec with several parent groups; the last parent is rendered.
func Groups(groups ...DependencyGroup) ReportSpec {
	return ReportSpec{groups: groups}
}

// Independent is a flat list of unrelated reports. Generate does not support it.
func Independent(names ...string) ReportSpec {
	return ReportSpec{independent: names}
}

// IsZero reports whether the spec names no report at all.
func (s ReportSpec) IsZero() bool {
	return s.single == "" && len(s.groups) == 0 && len(s.independent) == 0
}

// Main returns the report that is rendered, or "" for unsupported specs.
func (s ReportSpec) Main() string {
	if s.single != "" {
		return s.single
	}
	if len(s.independent) > 0 || len(s.groups) == 0 {
		return ""
	}
	return s.groups[len(s.groups)-1].Parent
}

func (s ReportSpec) String() string {
	b, err := s.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid spec: %v>", err)
	}
	return string(b)
}

type compileStep struct {
	name string
	main bool
}

// plan returns the compile order: dependencies first, then their parent.
func (s ReportSpec) plan() ([]compileStep, error) {
	if len(s.independent) > 0 {
		return nil, fmt.Errorf("%w: multiple independent report generation isn't supported", ErrUnsupportedOperation)
	}
	if s.single != "" {
		if err := ValidateName(s.single); err != nil {
			return nil, err
		}
		return []compileStep{{name: s.single, main: true}}, nil
	}
	if len(s.groups) == 0 {
		return nil, fmt.Errorf("%w: no report given", ErrInvalidInput)
	}

	var steps []compileStep
	for i, g := range s.groups {
		if g.Parent == "" {
			return nil, fmt.Errorf("%w: empty parent report name", ErrInvalidInput)
		}
		for _, dep := range g.Dependencies {
			if dep == "" {
				return nil, fmt.Errorf("%w: empty dependency name for report %q", ErrInvalidInput, g.Parent)
			}
			steps = append(steps, compileStep{name: dep})
		}
		steps = append(steps, compileStep{name: g.Parent, main: i == len(s.groups)-1})
	}
	for _, step := range steps {
		if err := ValidateName(step.name); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

// Validate checks every report name the spec references.
func (s ReportSpec) Validate() error {
	names := append([]string(nil), s.independent...)
	if s.single != "" {
		names = append(names, s.single)
	}
	for _, g := range s.groups {
		names = append(names, g.Parent)
		names = append(names, g.Dependencies...)
	}
	for _, name := range names {
		if err := ValidateName(name); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes the spec as a string, an ordered object or an array.
func (s ReportSpec) MarshalJSON() ([]byte, error) {
	switch {
	case s.single != "":
		return json.Marshal(s.single)
	case len(s.independent) > 0:
		return json.Marshal(s.independent)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range s.groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g.Parent)
		if err != nil {
			return nil, err
		}
		deps := g.Dependencies
		if deps == nil {
			deps = []string{}
		}
		val, err := json.Marshal(deps)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts "name", {"parent": ["dep", ...]} with key order kept,
// or ["a", "b"]. Object members whose value is not a list are treated as
// independent reports.
func (s *ReportSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty report spec", ErrInvalidInput)
	}

	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*s = Single(strings.TrimSpace(name))
		return nil
	case '[':
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return fmt.Errorf("%w: report list must contain names: %v", ErrInvalidInput, err)
		}
		*s = Independent(names...)
		return nil
	case '{':
		return s.unmarshalObject(data)
	default:
		return fmt.Errorf("%w: report spec must be a name, a list or an object", ErrInvalidInput)
	}
}

func (s *ReportSpec) unmarshalObject(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}

	var spec ReportSpec
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		parent, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var deps []string
		if err := json.Unmarshal(raw, &deps); err == nil {
			spec.groups = append(spec.groups, DependencyGroup{Parent: parent, Dependencies: deps})
			continue
		}
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return fmt.Errorf("%w: dependencies of %q must be a list of names", ErrInvalidInput, parent)
		}
		spec.independent = append(spec.independent, name)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if len(spec.independent) > 0 {
		spec.groups = nil
	}
	*s = spec
	return nil
}
