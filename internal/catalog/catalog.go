// Package catalog maps public report names to the templates that build them,
// together with a default output format and default parameters.
package catalog

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"jasper_srv/internal/jasper"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrUnknownReport is returned by Resolve for names missing from the catalog.
var ErrUnknownReport = fmt.Errorf("%w: unknown report", jasper.ErrNotFound)

// Entry is one named report.
type Entry struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Spec        jasper.ReportSpec `json:"spec"`
	Format      string            `json:"format"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// MergeParameters returns the entry defaults overridden by params.
func (e Entry) MergeParameters(params map[string]string) map[string]string {
	out := make(map[string]string, len(e.Parameters)+len(params))
	maps.Copy(out, e.Parameters)
	maps.Copy(out, params)
	return out
}

// Catalog is an immutable set of entries.
type Catalog struct {
	entries map[string]Entry
}

type fileFormat struct {
	Reports map[string]rawEntry `yaml:"reports"`
}

type rawEntry struct {
	Description string            `yaml:"description"`
	Spec        yaml.Node         `yaml:"spec"`
	Format      string            `yaml:"format"`
	Parameters  map[string]string `yaml:"parameters"`
}

// Empty returns a catalog without entries.
func Empty() *Catalog {
	return &Catalog{entries: map[string]Entry{}}
}

// Load reads a catalog file. An empty path yields an empty catalog.
func Load(fsys afero.Fs, path string) (*Catalog, error) {
	if path == "" {
		return Empty(), nil
	}
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a catalog document:
//
//	reports:
//	  invoice:
//	    spec: {invoice: [invoice_lines, invoice_totals]}
//	    format: pdf
//	    parameters: {company: ACME}
//
// spec accepts a report name, a mapping of parents to dependency lists, or a
// list of names. When spec is omitted the entry name is the template name.
func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	c := Empty()
	for name, raw := range f.Reports {
		if name == "" {
			return nil, errors.New("report with empty name")
		}
		spec, err := specFromNode(name, &raw.Spec)
		if err != nil {
			return nil, fmt.Errorf("report %q: %w", name, err)
		}
		format := raw.Format
		if format == "" {
			format = "pdf"
		}
		if !jasper.ValidFormat(format) {
			return nil, fmt.Errorf("report %q: %w: %s", name, jasper.ErrInvalidFormat, format)
		}
		c.entries[name] = Entry{
			Name:        name,
			Description: raw.Description,
			Spec:        spec,
			Format:      format,
			Parameters:  raw.Parameters,
		}
	}
	return c, nil
}

func specFromNode(name string, node *yaml.Node) (jasper.ReportSpec, error) {
	switch node.Kind {
	case 0:
		return jasper.Single(name), nil
	case yaml.ScalarNode:
		if node.Value == "" {
			return jasper.Single(name), nil
		}
		return jasper.Single(node.Value), nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return jasper.ReportSpec{}, fmt.Errorf("spec list: %w", err)
		}
		return jasper.Independent(names...), nil
	case yaml.MappingNode:
		// keep document order, the last parent is the rendered one
		var groups []jasper.DependencyGroup
		for i := 0; i+1 < len(node.Content); i += 2 {
			parent, deps := node.Content[i], node.Content[i+1]
			if deps.Kind != yaml.SequenceNode {
				return jasper.ReportSpec{}, fmt.Errorf("dependencies of %q must be a list", parent.Value)
			}
			var names []string
			if err := deps.Decode(&names); err != nil {
				return jasper.ReportSpec{}, fmt.Errorf("dependencies of %q: %w", parent.Value, err)
			}
			groups = append(groups, jasper.DependencyGroup{Parent: parent.Value, Dependencies: names})
		}
		return jasper.Groups(groups...), nil
	default:
		return jasper.ReportSpec{}, fmt.Errorf("unsupported spec node at line %d", node.Line)
	}
}

// Resolve returns the entry registered under name.
func (c *Catalog) Resolve(name string) (Entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownReport, name)
	}
	return e, nil
}

// Names lists the registered reports in alphabetical order.
func (c *Catalog) Names() []string {
	return slices.Sorted(maps.Keys(c.entries))
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
