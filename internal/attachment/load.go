package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldOverrides is one entry of a configuration file.
type FieldOverrides struct {
	Name      string `yaml:"name"`
	Overrides `yaml:",inline"`
}

// Document is the shape of an attachments YAML file:
//
//	defaults:
//	  finalDir: files/uploads
//	fields:
//	  - name: image
//	    dbColumn: image
//	    transforms:
//	      - method: resize
//	        width: 200
//	        dbColumn: image_thumb
type Document struct {
	Defaults Overrides        `yaml:"defaults"`
	Fields   []FieldOverrides `yaml:"fields"`
}

// Named is a resolved field configuration.
type Named struct {
	Name   string
	Config Config
}

var ErrDuplicateField = errors.New("duplicate field")

// Parse decodes a document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse attachments config: %w", err)
	}
	return &doc, nil
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachments config: %w", err)
	}
	return Parse(data)
}

// Resolve merges the document defaults over base and each field over that,
// keeping file order.
func (d *Document) Resolve(base Config) ([]Named, error) {
	defaults := Merge(base, d.Defaults)

	seen := make(map[string]bool, len(d.Fields))
	named := make([]Named, 0, len(d.Fields))
	for i, f := range d.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has no name", i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		seen[f.Name] = true
		named = append(named, Named{Name: f.Name, Config: Merge(defaults, f.Overrides)})
	}
	return named, nil
}
