// Package catalog loads the conversation field catalog and agent directory
// that seed the stores.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/social-inbox/internal/condition"
	"github.com/capitalize-ai/social-inbox/internal/model"
	"github.com/capitalize-ai/social-inbox/internal/store"
)

//go:embed fields.yaml
var defaultCatalog []byte

type document struct {
	Fields      []model.ConversationField `yaml:"fields"`
	Departments []model.Department        `yaml:"departments"`
	Agents      []model.Agent             `yaml:"agents"`
}

// Default returns the built-in catalog.
func Default() (store.Seed, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path returns the built-in catalog.
func Load(path string) (store.Seed, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return store.Seed{}, fmt.Errorf("read field catalog %s: %w", path, err)
	}
	seed, err := Parse(b)
	if err != nil {
		return store.Seed{}, fmt.Errorf("%s: %w", path, err)
	}
	return seed, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(b []byte) (store.Seed, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return store.Seed{}, fmt.Errorf("parse field catalog: %w", err)
	}
	if err := validate(doc); err != nil {
		return store.Seed{}, err
	}
	return store.Seed{
		Fields:      doc.Fields,
		Agents:      doc.Agents,
		Departments: doc.Departments,
	}, nil
}

func validate(doc document) error {
	ids := make(map[int]bool, len(doc.Fields))
	kinds := make(map[model.FieldKind]bool, len(doc.Fields))
	for _, f := range doc.Fields {
		if f.ID <= 0 {
			return fmt.Errorf("field %q: id must be positive", f.Name)
		}
		if ids[f.ID] {
			return fmt.Errorf("field %d: duplicate id", f.ID)
		}
		if !condition.Supported(f.Kind) {
			return fmt.Errorf("field %d: unsupported kind %q", f.ID, f.Kind)
		}
		if kinds[f.Kind] {
			return fmt.Errorf("field %d: duplicate kind %q", f.ID, f.Kind)
		}
		ids[f.ID] = true
		kinds[f.Kind] = true
	}

	departments := make(map[int]bool, len(doc.Departments))
	for _, d := range doc.Departments {
		departments[d.ID] = true
	}
	for _, a := range doc.Agents {
		if a.DepartmentID != nil && !departments[*a.DepartmentID] {
			return fmt.Errorf("agent %d: unknown department %d", a.ID, *a.DepartmentID)
		}
	}
	return nil
}
