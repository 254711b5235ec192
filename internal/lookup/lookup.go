// Package lookup loads the land cover to nitrogen loading table.
package lookup

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

//go:embed nlcd.yaml
var defaultTable []byte

// Class is one land cover class.
type Class struct {
	Code  int     `yaml:"code" json:"code"`
	Label string  `yaml:"label" json:"label"`
	Load  float64 `yaml:"load" json:"load"`
	Water bool    `yaml:"water" json:"water"`
}

// Validate checks the class fields.
func (c Class) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Code, validation.Min(0)),
		validation.Field(&c.Label, validation.Required),
		validation.Field(&c.Load, validation.Min(0.), validation.Max(100.)),
	)
}

// Table maps land cover codes to classes.
type Table struct {
	classes map[int]Class
}

// Default returns the embedded NLCD table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("lookup: embedded table: %v", err))
	}
	return t
}

// Load reads a table from path, or returns Default when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lookup: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML table.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Classes []Class `yaml:"classes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lookup: parse: %w", err)
	}
	if len(doc.Classes) == 0 {
		return nil, fmt.Errorf("lookup: table has no classes")
	}
	t := &Table{classes: make(map[int]Class, len(doc.Classes))}
	for _, c := range doc.Classes {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("lookup: class %d: %w", c.Code, err)
		}
		if _, dup := t.classes[c.Code]; dup {
			return nil, fmt.Errorf("lookup: duplicate class %d", c.Code)
		}
		t.classes[c.Code] = c
	}
	return t, nil
}

// Class returns the class for a raster value.
func (t *Table) Class(v float64) (Class, bool) {
	code := int(v)
	if float64(code) != v {
		return Class{}, false
	}
	c, ok := t.classes[code]
	return c, ok
}

// IsWater reports whether v is an open water class.
func (t *Table) IsWater(v float64) bool {
	c, ok := t.Class(v)
	return ok && c.Water
}

// Classes returns every class ordered by code.
func (t *Table) Classes() []Class {
	out := make([]Class, 0, len(t.classes))
	for _, c := range t.classes {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Class) int { return a.Code - b.Code })
	return out
}
