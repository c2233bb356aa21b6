package validate

import (
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// maxDomainSize is the largest distinct-value count for which InferSchema
// pins a string feature to its observed values.
const maxDomainSize = 20

// Feature describes what a column is expected to hold.
type Feature struct {
	Name     string   `yaml:"name"`
	Type     Kind     `yaml:"type"`
	Required bool     `yaml:"required"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
	Domain   []string `yaml:"domain,omitempty"`
}

// Schema is the expected shape of a dataset.
type Schema struct {
	Features []Feature `yaml:"features"`
}

// Feature looks up a feature by name.
func (s *Schema) Feature(name string) (*Feature, bool) {
	for i := range s.Features {
		if s.Features[i].Name == name {
			return &s.Features[i], true
		}
	}
	return nil, false
}

// InferSchema derives a schema from observed statistics. Numeric ranges are
// never inferred; they only come from a supplied schema.
func InferSchema(stats *Statistics) *Schema {
	s := &Schema{Features: make([]Feature, 0, len(stats.Features))}
	for _, fs := range stats.Features {
		f := Feature{
			Name:     fs.Name,
			Type:     fs.Kind,
			Required: fs.Count > 0 && fs.Missing == 0,
		}

		if fs.Kind == KindString && fs.Distinct > 0 && fs.Distinct <= maxDomainSize && fs.Distinct*2 <= fs.Present() {
			f.Domain = append([]string{}, fs.Values...)
		}

		s.Features = append(s.Features, f)
	}
	return s
}

// ParseSchema decodes a YAML schema document.
func ParseSchema(b []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, xerrors.Errorf("failed to parse schema: %w", err)
	}

	for i, f := range s.Features {
		if f.Name == "" {
			return nil, xerrors.Errorf("feature %d has no name", i)
		}
		switch f.Type {
		case "":
			s.Features[i].Type = KindString
		case KindInt, KindFloat, KindBool, KindTimestamp, KindString:
		default:
			return nil, xerrors.Errorf("feature %s has unknown type %q", f.Name, f.Type)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return nil, xerrors.Errorf("feature %s has min %v above max %v", f.Name, *f.Min, *f.Max)
		}
	}

	return &s, nil
}

// LoadSchema reads a YAML schema file.
func LoadSchema(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read schema %s: %w", path, err)
	}
	return ParseSchema(b)
}

// Marshal renders the schema as YAML, e.g. to seed a schema file from an
// inferred one.
func (s *Schema) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal schema: %w", err)
	}
	return b, nil
}
