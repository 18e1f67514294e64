package mapping

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the standard field catalogue, keyed by record purpose. Field
// order is significant: it breaks classification ties.
type Catalog struct {
	RecordTypes map[models.TablePurpose][]models.StandardField `yaml:"record_types"`
}

// DefaultCatalog returns the embedded catalogue.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalogue from path, or the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalogue.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidCatalog, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidCatalog, err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	for _, purpose := range models.RecordPurposes {
		fields := c.RecordTypes[purpose]
		if len(fields) == 0 {
			return fmt.Errorf("record type %s has no fields", purpose)
		}
		seen := make(map[string]bool)
		for _, f := range fields {
			if f.Name == "" {
				return fmt.Errorf("record type %s has a field without a name", purpose)
			}
			if seen[f.Name] {
				return fmt.Errorf("record type %s lists %s twice", purpose, f.Name)
			}
			seen[f.Name] = true
			if !models.IsValidDataType(f.ExpectedType) || f.ExpectedType == models.DataTypeUnknown {
				return fmt.Errorf("field %s has invalid type %q", f.Name, f.ExpectedType)
			}
			if f.Priority < 1 || f.Priority > 10 {
				return fmt.Errorf("field %s priority %d outside 1-10", f.Name, f.Priority)
			}
		}
	}
	return nil
}

// Fields returns the catalogue entries for a record purpose.
func (c *Catalog) Fields(purpose models.TablePurpose) []models.StandardField {
	return c.RecordTypes[purpose.TargetPurpose()]
}

// Field looks up a field by name for a record purpose.
func (c *Catalog) Field(purpose models.TablePurpose, name string) (models.StandardField, bool) {
	for _, f := range c.Fields(purpose) {
		if f.Name == name {
			return f, true
		}
	}
	return models.StandardField{}, false
}

// candidates returns the fields scored for a table: the target purpose's
// fields first, then fields of the other purposes not already listed.
func (c *Catalog) candidates(target models.TablePurpose) []candidate {
	var out []candidate
	seen := make(map[string]bool)
	for _, f := range c.Fields(target) {
		out = append(out, candidate{field: f, inTarget: true})
		seen[f.Name] = true
	}
	for _, p := range models.RecordPurposes {
		if p == target.TargetPurpose() {
			continue
		}
		for _, f := range c.RecordTypes[p] {
			if !seen[f.Name] {
				out = append(out, candidate{field: f})
				seen[f.Name] = true
			}
		}
	}
	return out
}

type candidate struct {
	field    models.StandardField
	inTarget bool
}
