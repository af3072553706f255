package transcribe

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultModelsYAML []byte

// ModelInfo is one entry of the model list, in OpenAI's /v1/models shape.
type ModelInfo struct {
	ID      string   `json:"id" yaml:"id"`
	Object  string   `json:"object" yaml:"-"`
	OwnedBy string   `json:"owned_by" yaml:"owned_by"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases"`
}

type modelTable struct {
	OwnedBy string      `yaml:"owned_by"`
	Models  []ModelInfo `yaml:"models"`
}

// ModelRegistry resolves short names to full model identifiers.
type ModelRegistry struct {
	models  []ModelInfo
	aliases map[string]string
}

// LoadModels reads the alias table from a YAML file, or the built-in table
// when path is empty.
func LoadModels(path string) (*ModelRegistry, error) {
	if path == "" {
		return ParseModels(defaultModelsYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	return ParseModels(data)
}

// ParseModels parses a YAML alias table.
func ParseModels(data []byte) (*ModelRegistry, error) {
	var table modelTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse models: %w", err)
	}

	reg := &ModelRegistry{aliases: make(map[string]string)}
	for _, m := range table.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("parse models: entry without id")
		}
		m.Object = "model"
		if m.OwnedBy == "" {
			m.OwnedBy = table.OwnedBy
		}
		for _, a := range m.Aliases {
			if prev, ok := reg.aliases[a]; ok && prev != m.ID {
				return nil, fmt.Errorf("parse models: alias %q maps to both %q and %q", a, prev, m.ID)
			}
			reg.aliases[a] = m.ID
		}
		reg.models = append(reg.models, m)
	}
	return reg, nil
}

// Resolve maps a short name to its model ID. Unknown names pass through.
func (r *ModelRegistry) Resolve(name string) string {
	if id, ok := r.aliases[name]; ok {
		return id
	}
	return name
}

// List returns the known models in table order.
func (r *ModelRegistry) List() []ModelInfo {
	out := make([]ModelInfo, len(r.models))
	copy(out, r.models)
	return out
}
