package vars

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlVarsFile is the top-level YAML structure for variable default files.
type yamlVarsFile struct {
	Vars []yamlVar `yaml:"vars"`
}

// yamlVar is the YAML representation of one declared variable.
type yamlVar struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// LoadFile reads a variable defaults file.
//
// Postcondition: Returns the declared values keyed by name, or a non-nil error.
func LoadFile(path string) (map[string]Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vars file %s: %w", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes parses variable defaults from YAML bytes.
//
// Postcondition: Returns the declared values keyed by name; duplicate names
// and unparseable values are errors.
func LoadBytes(data []byte) (map[string]Value, error) {
	var file yamlVarsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing vars YAML: %w", err)
	}

	values := make(map[string]Value, len(file.Vars))
	for i, yv := range file.Vars {
		if yv.Name == "" {
			return nil, fmt.Errorf("var %d: name must not be empty", i)
		}
		if _, dup := values[yv.Name]; dup {
			return nil, fmt.Errorf("duplicate var %q", yv.Name)
		}
		v, err := ParseAs(Kind(yv.Type), yv.Value)
		if err != nil {
			return nil, fmt.Errorf("var %q: %w", yv.Name, err)
		}
		values[yv.Name] = v
	}
	return values, nil
}
