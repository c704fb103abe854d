package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlListFile is the top-level YAML structure for standalone list files.
type yamlListFile struct {
	List yamlList `yaml:"list"`
}

// yamlStageFile is the top-level YAML structure for stage files.
type yamlStageFile struct {
	Stage yamlStage `yaml:"stage"`
}

// yamlStage is the YAML representation of a stage.
type yamlStage struct {
	ID      string     `yaml:"id"`
	Name    string     `yaml:"name"`
	OnStart string     `yaml:"on_start,omitempty"`
	Lists   []yamlList `yaml:"lists"`
}

// yamlList is the YAML representation of a list.
type yamlList struct {
	ID        string       `yaml:"id"`
	Name      string       `yaml:"name,omitempty"`
	Skippable bool         `yaml:"skippable,omitempty"`
	Actions   []yamlAction `yaml:"actions"`
}

// yamlAction is the YAML representation of an action.
type yamlAction struct {
	ID         string            `yaml:"id"`
	Kind       string            `yaml:"kind"`
	Enabled    *bool             `yaml:"enabled,omitempty"`
	Breakpoint bool              `yaml:"breakpoint,omitempty"`
	Collapsed  bool              `yaml:"collapsed,omitempty"`
	Comment    string            `yaml:"comment,omitempty"`
	Params     map[string]string `yaml:"params,omitempty"`
	Pos        yamlPosition      `yaml:"pos"`
	Endings    []yamlEnding      `yaml:"endings,omitempty"`
}

// yamlPosition is the YAML representation of a canvas position.
type yamlPosition struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// yamlEnding is the YAML representation of an ending.
type yamlEnding struct {
	Policy string `yaml:"policy"`
	Target string `yaml:"target,omitempty"`
	List   string `yaml:"list,omitempty"`
}

// LoadListFromFile reads and validates a single standalone list YAML file.
//
// Precondition: path must point to a valid YAML list file.
// Postcondition: Returns a validated List with Source == SourceAsset, or a
// non-nil error.
func LoadListFromFile(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading list file %s: %w", path, err)
	}
	return LoadListFromBytes(data)
}

// LoadListFromBytes parses and validates a standalone list from YAML bytes.
func LoadListFromBytes(data []byte) (*List, error) {
	var file yamlListFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing list YAML: %w", err)
	}

	list, err := convertYAMLList(file.List, SourceAsset)
	if err != nil {
		return nil, err
	}
	if err := list.Validate(); err != nil {
		return nil, fmt.Errorf("validating list: %w", err)
	}
	return list, nil
}

// LoadListsFromDir loads all YAML files in a directory as standalone lists.
//
// Postcondition: Returns all validated lists or the first error encountered.
func LoadListsFromDir(dir string) ([]*List, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading list directory %s: %w", dir, err)
	}

	var lists []*List
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		list, err := LoadListFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading list from %s: %w", name, err)
		}
		lists = append(lists, list)
	}

	if len(lists) == 0 {
		return nil, fmt.Errorf("no list files found in %s", dir)
	}
	return lists, nil
}

// LoadStageFromFile reads and validates a single stage YAML file.
//
// Postcondition: Returns a validated Stage whose lists have
// Source == SourceScene, or a non-nil error.
func LoadStageFromFile(path string) (*Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage file %s: %w", path, err)
	}
	return LoadStageFromBytes(data)
}

// LoadStageFromBytes parses and validates a stage from YAML bytes.
func LoadStageFromBytes(data []byte) (*Stage, error) {
	var file yamlStageFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing stage YAML: %w", err)
	}

	stage := &Stage{
		ID:      file.Stage.ID,
		Name:    file.Stage.Name,
		OnStart: file.Stage.OnStart,
	}
	for _, yl := range file.Stage.Lists {
		list, err := convertYAMLList(yl, SourceScene)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", stage.ID, err)
		}
		stage.Lists = append(stage.Lists, list)
	}
	if err := stage.Validate(); err != nil {
		return nil, fmt.Errorf("validating stage: %w", err)
	}
	return stage, nil
}

// LoadStagesFromDir loads all YAML files in a directory as stages.
func LoadStagesFromDir(dir string) ([]*Stage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading stage directory %s: %w", dir, err)
	}

	var stages []*Stage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		stage, err := LoadStageFromFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading stage from %s: %w", name, err)
		}
		stages = append(stages, stage)
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("no stage files found in %s", dir)
	}
	return stages, nil
}

// LoadLibrary loads standalone lists and stages into one Library. Either
// directory may be empty to skip that source, but not both.
//
// Postcondition: Returns a Library indexing every loaded list, or a non-nil error.
func LoadLibrary(listsDir, stagesDir string) (*Library, error) {
	if listsDir == "" && stagesDir == "" {
		return nil, fmt.Errorf("no content directories configured")
	}

	var lists []*List
	var stages []*Stage
	var err error
	if listsDir != "" {
		if lists, err = LoadListsFromDir(listsDir); err != nil {
			return nil, err
		}
	}
	if stagesDir != "" {
		if stages, err = LoadStagesFromDir(stagesDir); err != nil {
			return nil, err
		}
	}
	return NewLibrary(stages, lists)
}

// SaveListToFile writes a standalone list back to disk as YAML. Used by the
// arrange tool to persist recomputed positions.
//
// Postcondition: the file parses back into an equivalent list via LoadListFromFile.
func SaveListToFile(l *List, path string) error {
	data, err := yaml.Marshal(yamlListFile{List: listToYAML(l)})
	if err != nil {
		return fmt.Errorf("marshaling list %q: %w", l.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing list file %s: %w", path, err)
	}
	return nil
}

// SaveStageToFile writes a stage back to disk as YAML.
func SaveStageToFile(s *Stage, path string) error {
	ys := yamlStage{ID: s.ID, Name: s.Name, OnStart: s.OnStart}
	for _, l := range s.Lists {
		ys.Lists = append(ys.Lists, listToYAML(l))
	}
	data, err := yaml.Marshal(yamlStageFile{Stage: ys})
	if err != nil {
		return fmt.Errorf("marshaling stage %q: %w", s.ID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing stage file %s: %w", path, err)
	}
	return nil
}

// convertYAMLList converts the parsed YAML structures into domain types.
func convertYAMLList(yl yamlList, src Source) (*List, error) {
	list := &List{
		ID:        yl.ID,
		Name:      yl.Name,
		Source:    src,
		Skippable: yl.Skippable,
	}

	for _, ya := range yl.Actions {
		a := &Action{
			ID:         ya.ID,
			Kind:       ya.Kind,
			Enabled:    ya.Enabled == nil || *ya.Enabled,
			Breakpoint: ya.Breakpoint,
			Collapsed:  ya.Collapsed,
			Comment:    strings.TrimSpace(ya.Comment),
			Params:     ya.Params,
			Pos:        Position{X: ya.Pos.X, Y: ya.Pos.Y},
		}
		if a.Params == nil {
			a.Params = make(map[string]string)
		}
		if len(ya.Endings) == 0 {
			a.Endings = []Ending{ContinueEnding()}
		} else {
			for i, ye := range ya.Endings {
				policy, err := ParsePolicy(ye.Policy)
				if err != nil {
					return nil, fmt.Errorf("list %q: action %q: ending %d: %w", yl.ID, ya.ID, i, err)
				}
				a.Endings = append(a.Endings, Ending{Policy: policy, Target: ye.Target, List: ye.List})
			}
		}
		list.Nodes = append(list.Nodes, a)
	}

	return list, nil
}

// listToYAML converts a list back to its YAML representation. Defaults are
// elided: enabled is written only when false, single continue endings are
// omitted entirely.
func listToYAML(l *List) yamlList {
	yl := yamlList{ID: l.ID, Name: l.Name, Skippable: l.Skippable}
	for _, a := range l.Nodes {
		ya := yamlAction{
			ID:         a.ID,
			Kind:       a.Kind,
			Breakpoint: a.Breakpoint,
			Collapsed:  a.Collapsed,
			Comment:    a.Comment,
			Pos:        yamlPosition{X: a.Pos.X, Y: a.Pos.Y},
		}
		if !a.Enabled {
			f := false
			ya.Enabled = &f
		}
		if len(a.Params) > 0 {
			ya.Params = a.Params
		}
		if !(len(a.Endings) == 1 && a.Endings[0] == ContinueEnding()) {
			for _, e := range a.Endings {
				ya.Endings = append(ya.Endings, yamlEnding{Policy: e.Policy.String(), Target: e.Target, List: e.List})
			}
		}
		yl.Actions = append(yl.Actions, ya)
	}
	return yl
}
