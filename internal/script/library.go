package script

import (
	"fmt"
	"sort"
	"sync"
)

// Library provides thread-safe access to the loaded content set. It indexes
// lists across all stages and standalone assets for O(1) lookup by list ID,
// which is how runlist endings resolve their targets.
type Library struct {
	mu     sync.RWMutex
	stages map[string]*Stage
	lists  map[string]*List
}

// NewLibrary creates a Library from the given stages and standalone lists.
//
// Postcondition: Returns a Library with every list indexed by ID, or an error
// on duplicate stage or list IDs.
func NewLibrary(stages []*Stage, lists []*List) (*Library, error) {
	lib := &Library{
		stages: make(map[string]*Stage, len(stages)),
		lists:  make(map[string]*List),
	}

	for _, s := range stages {
		if _, exists := lib.stages[s.ID]; exists {
			return nil, fmt.Errorf("duplicate stage ID: %q", s.ID)
		}
		lib.stages[s.ID] = s
		for _, l := range s.Lists {
			if existing, exists := lib.lists[l.ID]; exists {
				return nil, fmt.Errorf("duplicate list ID %q: already defined as %s", l.ID, existing.Source)
			}
			lib.lists[l.ID] = l
		}
	}
	for _, l := range lists {
		if existing, exists := lib.lists[l.ID]; exists {
			return nil, fmt.Errorf("duplicate list ID %q: already defined as %s", l.ID, existing.Source)
		}
		lib.lists[l.ID] = l
	}

	return lib, nil
}

// GetList returns the list with the given ID, regardless of whether it came
// from a stage or a standalone asset.
//
// Postcondition: Returns (list, true) if found, or (nil, false) otherwise.
func (lib *Library) GetList(id string) (*List, bool) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	l, ok := lib.lists[id]
	return l, ok
}

// GetStage returns the stage with the given ID.
//
// Postcondition: Returns (stage, true) if found, or (nil, false) otherwise.
func (lib *Library) GetStage(id string) (*Stage, bool) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	s, ok := lib.stages[id]
	return s, ok
}

// ListCount returns the total number of lists across stages and assets.
func (lib *Library) ListCount() int {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return len(lib.lists)
}

// StageCount returns the number of loaded stages.
func (lib *Library) StageCount() int {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return len(lib.stages)
}

// AllLists returns every loaded list, sorted by ID.
//
// Postcondition: Returns a non-nil slice; may be empty.
func (lib *Library) AllLists() []*List {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	lists := make([]*List, 0, len(lib.lists))
	for _, l := range lib.lists {
		lists = append(lists, l)
	}
	sort.Slice(lists, func(i, j int) bool { return lists[i].ID < lists[j].ID })
	return lists
}

// AllStages returns every loaded stage, sorted by ID.
//
// Postcondition: Returns a non-nil slice; may be empty.
func (lib *Library) AllStages() []*Stage {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	stages := make([]*Stage, 0, len(lib.stages))
	for _, s := range lib.stages {
		stages = append(stages, s)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].ID < stages[j].ID })
	return stages
}

// Inspect runs per-list inspection over the whole library and adds the
// cross-list checks: runlist endings and list.run parameters that reference
// lists the library does not contain.
//
// Postcondition: Returns findings ordered by list ID; nil when clean.
func (lib *Library) Inspect(cat Catalog) []Issue {
	var issues []Issue
	for _, l := range lib.AllLists() {
		issues = append(issues, l.Inspect(cat)...)
		for _, n := range l.Nodes {
			for i, e := range n.Endings {
				if e.Policy != PolicyRunList {
					continue
				}
				if _, ok := lib.GetList(e.List); !ok {
					issues = append(issues, Issue{
						List:     l.ID,
						Node:     n.ID,
						Severity: SeverityWarning,
						Message:  fmt.Sprintf("ending %d launches unknown list %q; it will downgrade to stop", i, e.List),
					})
				}
			}
			if ref := n.Param("list"); n.Kind == "list.run" && ref != "" {
				if _, ok := lib.GetList(ref); !ok {
					issues = append(issues, Issue{
						List:     l.ID,
						Node:     n.ID,
						Severity: SeverityWarning,
						Message:  fmt.Sprintf("list.run references unknown list %q", ref),
					})
				}
			}
		}
	}
	return issues
}
