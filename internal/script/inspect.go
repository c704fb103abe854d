package script

import "fmt"

// Severity classifies an inspection finding.
type Severity string

// Issue severities. Errors make an asset unusable; warnings flag wiring the
// engine will downgrade at run time.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one inspection finding, addressed to a list and optionally to one
// of its actions.
type Issue struct {
	List     string
	Node     string
	Severity Severity
	Message  string
}

// String formats the issue for reports.
func (i Issue) String() string {
	if i.Node == "" {
		return fmt.Sprintf("%s: list %s: %s", i.Severity, i.List, i.Message)
	}
	return fmt.Sprintf("%s: list %s: action %s: %s", i.Severity, i.List, i.Node, i.Message)
}

// Catalog answers what action kinds exist and how many exits each declares.
// The director's registry implements it.
type Catalog interface {
	// ExitRange returns the declared exit bounds for a kind. max == 0 means
	// the kind takes any number of exits at or above min.
	// Postcondition: Returns (min, max, true) for registered kinds, or
	// (0, 0, false) otherwise.
	ExitRange(kind string) (min, max int, ok bool)
}

// Inspect reports soft problems the engine tolerates at run time: unknown
// kinds, ending counts that disagree with the kind's declared exits, skips to
// missing actions, and empty lists. Hard structural violations are Validate's
// job; Inspect assumes Validate passed.
//
// Postcondition: Returns findings in list order; nil when the list is clean.
func (l *List) Inspect(cat Catalog) []Issue {
	var issues []Issue
	warn := func(node, format string, args ...any) {
		issues = append(issues, Issue{
			List:     l.ID,
			Node:     node,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if len(l.Nodes) == 0 {
		warn("", "list is empty; a run of it finishes immediately")
		return issues
	}

	for _, n := range l.Nodes {
		min, max, known := cat.ExitRange(n.Kind)
		switch {
		case !known:
			warn(n.ID, "unknown kind %q; the branch will stop there", n.Kind)
		case len(n.Endings) < min:
			warn(n.ID, "kind %q needs at least %d exits but %d endings are wired", n.Kind, min, len(n.Endings))
		case max > 0 && len(n.Endings) > max:
			warn(n.ID, "kind %q takes at most %d exits but %d endings are wired", n.Kind, max, len(n.Endings))
		}
		for i, e := range n.Endings {
			if e.Policy == PolicySkip && l.IndexOf(e.Target) < 0 {
				warn(n.ID, "ending %d skips to missing action %q; it will downgrade to stop", i, e.Target)
			}
		}
	}
	return issues
}
