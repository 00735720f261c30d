// Package types defines the shared data model for the scenario engine:
// scenario descriptions, roles, tasks and execution results.
package types

import (
	"fmt"
	"strings"
)

// Role is a named logical member of the test cluster, e.g. "mon.a",
// "osd.0" or "client.0". The prefix before the first dot is the role kind.
type Role string

// Kind returns the role kind ("mon", "mds", "osd", "client").
// For a bare kind reference the kind is the role itself.
func (r Role) Kind() string {
	name := string(r)
	if idx := strings.Index(name, "."); idx >= 0 {
		return name[:idx]
	}
	return name
}

// Qualified reports whether the role names an individual cluster member
// ("osd.1") rather than a bare kind ("osd").
func (r Role) Qualified() bool {
	return strings.Contains(string(r), ".")
}

// RoleGroup is an ordered set of roles co-located on one execution target.
// The group→target binding is fixed for the scenario's lifetime.
type RoleGroup struct {
	Roles  []Role `yaml:"roles" json:"roles"`
	Target string `yaml:"target,omitempty" json:"target,omitempty"`
}

// Scenario is a parsed scenario description: role groups plus the ordered
// task list. Scenarios are immutable once parsed.
type Scenario struct {
	// Name is derived from the scenario file name; informational only.
	Name string

	// Groups holds one RoleGroup per entry of the top-level roles list,
	// in file order.
	Groups []RoleGroup

	// Tasks is the ordered task pipeline. The runner consumes it strictly
	// in file order and never reorders.
	Tasks []Task
}

// BindTargets binds execution target i to role group i. Used when the
// scenario file carries no targets of its own. Count mismatch is an
// error; groups already bound keep their binding.
func (s *Scenario) BindTargets(targets []string) error {
	if len(targets) != len(s.Groups) {
		return fmt.Errorf("%d targets given for %d role groups", len(targets), len(s.Groups))
	}
	for i := range s.Groups {
		if s.Groups[i].Target == "" {
			s.Groups[i].Target = targets[i]
		}
	}
	return nil
}

// Bound reports whether every role group has an execution target.
func (s *Scenario) Bound() bool {
	for _, g := range s.Groups {
		if g.Target == "" {
			return false
		}
	}
	return true
}

// Roles returns every role of the scenario in file order.
func (s *Scenario) Roles() []Role {
	var all []Role
	for _, g := range s.Groups {
		all = append(all, g.Roles...)
	}
	return all
}
