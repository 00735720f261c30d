// Package roles materializes the role groups of a scenario and answers
// role→target and target→roles lookups. A Registry is read-only after
// construction and safe for concurrent use without locking.
package roles

import (
	"fmt"

	"testrig/scenario-engine/pkg/types"
)

// UnknownRoleError reports a reference to a role or kind absent from the
// registry. It is fatal at load time: a scenario referencing an undefined
// role never starts.
type UnknownRoleError struct {
	Ref string
}

// Error implements the error interface.
func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role or kind: %s", e.Ref)
}

// Registry assigns each logical role to a physical execution target.
type Registry struct {
	groups   []types.RoleGroup
	byRole   map[types.Role]string
	byKind   map[string][]types.Role
	byTarget map[string][]types.Role
	targets  []string // group order, deduplicated
}

// New builds a Registry from the scenario's role groups. Every group must
// carry a bound target; role names must be unique scenario-wide.
func New(groups []types.RoleGroup) (*Registry, error) {
	r := &Registry{
		groups:   groups,
		byRole:   make(map[types.Role]string),
		byKind:   make(map[string][]types.Role),
		byTarget: make(map[string][]types.Role),
	}

	for i, group := range groups {
		if group.Target == "" {
			return nil, fmt.Errorf("role group %d has no execution target bound", i)
		}
		if _, seen := r.byTarget[group.Target]; !seen {
			r.targets = append(r.targets, group.Target)
		}
		for _, role := range group.Roles {
			if _, dup := r.byRole[role]; dup {
				return nil, fmt.Errorf("duplicate role name: %s", role)
			}
			r.byRole[role] = group.Target
			r.byKind[role.Kind()] = append(r.byKind[role.Kind()], role)
			r.byTarget[group.Target] = append(r.byTarget[group.Target], role)
		}
	}
	return r, nil
}

// Resolve maps a role or bare kind to its target set. A qualified role
// ("osd.1") resolves to exactly one target; a bare kind ("mon") resolves
// to every target hosting that kind. Targets come back in scenario file
// order, deduplicated, so resolution is deterministic within a run.
func (r *Registry) Resolve(ref types.Role) ([]string, error) {
	if ref.Qualified() {
		target, ok := r.byRole[ref]
		if !ok {
			return nil, &UnknownRoleError{Ref: string(ref)}
		}
		return []string{target}, nil
	}

	kindRoles, ok := r.byKind[string(ref)]
	if !ok {
		return nil, &UnknownRoleError{Ref: string(ref)}
	}
	var targets []string
	seen := make(map[string]bool)
	for _, role := range kindRoles {
		target := r.byRole[role]
		if !seen[target] {
			seen[target] = true
			targets = append(targets, target)
		}
	}
	return targets, nil
}

// ResolveAll resolves a list of role/kind references and returns the
// union of their targets, deduplicated, preserving reference order.
func (r *Registry) ResolveAll(refs []types.Role) ([]string, error) {
	var targets []string
	seen := make(map[string]bool)
	for _, ref := range refs {
		resolved, err := r.Resolve(ref)
		if err != nil {
			return nil, err
		}
		for _, target := range resolved {
			if !seen[target] {
				seen[target] = true
				targets = append(targets, target)
			}
		}
	}
	return targets, nil
}

// Target returns the target hosting a qualified role.
func (r *Registry) Target(role types.Role) (string, error) {
	target, ok := r.byRole[role]
	if !ok {
		return "", &UnknownRoleError{Ref: string(role)}
	}
	return target, nil
}

// RolesOfKind returns every role of the given kind in scenario file order.
func (r *Registry) RolesOfKind(kind string) []types.Role {
	return r.byKind[kind]
}

// RolesOnTarget returns the roles co-located on a target in file order.
func (r *Registry) RolesOnTarget(target string) []types.Role {
	return r.byTarget[target]
}

// AllTargets returns every execution target in group order.
func (r *Registry) AllTargets() []string {
	return r.targets
}

// AllRoles returns every role in scenario file order.
func (r *Registry) AllRoles() []types.Role {
	var all []types.Role
	for _, g := range r.groups {
		all = append(all, g.Roles...)
	}
	return all
}

// VerifyTasks checks every role reference in the task list against the
// registry, so a dangling reference fails the scenario at load time
// rather than mid-run.
func (r *Registry) VerifyTasks(tasks []types.Task) error {
	for i, task := range tasks {
		var refs []types.Role
		switch t := task.(type) {
		case *types.InstallTask:
			refs = t.Subset
		case *types.ServiceStartTask:
			// Targets every role; nothing to verify.
		case *types.WorkUnitTask:
			for _, c := range t.Clients {
				refs = append(refs, c.Client)
			}
		case *types.InstallUpgradeTask:
			for _, rb := range t.PerRole {
				refs = append(refs, rb.Role)
			}
		case *types.ServiceRestartTask:
			refs = t.Roles
		default:
			return fmt.Errorf("task %d: unhandled task kind %q", i, task.Kind())
		}
		for _, ref := range refs {
			if _, err := r.Resolve(ref); err != nil {
				return fmt.Errorf("task %d (%s): %w", i, task.Kind(), err)
			}
		}
	}
	return nil
}
