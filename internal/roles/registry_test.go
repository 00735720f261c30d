package roles

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"testrig/scenario-engine/pkg/types"
)

func testGroups() []types.RoleGroup {
	return []types.RoleGroup{
		{Roles: []types.Role{"mon.a", "mds.a", "osd.0"}, Target: "host1"},
		{Roles: []types.Role{"mon.b", "mds.a-s", "osd.1"}, Target: "host2"},
		{Roles: []types.Role{"client.0"}, Target: "host3"},
	}
}

func TestNew_RequiresBoundTargets(t *testing.T) {
	groups := []types.RoleGroup{{Roles: []types.Role{"mon.a"}}}
	_, err := New(groups)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no execution target")
}

func TestNew_RejectsDuplicateRoles(t *testing.T) {
	groups := []types.RoleGroup{
		{Roles: []types.Role{"mon.a"}, Target: "host1"},
		{Roles: []types.Role{"mon.a"}, Target: "host2"},
	}
	_, err := New(groups)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate role name")
}

func TestRegistry_Resolve_QualifiedRole(t *testing.T) {
	reg, err := New(testGroups())
	require.NoError(t, err)

	targets, err := reg.Resolve("osd.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"host2"}, targets)
}

func TestRegistry_Resolve_BareKind(t *testing.T) {
	reg, err := New(testGroups())
	require.NoError(t, err)

	targets, err := reg.Resolve("mon")
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host2"}, targets)

	targets, err = reg.Resolve("client")
	require.NoError(t, err)
	assert.Equal(t, []string{"host3"}, targets)
}

func TestRegistry_Resolve_BareKindDeduplicates(t *testing.T) {
	groups := []types.RoleGroup{
		{Roles: []types.Role{"osd.0", "osd.1"}, Target: "host1"},
		{Roles: []types.Role{"osd.2"}, Target: "host2"},
	}
	reg, err := New(groups)
	require.NoError(t, err)

	targets, err := reg.Resolve("osd")
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host2"}, targets)
}

func TestRegistry_Resolve_Unknown(t *testing.T) {
	reg, err := New(testGroups())
	require.NoError(t, err)

	_, err = reg.Resolve("osd.9")
	require.Error(t, err)
	var unknown *UnknownRoleError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "osd.9", unknown.Ref)

	_, err = reg.Resolve("rgw")
	require.Error(t, err)
	require.ErrorAs(t, err, &unknown)
}

func TestRegistry_ResolveAll(t *testing.T) {
	reg, err := New(testGroups())
	require.NoError(t, err)

	// mon fans out to host1+host2, osd.0 is already on host1.
	targets, err := reg.ResolveAll([]types.Role{"mon", "osd.0", "client.0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"host1", "host2", "host3"}, targets)
}

func TestRegistry_Lookups(t *testing.T) {
	reg, err := New(testGroups())
	require.NoError(t, err)

	target, err := reg.Target("mds.a-s")
	require.NoError(t, err)
	assert.Equal(t, "host2", target)

	assert.Equal(t, []types.Role{"mon.a", "mon.b"}, reg.RolesOfKind("mon"))
	assert.Equal(t, []types.Role{"mon.a", "mds.a", "osd.0"}, reg.RolesOnTarget("host1"))
	assert.Equal(t, []string{"host1", "host2", "host3"}, reg.AllTargets())
	assert.Len(t, reg.AllRoles(), 7)
}

func TestRegistry_AllTargets_SharedTarget(t *testing.T) {
	groups := []types.RoleGroup{
		{Roles: []types.Role{"mon.a"}, Target: "host1"},
		{Roles: []types.Role{"osd.0"}, Target: "host1"},
	}
	reg, err := New(groups)
	require.NoError(t, err)

	assert.Equal(t, []string{"host1"}, reg.AllTargets())
	assert.Equal(t, []types.Role{"mon.a", "osd.0"}, reg.RolesOnTarget("host1"))
}

func TestRegistry_VerifyTasks(t *testing.T) {
	reg, err := New(testGroups())
	require.NoError(t, err)

	ok := []types.Task{
		&types.InstallTask{Branch: "main", Subset: []types.Role{"osd"}},
		&types.ServiceStartTask{},
		&types.WorkUnitTask{Clients: []types.ClientScripts{{Client: "client.0", Scripts: []string{"a.sh"}}}},
		&types.InstallUpgradeTask{PerRole: []types.RoleBranch{{Role: "mon.a", Branch: "next"}}},
		&types.ServiceRestartTask{Roles: []types.Role{"mon.a", "osd.1"}},
	}
	require.NoError(t, reg.VerifyTasks(ok))

	bad := []types.Task{
		&types.InstallTask{Branch: "main"},
		&types.ServiceRestartTask{Roles: []types.Role{"osd.7"}},
	}
	err = reg.VerifyTasks(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task 1 (ceph.restart)")
	var unknown *UnknownRoleError
	assert.ErrorAs(t, err, &unknown)
}

// randomGroups draws a registry-shaped set of role groups: unique role
// names spread over a few targets.
func randomGroups(t *rapid.T) []types.RoleGroup {
	kinds := []string{"mon", "mds", "osd", "client"}
	groupCount := rapid.IntRange(1, 5).Draw(t, "groups")

	next := make(map[string]int)
	groups := make([]types.RoleGroup, 0, groupCount)
	for i := 0; i < groupCount; i++ {
		roleCount := rapid.IntRange(1, 4).Draw(t, fmt.Sprintf("roles%d", i))
		group := types.RoleGroup{Target: fmt.Sprintf("host%d", i)}
		for j := 0; j < roleCount; j++ {
			kind := rapid.SampledFrom(kinds).Draw(t, fmt.Sprintf("kind%d_%d", i, j))
			group.Roles = append(group.Roles, types.Role(fmt.Sprintf("%s.%d", kind, next[kind])))
			next[kind]++
		}
		groups = append(groups, group)
	}
	return groups
}

func TestRegistry_ResolutionProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		groups := randomGroups(t)
		reg, err := New(groups)
		if err != nil {
			t.Fatalf("registry construction: %v", err)
		}

		// Every qualified role resolves to exactly the target of its group.
		for _, group := range groups {
			for _, role := range group.Roles {
				targets, err := reg.Resolve(role)
				if err != nil {
					t.Fatalf("resolve %s: %v", role, err)
				}
				if len(targets) != 1 || targets[0] != group.Target {
					t.Fatalf("role %s resolved to %v, want [%s]", role, targets, group.Target)
				}
			}
		}

		// A bare kind covers exactly the hosts of its roles, no
		// duplicates, in group order.
		for _, kind := range []string{"mon", "mds", "osd", "client"} {
			kindRoles := reg.RolesOfKind(kind)
			targets, err := reg.Resolve(types.Role(kind))
			if len(kindRoles) == 0 {
				if err == nil {
					t.Fatalf("kind %s absent but resolved to %v", kind, targets)
				}
				continue
			}
			if err != nil {
				t.Fatalf("resolve kind %s: %v", kind, err)
			}
			seen := make(map[string]bool)
			for _, target := range targets {
				if seen[target] {
					t.Fatalf("kind %s resolved with duplicate target %s", kind, target)
				}
				seen[target] = true
			}
			for _, role := range kindRoles {
				host, _ := reg.Target(role)
				if !seen[host] {
					t.Fatalf("kind %s missing target %s of role %s", kind, host, role)
				}
			}
		}

		// Resolution is stable across calls.
		first, err := reg.ResolveAll(reg.AllRoles())
		if err != nil {
			t.Fatalf("resolve all: %v", err)
		}
		second, _ := reg.ResolveAll(reg.AllRoles())
		if len(first) != len(second) {
			t.Fatalf("resolution not stable: %v vs %v", first, second)
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("resolution not stable at %d: %v vs %v", i, first, second)
			}
		}
	})
}
