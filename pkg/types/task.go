package types

// TaskKind identifies a task variant. The set of kinds is closed: the
// pipeline runner dispatches with an exhaustive type switch, so an
// unhandled kind surfaces as an error at the dispatch point instead of
// silently doing nothing.
type TaskKind string

const (
	// TaskKindInstall installs a software branch on the scenario targets.
	TaskKindInstall TaskKind = "install"
	// TaskKindServiceStart brings up the default service set ("ceph").
	TaskKindServiceStart TaskKind = "ceph"
	// TaskKindWorkUnit runs workload scripts against client roles.
	TaskKindWorkUnit TaskKind = "workunit"
	// TaskKindInstallUpgrade re-runs install with a new branch while
	// services keep running ("install.upgrade").
	TaskKindInstallUpgrade TaskKind = "install.upgrade"
	// TaskKindServiceRestart restarts the daemons of listed roles
	// ("ceph.restart").
	TaskKindServiceRestart TaskKind = "ceph.restart"
)

// Task is one named step of the scenario pipeline. It is a sealed sum
// type: only the variant structs in this package implement it.
type Task interface {
	Kind() TaskKind

	// taskVariant seals the interface to this package.
	taskVariant()
}

// InstallTask installs the named branch on every scenario target, or on
// the targets hosting the listed subset of roles. Runs in parallel across
// targets. A failed install is fatal to the whole scenario regardless of
// the runner's failure policy.
type InstallTask struct {
	Branch string
	// Subset optionally restricts the install to the targets hosting
	// these roles. Empty means every target in the scenario.
	Subset []Role
}

func (t *InstallTask) Kind() TaskKind { return TaskKindInstall }
func (t *InstallTask) taskVariant()   {}

// ServiceStartTask brings up the default service set across the scenario
// roles. Daemons start in cluster-safe kind order (mon, then mds, then
// osd); within a kind all daemons start in parallel.
type ServiceStartTask struct{}

func (t *ServiceStartTask) Kind() TaskKind { return TaskKindServiceStart }
func (t *ServiceStartTask) taskVariant()   {}

// ClientScripts maps one client role to its ordered script list.
// Slice form preserves scenario file order for deterministic dispatch.
type ClientScripts struct {
	Client  Role
	Scripts []string
}

// WorkUnitTask runs an ordered sequence of workload scripts on each
// listed client. Clients run in parallel; scripts of one client run
// strictly in order with per-client fail-fast.
type WorkUnitTask struct {
	Clients []ClientScripts
}

func (t *WorkUnitTask) Kind() TaskKind { return TaskKindWorkUnit }
func (t *WorkUnitTask) taskVariant()   {}

// BranchSpec names the branch an install or upgrade should track.
type BranchSpec struct {
	Branch string `yaml:"branch" json:"branch"`
}

// RoleBranch is a per-role upgrade override.
type RoleBranch struct {
	Role   Role
	Branch string
}

// InstallUpgradeTask re-runs install with a new branch while previously
// started services stay up; it never stops or restarts anything itself.
// Either All is set (every target, parallel) or PerRole lists explicit
// role→branch overrides in file order.
type InstallUpgradeTask struct {
	All     *BranchSpec
	PerRole []RoleBranch
}

func (t *InstallUpgradeTask) Kind() TaskKind { return TaskKindInstallUpgrade }
func (t *InstallUpgradeTask) taskVariant()   {}

// RestartPolicy selects how a ServiceRestartTask walks its role list.
type RestartPolicy string

const (
	// RestartRolling restarts roles one at a time in the listed order,
	// waiting for each daemon to report healthy before moving on. This
	// preserves availability (quorum) and is the default: an explicitly
	// ordered role list is treated as an ordering contract.
	RestartRolling RestartPolicy = "rolling"
	// RestartParallel restarts every listed role simultaneously.
	RestartParallel RestartPolicy = "parallel"
)

// ServiceRestartTask restarts the daemon of each listed role. Roles is an
// explicit ordered list; Policy defaults to RestartRolling when empty.
type ServiceRestartTask struct {
	Roles  []Role
	Policy RestartPolicy
}

func (t *ServiceRestartTask) Kind() TaskKind { return TaskKindServiceRestart }
func (t *ServiceRestartTask) taskVariant()   {}

// EffectivePolicy returns the restart policy with the rolling default
// applied.
func (t *ServiceRestartTask) EffectivePolicy() RestartPolicy {
	if t.Policy == "" {
		return RestartRolling
	}
	return t.Policy
}
