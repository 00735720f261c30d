// Package parser loads scenario descriptions from YAML. Decoding is
// strict: unknown top-level fields are errors, parse errors carry line
// and column, validation errors carry a field path.
package parser

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"testrig/scenario-engine/pkg/types"
)

// rawScenario mirrors the top-level document shape. Task bodies stay as
// yaml nodes so each kind can decode its own parameter shape.
type rawScenario struct {
	Roles   [][]string  `yaml:"roles"`
	Targets []string    `yaml:"targets"`
	Tasks   []yaml.Node `yaml:"tasks"`
}

// ScenarioParser parses YAML scenario descriptions.
type ScenarioParser struct{}

// NewScenarioParser creates a new ScenarioParser.
func NewScenarioParser() *ScenarioParser {
	return &ScenarioParser{}
}

// Parse parses a scenario description from bytes.
func (p *ScenarioParser) Parse(data []byte) (*types.Scenario, error) {
	var raw rawScenario

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode: error on unknown fields

	if err := decoder.Decode(&raw); err != nil {
		return nil, wrapYAMLError(err)
	}

	scenario := &types.Scenario{}

	groups, err := p.parseRoles(raw)
	if err != nil {
		return nil, err
	}
	scenario.Groups = groups

	for i := range raw.Tasks {
		task, err := p.parseTask(&raw.Tasks[i], fmt.Sprintf("tasks[%d]", i))
		if err != nil {
			return nil, err
		}
		scenario.Tasks = append(scenario.Tasks, task)
	}

	if err := p.validate(scenario); err != nil {
		return nil, err
	}

	return scenario, nil
}

// ParseFile parses a scenario description from a file. The scenario name
// is the file name without extension.
func (p *ScenarioParser) ParseFile(path string) (*types.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewParseError(0, 0, fmt.Sprintf("failed to read file: %s", path), err)
	}
	scenario, err := p.Parse(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)
	scenario.Name = strings.TrimSuffix(base, filepath.Ext(base))
	return scenario, nil
}

// parseRoles materializes the role groups and binds targets when the
// scenario carries an explicit targets list.
func (p *ScenarioParser) parseRoles(raw rawScenario) ([]types.RoleGroup, error) {
	if len(raw.Roles) == 0 {
		return nil, NewValidationError("roles", "scenario must define at least one role group")
	}

	if len(raw.Targets) > 0 && len(raw.Targets) != len(raw.Roles) {
		return nil, NewValidationError("targets",
			fmt.Sprintf("targets count %d does not match role group count %d", len(raw.Targets), len(raw.Roles)))
	}

	groups := make([]types.RoleGroup, 0, len(raw.Roles))
	for i, names := range raw.Roles {
		if len(names) == 0 {
			return nil, NewValidationError(fmt.Sprintf("roles[%d]", i), "role group must not be empty")
		}
		group := types.RoleGroup{}
		for j, name := range names {
			role := types.Role(name)
			if !role.Qualified() {
				return nil, NewValidationError(fmt.Sprintf("roles[%d][%d]", i, j),
					fmt.Sprintf("role %q must be of the form kind.index", name))
			}
			group.Roles = append(group.Roles, role)
		}
		if len(raw.Targets) > 0 {
			group.Target = raw.Targets[i]
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// parseTask decodes one entry of the tasks list: a single-key mapping
// whose key is the task kind and whose value is the kind-specific
// parameter shape (or null for parameterless tasks).
func (p *ScenarioParser) parseTask(node *yaml.Node, path string) (types.Task, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, NewParseError(node.Line, node.Column,
			fmt.Sprintf("%s: task entry must be a single-key mapping", path), nil)
	}

	keyNode, valueNode := node.Content[0], node.Content[1]
	kind := keyNode.Value
	path = path + "." + kind

	switch types.TaskKind(kind) {
	case types.TaskKindInstall:
		return p.parseInstall(valueNode, path)
	case types.TaskKindServiceStart:
		return p.parseServiceStart(valueNode, path)
	case types.TaskKindWorkUnit:
		return p.parseWorkUnit(valueNode, path)
	case types.TaskKindInstallUpgrade:
		return p.parseInstallUpgrade(valueNode, path)
	case types.TaskKindServiceRestart:
		return p.parseServiceRestart(valueNode, path)
	default:
		return nil, NewParseError(keyNode.Line, keyNode.Column,
			fmt.Sprintf("%s: unknown task kind %q", path, kind), nil)
	}
}

func (p *ScenarioParser) parseInstall(node *yaml.Node, path string) (types.Task, error) {
	var params struct {
		Branch  string   `yaml:"branch"`
		Targets []string `yaml:"targets"`
	}
	if err := node.Decode(&params); err != nil {
		return nil, wrapNodeError(err, node)
	}
	if params.Branch == "" {
		return nil, NewValidationError(path+".branch", "install requires a branch name")
	}
	task := &types.InstallTask{Branch: params.Branch}
	for _, t := range params.Targets {
		task.Subset = append(task.Subset, types.Role(t))
	}
	return task, nil
}

func (p *ScenarioParser) parseServiceStart(node *yaml.Node, path string) (types.Task, error) {
	// Plain "ceph:" with no body (or an empty mapping) means "start the
	// default service set".
	if !isNullNode(node) && !isEmptyMapping(node) {
		return nil, NewValidationError(path, "task takes no parameters")
	}
	return &types.ServiceStartTask{}, nil
}

func (p *ScenarioParser) parseWorkUnit(node *yaml.Node, path string) (types.Task, error) {
	if node.Kind != yaml.MappingNode {
		return nil, NewValidationError(path, "workunit requires a clients mapping")
	}

	var clientsNode *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if key != "clients" {
			return nil, NewValidationError(path+"."+key, "unknown workunit parameter")
		}
		clientsNode = node.Content[i+1]
	}
	if clientsNode == nil || clientsNode.Kind != yaml.MappingNode || len(clientsNode.Content) == 0 {
		return nil, NewValidationError(path+".clients", "workunit requires at least one client")
	}

	task := &types.WorkUnitTask{}
	for i := 0; i+1 < len(clientsNode.Content); i += 2 {
		client := types.Role(clientsNode.Content[i].Value)
		fieldPath := fmt.Sprintf("%s.clients.%s", path, client)
		if client.Kind() != "client" || !client.Qualified() {
			return nil, NewValidationError(fieldPath, "workunit entries must name client roles")
		}
		var scripts []string
		if err := clientsNode.Content[i+1].Decode(&scripts); err != nil {
			return nil, wrapNodeError(err, clientsNode.Content[i+1])
		}
		if len(scripts) == 0 {
			return nil, NewValidationError(fieldPath, "client must list at least one script")
		}
		task.Clients = append(task.Clients, types.ClientScripts{Client: client, Scripts: scripts})
	}
	return task, nil
}

func (p *ScenarioParser) parseInstallUpgrade(node *yaml.Node, path string) (types.Task, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) == 0 {
		return nil, NewValidationError(path, "install.upgrade requires a target mapping")
	}

	task := &types.InstallUpgradeTask{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var spec types.BranchSpec
		if err := node.Content[i+1].Decode(&spec); err != nil {
			return nil, wrapNodeError(err, node.Content[i+1])
		}
		if spec.Branch == "" {
			return nil, NewValidationError(fmt.Sprintf("%s.%s.branch", path, key), "upgrade requires a branch name")
		}
		if key == "all" {
			task.All = &spec
			continue
		}
		task.PerRole = append(task.PerRole, types.RoleBranch{Role: types.Role(key), Branch: spec.Branch})
	}

	if task.All != nil && len(task.PerRole) > 0 {
		return nil, NewValidationError(path, "install.upgrade cannot mix 'all' with per-role overrides")
	}
	return task, nil
}

func (p *ScenarioParser) parseServiceRestart(node *yaml.Node, path string) (types.Task, error) {
	task := &types.ServiceRestartTask{}

	switch node.Kind {
	case yaml.SequenceNode:
		// Plain sequence form: ordered role list, default policy.
		var roleNames []string
		if err := node.Decode(&roleNames); err != nil {
			return nil, wrapNodeError(err, node)
		}
		for _, name := range roleNames {
			task.Roles = append(task.Roles, types.Role(name))
		}

	case yaml.MappingNode:
		// Mapping form makes the restart policy explicit.
		var params struct {
			Policy string   `yaml:"policy"`
			Roles  []string `yaml:"roles"`
		}
		if err := node.Decode(&params); err != nil {
			return nil, wrapNodeError(err, node)
		}
		switch params.Policy {
		case "", string(types.RestartRolling):
			task.Policy = types.RestartRolling
		case string(types.RestartParallel):
			task.Policy = types.RestartParallel
		default:
			return nil, NewValidationError(path+".policy",
				fmt.Sprintf("unknown restart policy %q (want rolling or parallel)", params.Policy))
		}
		for _, name := range params.Roles {
			task.Roles = append(task.Roles, types.Role(name))
		}

	default:
		return nil, NewValidationError(path, "ceph.restart requires a role list")
	}

	if len(task.Roles) == 0 {
		return nil, NewValidationError(path+".roles", "ceph.restart requires at least one role")
	}
	for i, role := range task.Roles {
		if !role.Qualified() {
			return nil, NewValidationError(fmt.Sprintf("%s.roles[%d]", path, i),
				fmt.Sprintf("role %q must be of the form kind.index", role))
		}
	}
	return task, nil
}

// validate applies whole-document invariants after decoding.
func (p *ScenarioParser) validate(scenario *types.Scenario) error {
	seen := make(map[types.Role]bool)
	for i, group := range scenario.Groups {
		for j, role := range group.Roles {
			if seen[role] {
				return NewValidationError(fmt.Sprintf("roles[%d][%d]", i, j),
					fmt.Sprintf("duplicate role name: %s", role))
			}
			seen[role] = true
		}
	}

	if len(scenario.Tasks) == 0 {
		return NewValidationError("tasks", "scenario must define at least one task")
	}
	return nil
}

func isNullNode(node *yaml.Node) bool {
	return node == nil || node.Kind == 0 ||
		(node.Kind == yaml.ScalarNode && (node.Tag == "!!null" || node.Value == ""))
}

func isEmptyMapping(node *yaml.Node) bool {
	return node != nil && node.Kind == yaml.MappingNode && len(node.Content) == 0
}

// wrapYAMLError converts a YAML error to a ParseError with line information.
func wrapYAMLError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	line, column := extractLineColumn(errStr)
	return NewParseError(line, column, cleanYAMLErrorMessage(errStr), err)
}

// wrapNodeError reports a decode failure at the node's own position.
func wrapNodeError(err error, node *yaml.Node) error {
	return NewParseError(node.Line, node.Column, cleanYAMLErrorMessage(err.Error()), err)
}

// extractLineColumn attempts to extract line and column from a YAML error message.
func extractLineColumn(errStr string) (int, int) {
	var line, column int
	if idx := strings.Index(errStr, "line "); idx != -1 {
		fmt.Sscanf(errStr[idx:], "line %d", &line)
	}
	if idx := strings.Index(errStr, "column "); idx != -1 {
		fmt.Sscanf(errStr[idx:], "column %d", &column)
	}
	return line, column
}

// cleanYAMLErrorMessage creates a cleaner error message.
func cleanYAMLErrorMessage(errStr string) string {
	errStr = strings.TrimPrefix(errStr, "yaml: ")
	if len(errStr) > 0 {
		errStr = strings.ToUpper(errStr[:1]) + errStr[1:]
	}
	return errStr
}
