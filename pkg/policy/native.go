package policy

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stratus-ops/conductor/pkg/contracts"
)

// nativeCheck is a check that needs more than a CEL expression: schema
// validation and version parsing live here. run returns false when the check
// is not applicable to the plan, in which case no verification is recorded —
// an inapplicable check is "no information", not a pass.
type nativeCheck struct {
	name string
	run  func(plan *contracts.ExecutionPlan) (contracts.Verification, bool)
}

// actionArgSchemas pins the argument shape for action types with a known
// contract. Types without a schema are skipped by the args check.
var actionArgSchemas = map[contracts.ActionType]string{
	contracts.ActionExecuteDeployment: `{
		"type": "object",
		"properties": {
			"service": {"type": "string", "minLength": 1},
			"environment": {"enum": ["production", "staging"]},
			"version": {"type": "string"}
		},
		"required": ["service"]
	}`,
	contracts.ActionRollbackRelease: `{
		"type": "object",
		"properties": {
			"service": {"type": "string", "minLength": 1}
		},
		"required": ["service"]
	}`,
	contracts.ActionUpdateInventory: `{
		"type": "object",
		"properties": {
			"source": {"type": "string"},
			"sku": {"type": "string"}
		}
	}`,
	contracts.ActionNotifyOperators: `{
		"type": "object",
		"properties": {
			"message": {"type": "string", "minLength": 1}
		},
		"required": ["message"]
	}`,
}

func defaultNativeChecks() ([]nativeCheck, error) {
	schemas, err := compileArgSchemas()
	if err != nil {
		return nil, err
	}

	return []nativeCheck{
		{name: "args_schema", run: func(plan *contracts.ExecutionPlan) (contracts.Verification, bool) {
			return checkArgSchemas(schemas, plan)
		}},
		{name: "deployment_version_semver", run: checkDeploymentVersions},
	}, nil
}

func compileArgSchemas() (map[contracts.ActionType]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiled := make(map[contracts.ActionType]*jsonschema.Schema, len(actionArgSchemas))
	for actionType, src := range actionArgSchemas {
		url := fmt.Sprintf("mem://schemas/%s.json", actionType)
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("policy: add schema for %s: %w", actionType, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("policy: compile schema for %s: %w", actionType, err)
		}
		compiled[actionType] = sch
	}
	return compiled, nil
}

func checkArgSchemas(schemas map[contracts.ActionType]*jsonschema.Schema, plan *contracts.ExecutionPlan) (contracts.Verification, bool) {
	applicable := false
	for i, a := range plan.Actions {
		sch, ok := schemas[a.Type]
		if !ok {
			continue
		}
		applicable = true
		args := map[string]any{}
		for k, val := range a.Args {
			args[k] = val
		}
		if err := sch.Validate(any(args)); err != nil {
			return contracts.Verification{
				Type:   "args_schema",
				Result: fmt.Sprintf("action %d (%s) has invalid args: %v", i, a.Type, err),
				Pass:   false,
			}, true
		}
	}
	if !applicable {
		return contracts.Verification{}, false
	}
	return contracts.Verification{
		Type:   "args_schema",
		Result: "all typed action args match their schemas",
		Pass:   true,
	}, true
}

// checkDeploymentVersions requires pinned deployment versions to parse as
// semantic versions. "latest" and an absent version are accepted; resolving
// them is the deployment tool's business.
func checkDeploymentVersions(plan *contracts.ExecutionPlan) (contracts.Verification, bool) {
	applicable := false
	for i, a := range plan.Actions {
		if a.Type != contracts.ActionExecuteDeployment && a.Type != contracts.ActionRollbackRelease {
			continue
		}
		applicable = true
		raw, ok := a.Args["version"].(string)
		if !ok || raw == "" || raw == "latest" {
			continue
		}
		if _, err := semver.NewVersion(raw); err != nil {
			return contracts.Verification{
				Type:   "deployment_version_semver",
				Result: fmt.Sprintf("action %d pins version %q which is not semver: %v", i, raw, err),
				Pass:   false,
			}, true
		}
	}
	if !applicable {
		return contracts.Verification{}, false
	}
	return contracts.Verification{
		Type:   "deployment_version_semver",
		Result: "all pinned deployment versions are semver",
		Pass:   true,
	}, true
}
