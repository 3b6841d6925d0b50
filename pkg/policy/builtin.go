package policy

// builtinPolicies returns the policy set an Engine is preloaded with.
// None are enabled by default: a deployment's recipe names
// need not follow any particular convention, so the default gate is
// allow-all. The component-naming policy is registered disabled so an operator
// can flip it on via Engine.Enable without writing Rego from scratch.
func builtinPolicies() []Policy {
	return []Policy{componentNamingPolicy()}
}

func componentNamingPolicy() Policy {
	return Policy{
		Name:        "component-naming",
		Description: "component names must be lowercase dotted identifiers",
		Severity:    SeverityError,
		Enabled:     false,
		Rego: `package orchestrator.policies.naming

import rego.v1

deny contains violation if {
	input.resource
	name := input.resource.name
	not regex.match("^[a-z0-9]+(\\.[a-z0-9]+)*$", name)
	violation := {
		"message": sprintf("component name %q must be lowercase dotted segments", [name]),
		"severity": "error",
	}
}
`,
	}
}
