// Package policy gates a component's install step through a set of Rego
// policies, evaluated via OPA.
package policy

import "time"

// Severity classifies a policy violation's blocking weight.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is one named Rego module evaluated against every component
// about to install.
type Policy struct {
	Name        string
	Description string
	Rego        string
	Severity    Severity
	Enabled     bool
}

// Resource is the input a policy evaluates: the minimal shape a
// component's recipe exposes to Rego. No plan or drift fields; those
// concerns are out of scope for a component install gate.
type Resource struct {
	Name          string                 `json:"name"`
	Kind          string                 `json:"kind"`
	Class         string                 `json:"class,omitempty"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// Violation is one denied rule result.
type Violation struct {
	Policy   string
	Message  string
	Severity Severity
}

// Decision is the result of evaluating every enabled policy against a
// Resource.
type Decision struct {
	Allowed     bool
	Violations  []Violation
	EvaluatedAt time.Time
}
