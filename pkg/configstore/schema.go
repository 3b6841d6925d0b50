package configstore

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// builtinServiceSchema constrains the shape of every "services.<name>"
// subtree:
// a version/versionRequirement pair and a free-text dependency
// declaration, loosely typed beyond that since lifecycle/configuration
// vary per component.
const builtinServiceSchema = `
#Service: {
	version?:            string
	versionRequirement?: string
	dependencies?:       string
	dependency?:         string
	requires?:           string
	defaultimpl?:        string
	class?:              string
	lifecycle?:          {...}
	configuration?:      {...}
	setenv?:             {[string]: string}
}
`

// schemaValidator validates a decoded "services.<name>" subtree against
// builtinServiceSchema before it's admitted into the live tree.
type schemaValidator struct {
	ctx    *cue.Context
	schema cue.Value
}

func newSchemaValidator() (*schemaValidator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(builtinServiceSchema).LookupPath(cue.ParsePath("#Service"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile builtin service schema: %w", err)
	}
	return &schemaValidator{ctx: ctx, schema: schema}, nil
}

// validateService checks data (a decoded services.<name> subtree)
// against the schema. A subtree with keys the schema doesn't recognise
// is still accepted — CUE's open struct semantics mean extra keys (e.g.
// component-specific lifecycle fields) don't fail validation, only type
// mismatches on recognised fields do.
func (v *schemaValidator) validateService(name string, data map[string]interface{}) error {
	encoded := v.ctx.Encode(data)
	if err := encoded.Err(); err != nil {
		return fmt.Errorf("encode services.%s: %w", name, err)
	}
	unified := v.schema.Unify(encoded)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("services.%s failed schema validation: %w", name, err)
	}
	return nil
}
