// Package recipe is the default RecipeSource: it reads
// "<name>-<version>.yaml" files from a store root and resolves each
// recipe's platform-tagged lifecycle blocks down to the flat
// engine.LifecycleBlock the registry expects.
package recipe

// rawRecipe is the YAML shape a recipe file decodes into, before
// platform resolution. Required keys: name, version,
// lifecycle; optional: dependencies, componentType, setenv,
// configuration, class.
type rawRecipe struct {
	Name          string                 `yaml:"name" validate:"required"`
	Version       string                 `yaml:"version" validate:"required"`
	ComponentType string                 `yaml:"componentType"`
	Dependencies  string                 `yaml:"dependencies"`
	Class         string                 `yaml:"class"`
	Setenv        map[string]string      `yaml:"setenv"`
	Configuration map[string]interface{} `yaml:"configuration"`
	Lifecycle     map[string]interface{} `yaml:"lifecycle" validate:"required"`
}

// topicsKeys are the keys that mark a lifecycle map node as a leaf
// Topics block (script/skipif/doif/timeout) rather than a platform-tagged
// map of child blocks keyed by tag.
var topicsKeys = map[string]bool{
	"script": true, "skipif": true, "doif": true, "timeout": true, "setenv": true,
}

// timerKey is the reserved lifecycle key holding a component's
// Periodicity spec; it is never itself a step name.
const timerKey = "timer"
