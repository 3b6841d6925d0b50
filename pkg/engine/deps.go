package engine

import (
	"regexp"
	"strings"

	"github.com/edgeorch/orchestrator/pkg/orcherr"
)

// dependencyKeys are the config keys ComponentRegistry tries, in order,
// when parsing a component's declared dependencies.
var dependencyKeys = []string{"dependencies", "dependency", "requires", "defaultimpl"}

// depEntryPattern splits a free-text dependency declaration into
// "name[:state]" entries separated by commas, semicolons, or spaces.
var depEntryPattern = regexp.MustCompile(`([^,:; ]+)(:([^,; ]+))?`)

// allStates lists every State in declaration order, used for the
// case-insensitive prefix match matchStateByPrefix performs against a
// friendly state name like "running" or "start".
var allStates = []State{
	StateNew, StateInstalling, StateAwaitingStartup, StateStarting,
	StateRunning, StateStopping, StateFinished, StateErrored, StateBroken,
}

// ParseDependencies parses a declared dependency string of the form
// "<name>[:<state>], …". An omitted state defaults to
// Running. Returns an error (bad dependency syntax) if any entry's state
// fragment doesn't prefix-match a known state, or the string is entirely
// unparseable whitespace-only garbage that still isn't empty.
func ParseDependencies(declared string) ([]DependencyRef, error) {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return nil, nil
	}

	matches := depEntryPattern.FindAllStringSubmatch(declared, -1)
	if matches == nil {
		return nil, errBadDependencySyntax(declared)
	}

	var refs []DependencyRef
	for _, m := range matches {
		name := m[1]
		required := StateRunning
		if fragment := m[3]; fragment != "" {
			s, ok := matchStateByPrefix(fragment)
			if !ok {
				return nil, errBadDependencySyntax(declared)
			}
			required = s
		}
		refs = append(refs, DependencyRef{Name: name, Required: required})
	}

	return refs, nil
}

func matchStateByPrefix(fragment string) (State, bool) {
	lower := strings.ToLower(fragment)
	for _, s := range allStates {
		if strings.HasPrefix(strings.ToLower(string(s)), lower) {
			return s, true
		}
	}
	return "", false
}

func errBadDependencySyntax(declared string) error {
	return orcherr.NewValidation(orcherr.CodeDependencyKey, "bad dependency syntax: "+declared, nil)
}
