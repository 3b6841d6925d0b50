package recipe

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// parseVersion parses a recipe's version segment as strict semver. A
// filename whose version doesn't parse marks the recipe as corrupted
// rather than being silently ordered lexically.
func parseVersion(raw string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("recipe version %q is corrupted: %w", raw, err)
	}
	return v, nil
}

// satisfies reports whether v meets requirement. An empty requirement
// accepts any version; otherwise requirement is a semver constraint
// expression (a bare version is an exact match; =, >=, >, <=, <, ^, ~
// and ranges are supported).
func satisfies(v *semver.Version, requirement string) (bool, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(requirement)
	if err != nil {
		return false, fmt.Errorf("bad version requirement %q: %w", requirement, err)
	}
	return c.Check(v), nil
}
