package recipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/edgeorch/orchestrator/pkg/engine"
	"github.com/edgeorch/orchestrator/pkg/platform"
)

// fileNameFormat mirrors ComponentStore.java's RECIPE_FILE_NAME_FORMAT
// ("%s-%s.yaml"): one recipe file per (name, version) pair under Root.
const fileNameFormat = "%s-%s.yaml"

// Store is the default engine.RecipeSource: a directory of
// "<name>-<version>.yaml" files.
type Store struct {
	// Root is the directory recipe files are read from.
	Root string
	// Ranks resolves platform-tagged lifecycle blocks.
	// Detected once via platform.Detect if left nil.
	Ranks platform.Ranks

	validate *validator.Validate
}

// NewStore returns a Store rooted at root, detecting the host's platform
// tag ranks.
func NewStore(root string) *Store {
	return &Store{Root: root, Ranks: platform.Detect(), validate: validator.New()}
}

// FindRecipe implements engine.RecipeSource.
func (s *Store) FindRecipe(ctx context.Context, name, version string) (*engine.Recipe, bool, error) {
	path := filepath.Join(s.Root, fmt.Sprintf(fileNameFormat, name, version))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read recipe %s: %w", path, err)
	}

	recipe, err := s.parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	return recipe, true, nil
}

// ListVersions implements engine.RecipeSource: every version on disk for
// name that satisfies requirement, ascending. A recipe file whose
// version segment isn't valid semver is reported as corrupted rather
// than skipped or ordered lexically.
func (s *Store) ListVersions(ctx context.Context, name, requirement string) ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("read recipe store %s: %w", s.Root, err)
	}

	prefix := name + "-"
	var versions semver.Collection
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fname := entry.Name()
		if !strings.HasPrefix(fname, prefix) || !strings.HasSuffix(fname, ".yaml") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(fname, prefix), ".yaml")
		v, err := parseVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", fname, err)
		}
		ok, err := satisfies(v, requirement)
		if err != nil {
			return nil, err
		}
		if ok {
			versions = append(versions, v)
		}
	}

	sort.Sort(versions)
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.Original()
	}
	return out, nil
}

// BestMatch implements engine.RecipeSource: the highest version of name
// satisfying requirement.
func (s *Store) BestMatch(ctx context.Context, name, requirement string) (string, string, bool, error) {
	versions, err := s.ListVersions(ctx, name, requirement)
	if err != nil {
		return "", "", false, err
	}
	if len(versions) == 0 {
		return "", "", false, nil
	}
	return name, versions[len(versions)-1], true, nil
}

func (s *Store) parse(data []byte) (*engine.Recipe, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty recipe document")
	}
	top := root.Content[0]

	var raw rawRecipe
	if err := top.Decode(&raw); err != nil {
		return nil, err
	}
	validate := s.validate
	if validate == nil {
		validate = validator.New()
	}
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("recipe validation: %w", err)
	}

	ranks := s.Ranks
	if ranks == nil {
		ranks = platform.Detect()
	}

	lifecycleNode := findKey(top, "lifecycle")
	lifecycle, err := resolveLifecycle(lifecycleNode, ranks)
	if err != nil {
		return nil, err
	}

	return &engine.Recipe{
		Name:          raw.Name,
		Version:       raw.Version,
		Lifecycle:     lifecycle,
		Dependencies:  raw.Dependencies,
		ComponentType: raw.ComponentType,
		Setenv:        raw.Setenv,
		Configuration: raw.Configuration,
		Class:         raw.Class,
	}, nil
}

func findKey(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
