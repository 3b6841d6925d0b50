package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/edgeorch/orchestrator/pkg/engine"
	"github.com/edgeorch/orchestrator/pkg/platform"
	"github.com/edgeorch/orchestrator/pkg/skipif"
)

// resolveLifecycle walks a recipe's raw "lifecycle" YAML mapping,
// resolving every platform-tagged block down to one Step per step name
// using ranks.
func resolveLifecycle(node *yaml.Node, ranks platform.Ranks) (engine.LifecycleBlock, error) {
	block := engine.LifecycleBlock{Steps: make(map[string]*engine.Step)}
	if node == nil {
		return block, nil
	}
	if node.Kind != yaml.MappingNode {
		return block, fmt.Errorf("lifecycle must be a mapping")
	}

	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		if key == timerKey {
			spec, err := resolveTimer(val)
			if err != nil {
				return block, err
			}
			block.Timer = spec
			continue
		}

		step, err := resolveStep(val, ranks)
		if err != nil {
			return block, fmt.Errorf("step %s: %w", key, err)
		}
		block.Steps[key] = step
	}

	return block, nil
}

// resolveStep resolves one step's node, recursing through any number of
// platform-tag levels until it reaches either a scalar (raw shell string)
// or a Topics leaf (script/skipif/doif/timeout/setenv), applying
// platform.PickByOS at every tagged level.
func resolveStep(node *yaml.Node, ranks platform.Ranks) (*engine.Step, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}

	switch node.Kind {
	case yaml.ScalarNode:
		return &engine.Step{Command: node.Value}, nil

	case yaml.MappingNode:
		if isTopicsLeaf(node) {
			return decodeTopics(node)
		}
		chosen := pickPlatformChild(node, ranks)
		if chosen == nil {
			return nil, nil
		}
		return resolveStep(chosen, ranks)

	default:
		return nil, fmt.Errorf("unsupported lifecycle node kind %v", node.Kind)
	}
}

// isTopicsLeaf reports whether mapping is a Topics block as
// opposed to a platform-tagged map of child blocks: any recognised
// Topics key settles it.
func isTopicsLeaf(node *yaml.Node) bool {
	for i := 0; i < len(node.Content); i += 2 {
		if topicsKeys[node.Content[i].Value] {
			return true
		}
	}
	return false
}

// pickPlatformChild selects node's highest-ranked tagged child in
// document order.
func pickPlatformChild(node *yaml.Node, ranks platform.Ranks) *yaml.Node {
	var tags []string
	for i := 0; i < len(node.Content); i += 2 {
		tags = append(tags, node.Content[i].Value)
	}
	if len(tags) == 0 {
		return nil
	}

	best, found := ranks.PickByOS(tags)
	if !found {
		best = tags[0]
	}

	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == best {
			return node.Content[i+1]
		}
	}
	return nil
}

// topicsLeaf is the decode target for a Topics block.
type topicsLeaf struct {
	Script  string            `yaml:"script"`
	Skipif  string            `yaml:"skipif"`
	Doif    string            `yaml:"doif"`
	Timeout float64           `yaml:"timeout"`
	Setenv  map[string]string `yaml:"setenv"`
}

func decodeTopics(node *yaml.Node) (*engine.Step, error) {
	var t topicsLeaf
	if err := node.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode topics block: %w", err)
	}

	cond, err := skipif.Parse(t.Skipif, t.Doif)
	if err != nil {
		return nil, err
	}

	return &engine.Step{
		Command:   t.Script,
		Condition: cond,
		Timeout:   t.Timeout,
		Setenv:    t.Setenv,
	}, nil
}

func resolveTimer(node *yaml.Node) (*engine.TimerSpec, error) {
	var t struct {
		Period float64 `yaml:"period"`
		Fuzz   float64 `yaml:"fuzz"`
	}
	if err := node.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode timer block: %w", err)
	}
	return &engine.TimerSpec{Period: t.Period, Fuzz: t.Fuzz}, nil
}
