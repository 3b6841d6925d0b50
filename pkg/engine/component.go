package engine

import (
	"os"
	"sync"

	"github.com/edgeorch/orchestrator/pkg/periodic"
	"github.com/edgeorch/orchestrator/pkg/skipif"
)

// DependencyRef is one parsed entry of a component's explicit_deps or
// computed_deps list: "depend on Component until it reaches State".
type DependencyRef struct {
	Name     string
	Required State
}

// Component is one managed unit. All state mutation happens under mu,
// giving each component single-writer discipline: a LifecycleMachine's
// transitions are serialized per component while different components
// progress concurrently.
type Component struct {
	Name string
	Kind Kind

	// Class is the recipe's declared handler symbol, set only for
	// KindCodeBacked components. Configuration is the recipe's
	// configuration subtree. Both are exposed to a PolicyGate.
	Class         string
	Configuration map[string]interface{}

	mu            sync.Mutex
	state         State
	statusMessage string
	errored       bool
	generation    uint64

	ExplicitDeps []DependencyRef
	ComputedDeps []DependencyRef

	Lifecycle LifecycleBlock

	timer      *periodic.Timer
	handler    Handler     // non-nil only for KindCodeBacked
	runProcess *os.Process // the run step's child, while Running

	onTransition func(from, to State, reason string)
}

// LifecycleBlock holds a component's parsed lifecycle steps, keyed by
// step name (install, startup, run, shutdown, recover). Each Step may be
// nil, meaning the step is absent for the selected platform variant and
// is treated as an automatic success.
type LifecycleBlock struct {
	Steps map[string]*Step
	Timer *TimerSpec
}

// TimerSpec is a parsed lifecycle.timer block.
type TimerSpec struct {
	Period float64 // seconds
	Fuzz   float64 // fraction in [0,1]
}

// Step is one parsed lifecycle step: a shell command plus its optional
// skipif/doif guard and timeout.
type Step struct {
	Command   string
	Condition *skipif.Condition
	Timeout   float64 // seconds, 0 = no timeout
	Setenv    map[string]string
}

// newComponent constructs a Component in state New.
func newComponent(name string, kind Kind) *Component {
	return &Component{Name: name, Kind: kind, state: StateNew}
}

// State returns the component's current state.
func (c *Component) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StatusMessage returns the last non-empty human string a lifecycle step
// set.
func (c *Component) StatusMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusMessage
}

// Errored reports the sticky error flag, cleared only by a fresh
// install.
func (c *Component) Errored() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errored
}

// TimerArmed reports whether the component's periodic timer is attached.
// A Finished component with an armed timer still needs a Stop pass at
// shutdown, unlike other quiescent components.
func (c *Component) TimerArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// SetTransitionHook registers fn, invoked after every state transition
// with the component's mutex held. fn must not call back into the
// component; the Scheduler uses it to wake its reactor loop.
func (c *Component) SetTransitionHook(fn func(from, to State, reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = fn
}

func (c *Component) String() string {
	return diagnosticString(c.Name, c.State())
}
