// Package plan models deployment steps and the dependency edges between them.
//
// A Plan is validated once at construction: every dependency must name a declared step
// and the dependency graph must be acyclic. Steps are executed in a stable topological
// order, ties broken by declaration order.
package plan

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

var (
	ErrInvalidStep       = errors.New("invalid step")
	ErrDuplicateStep     = errors.New("duplicate step")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCycle             = errors.New("dependency cycle")
	ErrEmptyPlan         = errors.New("plan has no steps")
)

type Kind int

const (
	// KindDeploy creates a new contract instance and produces its address.
	KindDeploy Kind = iota + 1
	// KindTransact submits a state-changing call against an address produced earlier.
	KindTransact
)

func (k Kind) String() string {
	switch k {
	case KindDeploy:
		return "deploy"
	case KindTransact:
		return "transact"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type (
	// Arg is a constructor or call argument: either a reference to the address
	// produced by another step or a literal value.
	Arg struct {
		ref   string
		value any
	}

	// Step is one unit of deployment work.
	Step struct {
		// Name identifies the step within the plan.
		Name string
		Kind Kind
		// Contract is the compiled contract to deploy, or whose ABI is used for the call.
		Contract string
		// Record is the document key written after a deployment. Defaults to Contract.
		Record string
		// Target names the step whose deployed address receives the call.
		Target string
		// Method is the contract method invoked by a transact step.
		Method string
		Args   []Arg
	}

	Plan struct {
		steps []Step
		deps  map[string][]string
	}
)

// Ref references the address produced by the named step.
func Ref(step string) Arg {
	return Arg{ref: step}
}

// Value wraps a literal argument.
func Value(v any) Arg {
	return Arg{value: v}
}

// IsRef reports whether the argument references another step.
func (a Arg) IsRef() bool {
	return a.ref != ""
}

func (a Arg) RefName() string {
	return a.ref
}

func (a Arg) Literal() any {
	return a.value
}

func (a Arg) String() string {
	if a.IsRef() {
		return "@" + a.ref
	}
	return fmt.Sprintf("%v", a.value)
}

// RecordName is the deployment document key for a deploy step.
func (s Step) RecordName() string {
	if s.Record != "" {
		return s.Record
	}
	return s.Contract
}

// Dependencies lists the steps whose addresses this step consumes, without duplicates.
func (s Step) Dependencies() []string {
	seen := make(map[string]struct{})
	var deps []string

	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		deps = append(deps, name)
	}

	if s.Kind == KindTransact && s.Target != "" {
		add(s.Target)
	}
	for _, arg := range s.Args {
		if arg.IsRef() {
			add(arg.ref)
		}
	}

	return deps
}

func (s Step) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: step name is required", ErrInvalidStep)
	}
	if s.Contract == "" {
		return fmt.Errorf("%w: '%s' has no contract", ErrInvalidStep, s.Name)
	}

	switch s.Kind {
	case KindDeploy:
		if s.Target != "" || s.Method != "" {
			return fmt.Errorf("%w: deploy step '%s' cannot have a target or method", ErrInvalidStep, s.Name)
		}
	case KindTransact:
		if s.Target == "" {
			return fmt.Errorf("%w: transact step '%s' has no target", ErrInvalidStep, s.Name)
		}
		if s.Method == "" {
			return fmt.Errorf("%w: transact step '%s' has no method", ErrInvalidStep, s.Name)
		}
		if s.Record != "" {
			return fmt.Errorf("%w: transact step '%s' cannot produce a record", ErrInvalidStep, s.Name)
		}
	default:
		return fmt.Errorf("%w: '%s' has unsupported kind %s", ErrInvalidStep, s.Name, s.Kind)
	}

	return nil
}

// New validates the steps and orders them by their dependencies.
func New(steps ...Step) (*Plan, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyPlan
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	index := make(map[string]int, len(steps))
	records := make(map[string]string)

	for i, step := range steps {
		if err := step.validate(); err != nil {
			return nil, err
		}
		if _, ok := index[step.Name]; ok {
			return nil, fmt.Errorf("%w: '%s'", ErrDuplicateStep, step.Name)
		}
		if step.Kind == KindDeploy {
			if other, ok := records[step.RecordName()]; ok {
				return nil, fmt.Errorf("%w: '%s' and '%s' both write record '%s'", ErrDuplicateStep, other, step.Name, step.RecordName())
			}
			records[step.RecordName()] = step.Name
		}

		index[step.Name] = i
		if err := g.AddVertex(step.Name); err != nil {
			return nil, fmt.Errorf("failed to add step '%s': %w", step.Name, err)
		}
	}

	deps := make(map[string][]string, len(steps))
	for _, step := range steps {
		stepDeps := step.Dependencies()
		for _, dep := range stepDeps {
			depIndex, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: '%s' depends on '%s'", ErrUnknownDependency, step.Name, dep)
			}
			if dep == step.Name {
				return nil, fmt.Errorf("%w: '%s' depends on itself", ErrCycle, step.Name)
			}
			if steps[depIndex].Kind != KindDeploy {
				return nil, fmt.Errorf("%w: '%s' depends on '%s' which produces no address", ErrInvalidStep, step.Name, dep)
			}

			if err := g.AddEdge(dep, step.Name); err != nil {
				if errors.Is(err, graph.ErrEdgeCreatesCycle) {
					return nil, fmt.Errorf("%w: '%s' -> '%s'", ErrCycle, dep, step.Name)
				}
				return nil, fmt.Errorf("failed to add dependency '%s' -> '%s': %w", dep, step.Name, err)
			}
		}
		deps[step.Name] = stepDeps
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return index[a] < index[b]
	})
	if err != nil {
		return nil, fmt.Errorf("failed to order steps: %w", err)
	}

	ordered := make([]Step, 0, len(order))
	for _, name := range order {
		ordered = append(ordered, steps[index[name]])
	}

	return &Plan{
		steps: ordered,
		deps:  deps,
	}, nil
}

// Steps returns the steps in execution order.
func (p *Plan) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// Step looks up a step by name.
func (p *Plan) Step(name string) (Step, bool) {
	for _, step := range p.steps {
		if step.Name == name {
			return step, true
		}
	}
	return Step{}, false
}

// DependenciesOf returns the direct dependencies of the named step.
func (p *Plan) DependenciesOf(name string) []string {
	return append([]string(nil), p.deps[name]...)
}

// Records returns the document keys written by the plan's deploy steps, in execution order.
func (p *Plan) Records() []string {
	var records []string
	for _, step := range p.steps {
		if step.Kind == KindDeploy {
			records = append(records, step.RecordName())
		}
	}
	return records
}
