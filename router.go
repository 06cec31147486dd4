package saga

import "sort"

// Target is one instance a signal is routed to.
type Target struct {
	Workflow   WorkflowType
	InstanceID string
}

type boundRule struct {
	workflow WorkflowType
	rule     RouteFunc
}

// Router maps inbound signals to saga instances. It is immutable after
// construction and safe for concurrent use.
type Router struct {
	rules map[string][]boundRule
}

// NewRouter builds the routing table of the given definitions. Rules keep
// the definition order so routing is deterministic.
func NewRouter(defs ...Definition) *Router {
	r := &Router{rules: make(map[string][]boundRule)}
	for _, def := range defs {
		for signalType, rule := range def.Routing() {
			r.rules[signalType] = append(r.rules[signalType], boundRule{workflow: def.Type(), rule: rule})
		}
	}
	return r
}

// Consumes reports whether any workflow routes signalType.
func (r *Router) Consumes(signalType string) bool {
	_, ok := r.rules[signalType]
	return ok
}

// SignalTypes returns every routed signal type, sorted.
func (r *Router) SignalTypes() []string {
	types := make([]string, 0, len(r.rules))
	for t := range r.rules {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Route returns every target of sig, across workflows. An empty result is
// a valid no-op; an UnroutableSignalError means no workflow consumes the
// signal type at all.
func (r *Router) Route(sig Message) ([]Target, error) {
	rules, ok := r.rules[sig.MessageType()]
	if !ok {
		return nil, NewUnroutableSignalError(sig.MessageType())
	}

	var targets []Target
	for _, br := range rules {
		for _, id := range dedupe(br.rule(sig)) {
			targets = append(targets, Target{Workflow: br.workflow, InstanceID: id})
		}
	}
	return targets, nil
}

// RouteFor returns the instance ids sig targets within one workflow.
func (r *Router) RouteFor(workflow WorkflowType, sig Message) []string {
	for _, br := range r.rules[sig.MessageType()] {
		if br.workflow == workflow {
			return dedupe(br.rule(sig))
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
