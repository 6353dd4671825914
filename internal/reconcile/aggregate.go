package reconcile

import (
	"fmt"
	"slices"
	"strings"
)

// stagePrecedence lists the stages that dominate an aggregation, worst first.
var stagePrecedence = []Stage{
	StageFailed,
	StageRestarting,
	StageDegraded,
	StageInitializing,
	StageWaiting,
}

// AggregateStages folds stages into one using worst-first precedence. The result does
// not depend on the order of the input.
func AggregateStages(stages []Stage) Stage {
	if len(stages) == 0 {
		return StageUnknown
	}
	for _, s := range stagePrecedence {
		if slices.Contains(stages, s) {
			return s
		}
	}

	allCompleted, allActive, allStopped := true, true, true
	for _, s := range stages {
		allCompleted = allCompleted && s == StageCompleted
		allActive = allActive && (s == StageRunning || s == StageCompleted)
		allStopped = allStopped && s == StageStopped
	}
	switch {
	case allCompleted:
		return StageCompleted
	case allActive:
		return StageRunning
	case allStopped:
		return StageStopped
	default:
		return StageUnknown
	}
}

// AggregateStatuses aggregates the stages of statuses.
func AggregateStatuses(statuses []ResourceStatus) Stage {
	stages := make([]Stage, 0, len(statuses))
	for _, s := range statuses {
		stages = append(stages, s.Stage)
	}
	return AggregateStages(stages)
}

// NextLifecycle resolves the lifecycle of a resource from its current lifecycle and
// the statuses of this tick.
func NextLifecycle(current Lifecycle, statuses []ResourceStatus) Transition {
	if current == LifecycleDeleting {
		return Transition{Lifecycle: LifecycleDeleting}
	}
	if len(statuses) == 0 {
		if current == LifecycleDeploying {
			return Transition{Lifecycle: current}
		}
		return Transition{Lifecycle: LifecycleCreated, Message: "no resources found"}
	}

	stage := AggregateStatuses(statuses)
	switch stage {
	case StageFailed, StageRestarting, StageDegraded:
		return Transition{Lifecycle: LifecycleError, Message: narrative(stage, statuses)}
	case StageInitializing:
		return Transition{Lifecycle: LifecycleInitializing}
	case StageWaiting:
		return Transition{Lifecycle: LifecycleDeploying}
	case StageCompleted:
		return Transition{Lifecycle: LifecycleCompleted}
	case StageRunning:
		return Transition{Lifecycle: LifecycleDeployed}
	case StageStopped:
		return Transition{Lifecycle: LifecycleStopped}
	}

	if current == LifecycleError {
		return Transition{Lifecycle: LifecycleDeploying}
	}
	return Transition{Lifecycle: current}
}

// narrative explains an error lifecycle from the statuses in the dominating stage.
func narrative(stage Stage, statuses []ResourceStatus) string {
	var parts []string
	for _, s := range statuses {
		if s.Stage != stage {
			continue
		}
		name := s.Component
		if name == "" {
			name = s.ID
		}
		if s.Message != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", name, s.Message))
		} else {
			parts = append(parts, name)
		}
	}
	slices.Sort(parts)

	var verb string
	switch stage {
	case StageRestarting:
		verb = "restarting"
	case StageDegraded:
		verb = "degraded"
	default:
		verb = "failed"
	}
	return fmt.Sprintf("%d of %d %s (%s)", len(parts), len(statuses), verb, strings.Join(parts, "; "))
}

// CompositeLifecycle combines the lifecycles of the components of a composite resource.
func CompositeLifecycle(subs []Lifecycle) Lifecycle {
	if len(subs) == 0 {
		return LifecycleCreated
	}
	for _, lc := range []Lifecycle{LifecycleError, LifecycleInitializing, LifecycleDeploying} {
		if slices.Contains(subs, lc) {
			return lc
		}
	}
	if slices.Contains(subs, LifecycleDeployed) {
		return LifecycleDeployed
	}
	allCreated := true
	for _, lc := range subs {
		allCreated = allCreated && lc == LifecycleCreated
	}
	if allCreated {
		return LifecycleCreated
	}
	if slices.Contains(subs, LifecycleDeleting) {
		return LifecycleDeleting
	}
	return LifecycleStopped
}

// ResolveComponents resolves each component group on its own and combines the results
// with CompositeLifecycle. Components without statuses count as created. Without any
// status at all the resource resolves like a plain one, so a deploying resource stays
// deploying until its components show up.
func ResolveComponents(current Lifecycle, components []string, statuses []ResourceStatus) Transition {
	if current == LifecycleDeleting || len(statuses) == 0 {
		return NextLifecycle(current, statuses)
	}

	byComponent := make(map[string][]ResourceStatus, len(components))
	for _, s := range statuses {
		byComponent[s.Component] = append(byComponent[s.Component], s)
	}

	subs := make([]Lifecycle, 0, len(components))
	var messages []string
	for _, c := range components {
		group := byComponent[c]
		var tr Transition
		if len(group) == 0 {
			tr = Transition{Lifecycle: LifecycleCreated}
		} else {
			tr = NextLifecycle(current, group)
		}
		subs = append(subs, tr.Lifecycle)
		if tr.Lifecycle == LifecycleError && tr.Message != "" {
			messages = append(messages, c+" "+tr.Message)
		}
	}

	lc := CompositeLifecycle(subs)
	tr := Transition{Lifecycle: lc}
	if lc == LifecycleError {
		tr.Message = strings.Join(messages, "; ")
	}
	return tr
}
