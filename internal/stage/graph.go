package stage

import "github.com/lucasnoah/gatekeeper/internal/labels"

// transitions is the legal stage graph. Prioritize and pr-opened have no
// edge to blocked; done is terminal.
var transitions = map[labels.Stage][]labels.Stage{
	labels.StageTriage:                         {labels.StagePlan, labels.StageBlocked},
	labels.StagePlan:                           {labels.StagePrioritize, labels.StageBlocked},
	labels.StagePrioritize:                     {labels.StageAwaitingImplementationApproval},
	labels.StageAwaitingImplementationApproval: {labels.StageImplement, labels.StageBlocked},
	labels.StageImplement:                      {labels.StagePROpened, labels.StageBlocked},
	labels.StagePROpened:                       {labels.StageAwaitingDeployApproval},
	labels.StageAwaitingDeployApproval:         {labels.StageDone, labels.StageBlocked},
	labels.StageBlocked:                        {labels.StageTriage},
	labels.StageDone:                           {},
}

// ValidTransitions returns the stages reachable from s in one step.
func ValidTransitions(s labels.Stage) []labels.Stage {
	return append([]labels.Stage(nil), transitions[s]...)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to labels.Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s labels.Stage) bool {
	return s.Valid() && len(transitions[s]) == 0
}
