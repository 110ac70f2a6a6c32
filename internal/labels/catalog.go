package labels

// Definition describes a repository label.
type Definition struct {
	Name        string `json:"name" yaml:"name"`
	Color       string `json:"color" yaml:"color"`
	Description string `json:"description" yaml:"description"`
}

// Catalog returns every label the workflow uses, grouped by kind.
func Catalog() []Definition {
	return []Definition{
		{StageTriage.Label(), "0052cc", "Issue is being triaged"},
		{StagePlan.Label(), "1d76db", "Implementation plan is being written"},
		{StagePrioritize.Label(), "5319e7", "Priority is being assessed"},
		{StageAwaitingImplementationApproval.Label(), "fbca04", "Waiting for a human to approve implementation"},
		{StageImplement.Label(), "0e8a16", "Implementation in progress"},
		{StagePROpened.Label(), "006b75", "Pull request opened"},
		{StageAwaitingDeployApproval.Label(), "f9d0c4", "Waiting for a human to approve deployment"},
		{StageBlocked.Label(), "d93f0b", "Blocked by policy or a failed check"},
		{StageDone.Label(), "0e8a16", "Work is complete"},

		{RequestBug.Label(), "d73a4a", "Something is broken"},
		{RequestFeature.Label(), "a2eeef", "New functionality"},
		{RequestInvestigate.Label(), "7057ff", "Needs investigation"},

		{SourceUser.Label(), "c2e0c6", "Reported by a person"},
		{SourceMonitor.Label(), "fef2c0", "Reported by automated monitoring"},

		{PriorityP0.Label(), "b60205", "Critical priority"},
		{PriorityP1.Label(), "d93f0b", "High priority"},
		{PriorityP2.Label(), "fbca04", "Normal priority"},

		{AgentLabel, "e99695", "Worked on by the automation agent"},
	}
}
