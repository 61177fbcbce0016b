// Package models defines the core domain models for declarative step workflows.
package models

// WorkflowDsl is the parsed form of a workflow definition. Steps run in
// slice order, one at a time.
type WorkflowDsl struct {
	Name    string          `json:"name"    validate:"required"`
	Trigger WorkflowTrigger `json:"trigger"`
	Steps   []WorkflowStep  `json:"steps"   validate:"required,min=1,unique=ID,dive"`
}

// WorkflowTrigger describes what starts a workflow. The engine only carries it;
// schedulers and ingress decide what Type means.
type WorkflowTrigger struct {
	Type   string         `json:"type"   validate:"required"`
	Config map[string]any `json:"config"`
}
