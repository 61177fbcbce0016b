package models

// StepOutput is what a succeeded step left behind for later steps.
type StepOutput struct {
	Output map[string]any `json:"output"`
}

// StepOutputs maps step ids to their recorded output. Only steps that have
// already succeeded in the current run have an entry.
type StepOutputs map[string]StepOutput

// Record stores the output of a succeeded step.
func (s StepOutputs) Record(stepID string, output map[string]any) {
	if output == nil {
		output = map[string]any{}
	}

	s[stepID] = StepOutput{Output: output}
}
