package pipeline

import "fmt"

// Stage is a named unit of pipeline work with a fixed input/output field
// contract and a per-stage failure policy. Definitions are static: built at
// process start from configuration and never mutated afterward.
type Stage struct {
	// Name uniquely identifies the stage within a registry.
	Name string `json:"name"`
	// Capability names the adapter invoked to execute the stage.
	Capability string `json:"capability"`
	// InputKeys must all be present in the context fields before execution.
	InputKeys []string `json:"input_keys"`
	// OutputKeys is the exact key set the adapter must return.
	OutputKeys []string `json:"output_keys"`
	// RequiresConfirmation suspends the pipeline after this stage succeeds,
	// pending an external (human) action.
	RequiresConfirmation bool `json:"requires_confirmation"`
	// MaxAttempts bounds retries of transient failures. Minimum 1.
	MaxAttempts int `json:"max_attempts"`
	// ConfidenceThreshold, when set, is the minimum confidence the adapter
	// must report for the pipeline to advance automatically.
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// Validate checks the static stage definition.
func (s Stage) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage name required")
	}
	if s.Capability == "" {
		return fmt.Errorf("stage %s: capability required", s.Name)
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("stage %s: max_attempts must be at least 1", s.Name)
	}
	if s.ConfidenceThreshold != nil {
		if t := *s.ConfidenceThreshold; t < 0 || t > 1 {
			return fmt.Errorf("stage %s: confidence_threshold %v outside [0,1]", s.Name, t)
		}
	}
	return nil
}
