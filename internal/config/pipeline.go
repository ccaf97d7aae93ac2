package config

import (
	"fmt"
	"time"

	"github.com/tiptoro/gateway/pipeline"
)

// StageConfig is the static definition of one pipeline stage as declared in
// configuration. ConfidenceThreshold is a pointer so "not gated" is
// distinguishable from a zero threshold.
type StageConfig struct {
	Name                 string   `toml:"name"`
	Capability           string   `toml:"capability"`
	Inputs               []string `toml:"inputs"`
	Outputs              []string `toml:"outputs"`
	RequiresConfirmation bool     `toml:"requires_confirmation"`
	MaxAttempts          int      `toml:"max_attempts"`
	ConfidenceThreshold  *float64 `toml:"confidence_threshold"`
}

// PipelineConfig is the pipeline definition boundary: the stage table and
// the named, ordered pipeline definitions. Loaded once at startup, never
// mutated at runtime.
type PipelineConfig struct {
	CallTimeout string              `toml:"call_timeout"`
	Stages      []StageConfig       `toml:"stages"`
	Definitions map[string][]string `toml:"definitions"`
}

// Pipeline names used by the gateway.
const (
	PipelineMistake = "mistake"
	PipelineReport  = "report"
)

// CallTimeoutDuration returns CallTimeout as a time.Duration.
func (c *PipelineConfig) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallTimeout)
	return d
}

// StageDefinitions converts the configured stage table to pipeline stages.
func (c *PipelineConfig) StageDefinitions() []pipeline.Stage {
	stages := make([]pipeline.Stage, 0, len(c.Stages))
	for _, s := range c.Stages {
		stages = append(stages, pipeline.Stage{
			Name:                 s.Name,
			Capability:           s.Capability,
			InputKeys:            s.Inputs,
			OutputKeys:           s.Outputs,
			RequiresConfirmation: s.RequiresConfirmation,
			MaxAttempts:          s.MaxAttempts,
			ConfidenceThreshold:  s.ConfidenceThreshold,
		})
	}
	return stages
}

// Finalize applies defaults and validation. With no stages configured, the
// built-in mistake and report pipelines are installed.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Stage tables and
// definitions replace wholesale: partial stage merges would splice
// incompatible contracts.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.CallTimeout != "" {
		c.CallTimeout = overlay.CallTimeout
	}
	if overlay.Stages != nil {
		c.Stages = overlay.Stages
	}
	if overlay.Definitions != nil {
		c.Definitions = overlay.Definitions
	}
}

func (c *PipelineConfig) loadDefaults() {
	if c.CallTimeout == "" {
		c.CallTimeout = "30s"
	}
	if len(c.Stages) == 0 {
		c.Stages = defaultStages()
	}
	if len(c.Definitions) == 0 {
		c.Definitions = map[string][]string{
			PipelineMistake: {"vision_perception", "ingest", "analysis"},
			PipelineReport:  {"report"},
		}
	}
}

func (c *PipelineConfig) validate() error {
	if _, err := time.ParseDuration(c.CallTimeout); err != nil {
		return fmt.Errorf("invalid call_timeout: %w", err)
	}

	seen := make(map[string]bool, len(c.Stages))
	for _, s := range c.StageDefinitions() {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage %s", s.Name)
		}
		seen[s.Name] = true
	}

	for name, def := range c.Definitions {
		if len(def) == 0 {
			return fmt.Errorf("pipeline %s: empty definition", name)
		}
		for _, stageName := range def {
			if !seen[stageName] {
				return fmt.Errorf("pipeline %s references undeclared stage %s", name, stageName)
			}
		}
	}
	return nil
}

func threshold(v float64) *float64 { return &v }

// defaultStages is the built-in stage table for the standard mistake
// processing flow and the study report flow.
func defaultStages() []StageConfig {
	return []StageConfig{
		{
			Name:       "vision_perception",
			Capability: "vision_perception",
			Inputs:     []string{"image_source"},
			Outputs: []string{
				"raw_question_text",
				"raw_answer_text",
				"clean_question_image_url",
				"handwritten_answer_image_url",
			},
			RequiresConfirmation: true,
			MaxAttempts:          3,
			ConfidenceThreshold:  threshold(0.6),
		},
		{
			Name:       "ingest",
			Capability: "ingest",
			Inputs: []string{
				"verified_question_text",
				"verified_answer_text",
				"subject",
				"grade",
				"error_reason",
			},
			Outputs: []string{
				"question_id",
				"record_id",
				"is_duplicate_question",
			},
			MaxAttempts: 3,
		},
		{
			Name:       "analysis",
			Capability: "analysis",
			Inputs: []string{
				"verified_question_text",
				"verified_answer_text",
				"subject",
				"grade",
				"error_reason",
				"record_id",
			},
			Outputs: []string{
				"knowledge_nodes",
				"analysis_summary",
				"similar_question_keywords",
			},
			MaxAttempts: 2,
		},
		{
			Name:        "report",
			Capability:  "report",
			Outputs:     []string{"report_pdf_url", "report_page_count"},
			MaxAttempts: 2,
		},
	}
}
