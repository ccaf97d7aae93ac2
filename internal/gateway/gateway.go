// Package gateway exposes the mistake-processing service: task submission,
// human confirmation of perception output, task inspection, and study
// report generation. It assembles the stage registry and orchestrators
// from configuration and serializes runs per task.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/internal/config"
	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
)

// Context field keys owned by the gateway.
const (
	FieldImageSource          = "image_source"
	FieldSubject              = "subject"
	FieldGrade                = "grade"
	FieldErrorReason          = "error_reason"
	FieldRawQuestionText      = "raw_question_text"
	FieldRawAnswerText        = "raw_answer_text"
	FieldVerifiedQuestionText = "verified_question_text"
	FieldVerifiedAnswerText   = "verified_answer_text"
)

// SubmitCommand carries a student's mistake photo submission.
type SubmitCommand struct {
	OwnerID     string `json:"owner_id"`
	ImageSource string `json:"image_source"`
	Subject     string `json:"subject"`
	Grade       string `json:"grade"`
	ErrorReason string `json:"error_reason"`
}

// ConfirmCommand carries the student's corrections to the perception
// output. Empty fields fall back to the raw OCR text.
type ConfirmCommand struct {
	VerifiedQuestionText string `json:"verified_question_text"`
	VerifiedAnswerText   string `json:"verified_answer_text"`
}

// ReportCommand requests a study report for one student.
type ReportCommand struct {
	OwnerID string `json:"owner_id"`
}

// System defines the public contract for gateway operations.
type System interface {
	Handler() *Handler

	// Submit registers a new mistake task and runs the pipeline until it
	// completes, suspends for confirmation, or halts.
	Submit(ctx context.Context, cmd SubmitCommand) (*pipeline.Context, error)
	// Confirm applies verified text to a suspended task and resumes it.
	Confirm(ctx context.Context, taskID uuid.UUID, cmd ConfirmCommand) (*pipeline.Context, error)
	// Find returns the current snapshot of a task.
	Find(ctx context.Context, taskID uuid.UUID) (*pipeline.Context, error)
	// Report runs the report pipeline for a student.
	Report(ctx context.Context, cmd ReportCommand) (*pipeline.Context, error)
}

type service struct {
	mistake *pipeline.Orchestrator
	report  *pipeline.Orchestrator
	store   pipeline.Store
	locks   *keyedMutex
	logger  *slog.Logger
}

// New assembles the gateway from the pipeline configuration, the shared
// context store, and the capability invoker.
func New(
	cfg *config.PipelineConfig,
	store pipeline.Store,
	invoker pipeline.Invoker,
	logger *slog.Logger,
) (System, error) {
	registry := pipeline.NewRegistry()
	for _, stage := range cfg.StageDefinitions() {
		if err := registry.Register(stage); err != nil {
			return nil, fmt.Errorf("register stage %s: %w", stage.Name, err)
		}
	}

	orchestrators := make(map[string]*pipeline.Orchestrator, len(cfg.Definitions))
	for name, definition := range cfg.Definitions {
		o, err := pipeline.New(pipeline.Config{
			Registry:    registry,
			Definition:  definition,
			Invoker:     invoker,
			Store:       store,
			CallTimeout: cfg.CallTimeoutDuration(),
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build pipeline %s: %w", name, err)
		}
		orchestrators[name] = o
	}

	mistake, ok := orchestrators[config.PipelineMistake]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, config.PipelineMistake)
	}
	report, ok := orchestrators[config.PipelineReport]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, config.PipelineReport)
	}

	return &service{
		mistake: mistake,
		report:  report,
		store:   store,
		locks:   newKeyedMutex(),
		logger:  logger.With("system", "gateway"),
	}, nil
}

func (s *service) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *service) Submit(ctx context.Context, cmd SubmitCommand) (*pipeline.Context, error) {
	if err := validateSubmit(cmd); err != nil {
		return nil, err
	}

	tc := pipeline.NewContext(uuid.New(), cmd.OwnerID)
	tc.SetField(FieldImageSource, cmd.ImageSource)
	tc.SetField(FieldSubject, cmd.Subject)
	tc.SetField(FieldGrade, cmd.Grade)
	tc.SetField(FieldErrorReason, cmd.ErrorReason)

	unlock := s.locks.lock(tc.TaskID)
	defer unlock()

	s.logger.Info("task submitted", "task_id", tc.TaskID, "owner", cmd.OwnerID)
	return s.mistake.Run(ctx, tc, "")
}

func (s *service) Confirm(ctx context.Context, taskID uuid.UUID, cmd ConfirmCommand) (*pipeline.Context, error) {
	unlock := s.locks.lock(taskID)
	defer unlock()

	tc, err := s.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if tc.Status != pipeline.StatusAwaitingInput {
		return nil, pipeline.ErrInvalidResumeState
	}

	question := cmd.VerifiedQuestionText
	if question == "" {
		question, _ = stringValue(tc, FieldRawQuestionText)
	}
	if question == "" {
		return nil, ErrEmptyVerifiedText
	}
	answer := cmd.VerifiedAnswerText
	if answer == "" {
		answer, _ = stringValue(tc, FieldRawAnswerText)
	}

	tc.SetField(FieldVerifiedQuestionText, question)
	tc.SetField(FieldVerifiedAnswerText, answer)

	s.logger.Info("task confirmed", "task_id", taskID, "stage", tc.CurrentStage)
	return s.mistake.Run(ctx, tc, tc.CurrentStage)
}

func (s *service) Find(ctx context.Context, taskID uuid.UUID) (*pipeline.Context, error) {
	return s.store.Load(ctx, taskID)
}

func (s *service) Report(ctx context.Context, cmd ReportCommand) (*pipeline.Context, error) {
	if cmd.OwnerID == "" {
		return nil, ErrMissingOwner
	}

	tc := pipeline.NewContext(uuid.New(), cmd.OwnerID)

	unlock := s.locks.lock(tc.TaskID)
	defer unlock()

	s.logger.Info("report requested", "task_id", tc.TaskID, "owner", cmd.OwnerID)
	return s.report.Run(ctx, tc, "")
}

func validateSubmit(cmd SubmitCommand) error {
	if cmd.OwnerID == "" {
		return ErrMissingOwner
	}
	if cmd.ImageSource == "" {
		return ErrMissingImageSource
	}
	if !records.ValidSubject(cmd.Subject) {
		return records.ErrInvalidSubject
	}
	if !records.ValidGrade(cmd.Grade) {
		return records.ErrInvalidGrade
	}
	if !records.ValidReason(cmd.ErrorReason) {
		return records.ErrInvalidReason
	}
	return nil
}

func stringValue(tc *pipeline.Context, key string) (string, bool) {
	v, ok := tc.Field(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
