// Package pipeline implements the staged processing engine for mistake
// photo tasks. An Orchestrator walks an ordered pipeline of stages over a
// shared task context, invoking each stage through a capability adapter,
// persisting a snapshot after every stage transition, and stopping at
// completion, at a human-confirmation suspension point, or at a failure.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

const defaultCallTimeout = 30 * time.Second

// Config assembles an Orchestrator.
type Config struct {
	// Registry holds the stage definitions referenced by Definition.
	Registry *Registry
	// Definition is the ordered sequence of stage names to execute.
	Definition []string
	// Invoker dispatches capability calls.
	Invoker Invoker
	// Store persists context snapshots after each stage transition.
	Store Store
	// CallTimeout bounds a single capability invocation. Defaults to 30s.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Orchestrator executes one pipeline definition. It is stateless between
// calls: all progress lives on the task context and in the store, so a
// resume may happen in a different process than the original run.
type Orchestrator struct {
	stages      []Stage
	invoker     Invoker
	store       Store
	callTimeout time.Duration
	logger      *slog.Logger
}

// New resolves the pipeline definition against the registry and returns an
// orchestrator ready to run tasks.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if len(cfg.Definition) == 0 {
		return nil, fmt.Errorf("pipeline definition required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("invoker required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}

	stages, err := cfg.Registry.InOrder(cfg.Definition)
	if err != nil {
		return nil, fmt.Errorf("resolve pipeline: %w", err)
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Orchestrator{
		stages:      stages,
		invoker:     cfg.Invoker,
		store:       cfg.Store,
		callTimeout: timeout,
		logger:      logger.With("system", "pipeline"),
	}, nil
}

// Stages returns the resolved stage order.
func (o *Orchestrator) Stages() []Stage {
	return slices.Clone(o.stages)
}

type stageResult int

const (
	stageAdvance stageResult = iota
	stageSuspend
	stagePartial
	stageFailed
)

// Run executes the pipeline against tc, starting at index 0 for a pending
// context or at the stage after resumeAfter for a suspended one. It
// returns the mutated context at a stopping point. Usage violations
// (terminal context, mismatched resume target) are returned as errors and
// leave tc and its stored snapshot untouched; stage failures are encoded
// on the context itself.
func (o *Orchestrator) Run(ctx context.Context, tc *Context, resumeAfter string) (*Context, error) {
	start, err := o.startIndex(tc, resumeAfter)
	if err != nil {
		return nil, err
	}

	tc.Status = StatusRunning

	for i := start; i < len(o.stages); i++ {
		stage := o.stages[i]
		tc.CurrentStage = stage.Name

		o.logger.InfoContext(
			ctx, "stage starting",
			"task_id", tc.TaskID,
			"stage", stage.Name,
		)

		result := o.executeStage(ctx, tc, stage)

		switch result {
		case stageAdvance:
			if i == len(o.stages)-1 {
				tc.Status = StatusCompleted
			} else {
				tc.Status = StatusRunning
			}
		case stageSuspend:
			tc.Status = StatusAwaitingInput
		case stagePartial, stageFailed:
			// executeStage already set the halted status and error
		}

		if err := o.store.Save(ctx, tc); err != nil {
			return tc, fmt.Errorf("save snapshot after %s: %w", stage.Name, err)
		}

		switch tc.Status {
		case StatusAwaitingInput:
			o.logger.InfoContext(
				ctx, "pipeline suspended",
				"task_id", tc.TaskID,
				"stage", stage.Name,
			)
			return tc, nil
		case StatusPartial, StatusFailed:
			o.logger.WarnContext(
				ctx, "pipeline halted",
				"task_id", tc.TaskID,
				"stage", stage.Name,
				"status", tc.Status,
				"error", tc.Error.Message,
			)
			return tc, nil
		case StatusCompleted:
			o.logger.InfoContext(ctx, "pipeline completed", "task_id", tc.TaskID)
			return tc, nil
		}
	}

	// Resume target was the final stage: nothing left to execute.
	tc.Status = StatusCompleted
	if err := o.store.Save(ctx, tc); err != nil {
		return tc, fmt.Errorf("save snapshot: %w", err)
	}

	o.logger.InfoContext(ctx, "pipeline completed", "task_id", tc.TaskID)
	return tc, nil
}

func (o *Orchestrator) startIndex(tc *Context, resumeAfter string) (int, error) {
	if tc == nil {
		return 0, fmt.Errorf("%w: nil context", ErrInvalidResumeState)
	}
	if tc.Status.Terminal() {
		return 0, fmt.Errorf("%w: task %s is %s", ErrInvalidResumeState, tc.TaskID, tc.Status)
	}

	if resumeAfter == "" {
		if tc.Status != StatusPending {
			return 0, fmt.Errorf(
				"%w: task %s is %s, fresh runs require %s",
				ErrInvalidResumeState, tc.TaskID, tc.Status, StatusPending,
			)
		}
		return 0, nil
	}

	if tc.Status != StatusAwaitingInput {
		return 0, fmt.Errorf(
			"%w: task %s is %s, resume requires %s",
			ErrInvalidResumeState, tc.TaskID, tc.Status, StatusAwaitingInput,
		)
	}
	if resumeAfter != tc.CurrentStage {
		return 0, fmt.Errorf(
			"%w: resume_after %q, task suspended at %q",
			ErrResumeTargetMismatch, resumeAfter, tc.CurrentStage,
		)
	}

	idx := slices.IndexFunc(o.stages, func(s Stage) bool { return s.Name == resumeAfter })
	if idx < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStage, resumeAfter)
	}
	return idx + 1, nil
}

// executeStage runs one stage against the context: input contract check,
// bounded retry of the capability call, exact output verification, merge,
// and confidence gating. It appends one history record per attempt before
// evaluating the transition.
func (o *Orchestrator) executeStage(ctx context.Context, tc *Context, stage Stage) stageResult {
	for _, key := range stage.InputKeys {
		if _, ok := tc.Fields[key]; !ok {
			msg := fmt.Sprintf("missing required input %q", key)
			tc.record(stage.Name, 1, OutcomeContractViolation, msg)
			tc.halt(StatusFailed, ErrorKindContract, stage.Name, msg)
			return stageFailed
		}
	}

	payload := make(map[string]any, len(stage.InputKeys)+2)
	for _, key := range stage.InputKeys {
		payload[key] = tc.Fields[key]
	}
	payload[PayloadTaskID] = tc.TaskID.String()
	payload[PayloadOwnerID] = tc.OwnerID

	for attempt := 1; attempt <= stage.MaxAttempts; attempt++ {
		res, err := o.invoke(ctx, stage.Capability, payload)

		if err != nil {
			if IsTransient(err) {
				tc.record(stage.Name, attempt, OutcomeTransientFailure, err.Error())
				if attempt == stage.MaxAttempts {
					tc.halt(StatusFailed, ErrorKindTransient, stage.Name, fmt.Sprintf(
						"exhausted %d attempts: %v", stage.MaxAttempts, err,
					))
					return stageFailed
				}

				o.logger.WarnContext(
					ctx, "stage attempt failed, retrying",
					"task_id", tc.TaskID,
					"stage", stage.Name,
					"attempt", attempt,
					"error", err,
				)
				continue
			}

			tc.record(stage.Name, attempt, OutcomePermanentFailure, err.Error())
			tc.halt(StatusFailed, ErrorKindPermanent, stage.Name, err.Error())
			return stageFailed
		}

		if msg := outputViolation(stage, res); msg != "" {
			tc.record(stage.Name, attempt, OutcomeContractViolation, msg)
			tc.halt(StatusFailed, ErrorKindContract, stage.Name, msg)
			return stageFailed
		}

		for _, key := range stage.OutputKeys {
			tc.Fields[key] = res.Value[key]
		}

		if stage.ConfidenceThreshold != nil && *res.Confidence < *stage.ConfidenceThreshold {
			msg := fmt.Sprintf(
				"confidence %.2f below threshold %.2f",
				*res.Confidence, *stage.ConfidenceThreshold,
			)
			tc.record(stage.Name, attempt, OutcomeLowConfidence, msg)
			tc.halt(StatusPartial, ErrorKindLowConfidence, stage.Name, msg)
			return stagePartial
		}

		tc.record(stage.Name, attempt, OutcomeSucceeded, "")
		if stage.RequiresConfirmation {
			return stageSuspend
		}
		return stageAdvance
	}

	// Unreachable: the attempt loop always returns.
	return stageFailed
}

func (o *Orchestrator) invoke(ctx context.Context, capability string, payload map[string]any) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	res, err := o.invoker.Invoke(callCtx, capability, payload)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, Permanent(fmt.Errorf("capability %s returned no result", capability))
	}
	return res, nil
}

// outputViolation verifies the adapter returned exactly the declared output
// keys, and a confidence value when the stage is confidence-gated.
func outputViolation(stage Stage, res *Result) string {
	for _, key := range stage.OutputKeys {
		if _, ok := res.Value[key]; !ok {
			return fmt.Sprintf("adapter omitted declared output %q", key)
		}
	}
	if len(res.Value) != len(stage.OutputKeys) {
		for key := range res.Value {
			if !slices.Contains(stage.OutputKeys, key) {
				return fmt.Sprintf("adapter returned undeclared output %q", key)
			}
		}
	}
	if stage.ConfidenceThreshold != nil && res.Confidence == nil {
		return "adapter reported no confidence for a confidence-gated stage"
	}
	return ""
}
