package pipeline

import "context"

// Reserved payload keys the orchestrator injects alongside the stage's
// declared inputs on every invocation.
const (
	PayloadTaskID  = "task_id"
	PayloadOwnerID = "owner_id"
)

// Result is the uniform outcome of a capability invocation. Value holds the
// produced output fields; Confidence is reported whenever the invoked
// stage declares a confidence threshold.
type Result struct {
	Value      map[string]any
	Confidence *float64
}

// Invoker is the uniform boundary through which the orchestrator reaches
// every external service. Implementations own all provider-specific
// behavior and classify failures via Transient and Permanent so the retry
// policy can be applied. Calls are synchronous; the orchestrator bounds
// them with a context deadline.
type Invoker interface {
	Invoke(ctx context.Context, capability string, payload map[string]any) (*Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, capability string, payload map[string]any) (*Result, error)

func (f InvokerFunc) Invoke(ctx context.Context, capability string, payload map[string]any) (*Result, error) {
	return f(ctx, capability, payload)
}
