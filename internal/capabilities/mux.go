package capabilities

import (
	"context"
	"errors"

	"github.com/tiptoro/gateway/pipeline"
)

// Capability names served by the mux. The composites are what the stage
// table binds to; the leaves remain individually addressable so custom
// stage tables can compose them differently.
const (
	CapVisionLayout   = "vision_layout"
	CapPrintOCR       = "print_ocr"
	CapHandwritingOCR = "handwriting_ocr"
	CapInpaint        = "inpaint"
	CapLLMAnalyze     = "llm_analyze"
	CapDedupLookup    = "dedup_lookup"
	CapPersistRecord  = "persist_record"
	CapAggregate      = "aggregate"
	CapRenderPDF      = "render_pdf"

	CapVisionPerception = "vision_perception"
	CapIngest           = "ingest"
	CapAnalysis         = "analysis"
	CapReport           = "report"
)

// Func is a single capability adapter.
type Func func(ctx context.Context, payload map[string]any) (*pipeline.Result, error)

// Mux routes capability invocations to registered adapters. It is
// populated once at startup and read-only afterward.
type Mux struct {
	adapters map[string]Func
}

// NewMux creates an empty capability mux.
func NewMux() *Mux {
	return &Mux{adapters: make(map[string]Func)}
}

// Register binds an adapter to a capability name, replacing any previous
// binding.
func (m *Mux) Register(capability string, fn Func) {
	m.adapters[capability] = fn
}

// Invoke dispatches to the adapter registered for capability. An unknown
// capability is a permanent failure: retrying cannot make it appear.
func (m *Mux) Invoke(ctx context.Context, capability string, payload map[string]any) (*pipeline.Result, error) {
	fn, ok := m.adapters[capability]
	if !ok {
		return nil, permanentf("no adapter for capability %s", capability)
	}
	return fn(ctx, payload)
}

var (
	transient = pipeline.Transient
	permanent = pipeline.Permanent
)

// stringField extracts a required string from an adapter payload. A
// missing or mistyped field is permanent: the payload is fixed for the
// life of the attempt.
func stringField(payload map[string]any, key string) (string, error) {
	v, ok := payload[key]
	if !ok {
		return "", permanentf("payload missing %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", permanentf("payload field %s: expected string, got %T", key, v)
	}
	return s, nil
}

// optionalStringField extracts a string when present, tolerating absence.
func optionalStringField(payload map[string]any, key string) (string, bool, error) {
	v, ok := payload[key]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, permanentf("payload field %s: expected string, got %T", key, v)
	}
	return s, true, nil
}

func fptr(v float64) *float64 { return &v }

func minConfidence(values ...*float64) *float64 {
	var min *float64
	for _, v := range values {
		if v == nil {
			continue
		}
		if min == nil || *v < *min {
			min = fptr(*v)
		}
	}
	return min
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
