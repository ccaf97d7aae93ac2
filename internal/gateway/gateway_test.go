package gateway_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/internal/config"
	"github.com/tiptoro/gateway/internal/gateway"
	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
)

func fptr(v float64) *float64 { return &v }

// scriptedInvoker returns canned results per capability and records the
// payloads it saw.
type scriptedInvoker struct {
	mu      sync.Mutex
	results map[string]*pipeline.Result
	errs    map[string]error
	calls   map[string][]map[string]any
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		results: make(map[string]*pipeline.Result),
		errs:    make(map[string]error),
		calls:   make(map[string][]map[string]any),
	}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, capability string, payload map[string]any) (*pipeline.Result, error) {
	s.mu.Lock()
	s.calls[capability] = append(s.calls[capability], payload)
	s.mu.Unlock()

	if err, ok := s.errs[capability]; ok {
		return nil, err
	}
	if res, ok := s.results[capability]; ok {
		return res, nil
	}
	return nil, pipeline.Permanent(errors.New("unscripted capability " + capability))
}

func (s *scriptedInvoker) scriptHappyPath() {
	s.results["vision_perception"] = &pipeline.Result{
		Value: map[string]any{
			"raw_question_text":            "Solve for x: 2x + 3 = 7",
			"raw_answer_text":              "x = 5",
			"clean_question_image_url":     "tasks/t/clean_question.png",
			"handwritten_answer_image_url": "tasks/t/handwritten_answer.png",
		},
		Confidence: fptr(0.9),
	}
	s.results["ingest"] = &pipeline.Result{
		Value: map[string]any{
			"question_id":           uuid.NewString(),
			"record_id":             uuid.NewString(),
			"is_duplicate_question": false,
		},
	}
	s.results["analysis"] = &pipeline.Result{
		Value: map[string]any{
			"knowledge_nodes":           []string{"linear equations"},
			"analysis_summary":          "calculation slip",
			"similar_question_keywords": []string{"one-step equation"},
		},
	}
	s.results["report"] = &pipeline.Result{
		Value: map[string]any{
			"report_pdf_url":    "reports/student_001/r.pdf",
			"report_page_count": 3,
		},
	}
}

func newService(t *testing.T, invoker pipeline.Invoker) (gateway.System, pipeline.Store) {
	t.Helper()

	cfg := &config.PipelineConfig{}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("pipeline config: %v", err)
	}

	store := pipeline.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sys, err := gateway.New(cfg, store, invoker, logger)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	return sys, store
}

func submitCommand() gateway.SubmitCommand {
	return gateway.SubmitCommand{
		OwnerID:     "student_001",
		ImageSource: "uploads/photo.jpg",
		Subject:     records.SubjectMath,
		Grade:       records.GradeMiddle,
		ErrorReason: records.ReasonCalculation,
	}
}

func TestSubmitSuspendsForConfirmation(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.scriptHappyPath()
	sys, store := newService(t, invoker)

	tc, err := sys.Submit(t.Context(), submitCommand())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if tc.Status != pipeline.StatusAwaitingInput {
		t.Fatalf("status = %s, want awaiting_external_input", tc.Status)
	}
	if tc.CurrentStage != "vision_perception" {
		t.Errorf("current_stage = %s", tc.CurrentStage)
	}

	stored, err := store.Load(t.Context(), tc.TaskID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Status != pipeline.StatusAwaitingInput {
		t.Error("suspension not persisted")
	}
}

func TestConfirmRunsToCompletion(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.scriptHappyPath()
	sys, _ := newService(t, invoker)

	tc, err := sys.Submit(t.Context(), submitCommand())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done, err := sys.Confirm(t.Context(), tc.TaskID, gateway.ConfirmCommand{
		VerifiedQuestionText: "Solve for x: 2x + 3 = 9",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if done.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %+v)", done.Status, done.Error)
	}

	// Corrected text reaches ingest; untouched answer falls back to raw.
	ingest := invoker.calls["ingest"]
	if len(ingest) != 1 {
		t.Fatalf("ingest calls = %d, want 1", len(ingest))
	}
	if ingest[0]["verified_question_text"] != "Solve for x: 2x + 3 = 9" {
		t.Errorf("verified_question_text = %v", ingest[0]["verified_question_text"])
	}
	if ingest[0]["verified_answer_text"] != "x = 5" {
		t.Errorf("verified_answer_text = %v", ingest[0]["verified_answer_text"])
	}
}

func TestConfirmRequiresSuspendedTask(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.scriptHappyPath()
	sys, _ := newService(t, invoker)

	tc, err := sys.Submit(t.Context(), submitCommand())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := sys.Confirm(t.Context(), tc.TaskID, gateway.ConfirmCommand{}); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	_, err = sys.Confirm(t.Context(), tc.TaskID, gateway.ConfirmCommand{})
	if !errors.Is(err, pipeline.ErrInvalidResumeState) {
		t.Errorf("err = %v, want ErrInvalidResumeState", err)
	}
}

func TestConfirmUnknownTask(t *testing.T) {
	invoker := newScriptedInvoker()
	sys, _ := newService(t, invoker)

	_, err := sys.Confirm(t.Context(), uuid.New(), gateway.ConfirmCommand{})
	if !errors.Is(err, pipeline.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	invoker := newScriptedInvoker()
	sys, _ := newService(t, invoker)

	tests := []struct {
		name    string
		mutate  func(*gateway.SubmitCommand)
		wantErr error
	}{
		{"missing owner", func(c *gateway.SubmitCommand) { c.OwnerID = "" }, gateway.ErrMissingOwner},
		{"missing image", func(c *gateway.SubmitCommand) { c.ImageSource = "" }, gateway.ErrMissingImageSource},
		{"bad subject", func(c *gateway.SubmitCommand) { c.Subject = "astrology" }, records.ErrInvalidSubject},
		{"bad grade", func(c *gateway.SubmitCommand) { c.Grade = "phd" }, records.ErrInvalidGrade},
		{"bad reason", func(c *gateway.SubmitCommand) { c.ErrorReason = "bad_luck" }, records.ErrInvalidReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := submitCommand()
			tt.mutate(&cmd)

			_, err := sys.Submit(t.Context(), cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(invoker.calls) != 0 {
		t.Error("invalid submissions must not reach the invoker")
	}
}

func TestLowConfidencePerceptionYieldsPartial(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.scriptHappyPath()
	invoker.results["vision_perception"].Confidence = fptr(0.3)
	sys, _ := newService(t, invoker)

	tc, err := sys.Submit(t.Context(), submitCommand())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if tc.Status != pipeline.StatusPartial {
		t.Fatalf("status = %s, want partial", tc.Status)
	}
	if tc.Error == nil || tc.Error.Kind != pipeline.ErrorKindLowConfidence {
		t.Errorf("error = %+v, want low confidence kind", tc.Error)
	}
}

func TestReportPipeline(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.scriptHappyPath()
	sys, _ := newService(t, invoker)

	tc, err := sys.Report(t.Context(), gateway.ReportCommand{OwnerID: "student_001"})
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if tc.Status != pipeline.StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %+v)", tc.Status, tc.Error)
	}
	if v, _ := tc.Field("report_pdf_url"); v != "reports/student_001/r.pdf" {
		t.Errorf("report_pdf_url = %v", v)
	}
}

func TestReportRequiresOwner(t *testing.T) {
	invoker := newScriptedInvoker()
	sys, _ := newService(t, invoker)

	_, err := sys.Report(t.Context(), gateway.ReportCommand{})
	if !errors.Is(err, gateway.ErrMissingOwner) {
		t.Errorf("err = %v, want ErrMissingOwner", err)
	}
}
