package capabilities_test

import (
	"testing"

	"github.com/tiptoro/gateway/internal/capabilities"
	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
)

func ingestPayload() map[string]any {
	return map[string]any{
		pipeline.PayloadTaskID:   "task-1",
		pipeline.PayloadOwnerID:  "student_001",
		"verified_question_text": "Solve for x: 2x + 3 = 7",
		"verified_answer_text":   "x = 5",
		"subject":                records.SubjectMath,
		"grade":                  records.GradeMiddle,
		"error_reason":           records.ReasonCalculation,
	}
}

func newPersist(t *testing.T, recs *fakeRecords) *capabilities.Persist {
	t.Helper()
	dedup, err := capabilities.NewDedup(recs, 100, discard())
	if err != nil {
		t.Fatalf("new dedup: %v", err)
	}
	return capabilities.NewPersist(recs, dedup, discard())
}

func TestIngestNewQuestion(t *testing.T) {
	recs := newFakeRecords()
	persist := newPersist(t, recs)

	res, err := persist.Ingest(t.Context(), ingestPayload())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if res.Value["is_duplicate_question"] != false {
		t.Errorf("is_duplicate_question = %v, want false", res.Value["is_duplicate_question"])
	}
	if res.Value["question_id"] == "" || res.Value["record_id"] == "" {
		t.Errorf("missing ids in output: %v", res.Value)
	}
	if len(recs.created) != 1 {
		t.Fatalf("records created = %d, want 1", len(recs.created))
	}
	if recs.created[0].OwnerID != "student_001" {
		t.Errorf("owner = %s", recs.created[0].OwnerID)
	}
}

func TestIngestDuplicateQuestion(t *testing.T) {
	recs := newFakeRecords()
	seeded, err := recs.CreateQuestion(t.Context(), records.CreateQuestionCommand{
		ContentText: "Solve for x: 2x + 3 = 7",
		Subject:     records.SubjectMath,
		Grade:       records.GradeMiddle,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	recs.createQuestion = func(records.CreateQuestionCommand) (*records.Question, error) {
		t.Fatal("duplicate submission must not create a second question")
		return nil, nil
	}

	persist := newPersist(t, recs)
	res, err := persist.Ingest(t.Context(), ingestPayload())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if res.Value["is_duplicate_question"] != true {
		t.Errorf("is_duplicate_question = %v, want true", res.Value["is_duplicate_question"])
	}
	if res.Value["question_id"] != seeded.ID.String() {
		t.Errorf("question_id = %v, want %s", res.Value["question_id"], seeded.ID)
	}
	if len(recs.created) != 1 || recs.created[0].QuestionID != seeded.ID {
		t.Error("record should reference the existing question")
	}
}

func TestIngestMissingInput(t *testing.T) {
	persist := newPersist(t, newFakeRecords())

	payload := ingestPayload()
	delete(payload, "verified_question_text")

	_, err := persist.Ingest(t.Context(), payload)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if pipeline.IsTransient(err) {
		t.Error("missing payload key should be permanent")
	}
}
