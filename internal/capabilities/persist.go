package capabilities

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
)

// Persist writes verified questions and mistake records to the domain
// store. Ingest is the composite second stage: dedup the question, create
// it if new, then register the student's mistake against it.
type Persist struct {
	records records.System
	dedup   *Dedup
	logger  *slog.Logger
}

// NewPersist creates the persistence adapter set.
func NewPersist(recs records.System, dedup *Dedup, logger *slog.Logger) *Persist {
	return &Persist{
		records: recs,
		dedup:   dedup,
		logger:  logger.With("system", "persist"),
	}
}

// Register binds the persistence adapters on the mux.
func (p *Persist) Register(mux *Mux) {
	mux.Register(CapPersistRecord, p.PersistRecord)
	mux.Register(CapIngest, p.Ingest)
}

// PersistRecord registers a mistake record against an existing bank
// question.
func (p *Persist) PersistRecord(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	questionID, err := stringField(payload, "question_id")
	if err != nil {
		return nil, err
	}
	qid, err := uuid.Parse(questionID)
	if err != nil {
		return nil, permanentf("invalid question_id %q: %w", questionID, err)
	}

	cmd, err := p.recordCommand(payload, qid)
	if err != nil {
		return nil, err
	}

	record, err := p.records.CreateRecord(ctx, *cmd)
	if err != nil {
		return nil, classifyDomainErr(err)
	}

	return &pipeline.Result{
		Value: map[string]any{"record_id": record.ID.String()},
	}, nil
}

// Ingest dedups the verified question, creates it if unseen, and
// registers the mistake record.
func (p *Persist) Ingest(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	text, err := stringField(payload, "verified_question_text")
	if err != nil {
		return nil, err
	}

	existing, isDuplicate, err := p.dedup.find(ctx, records.HashContent(text))
	if err != nil {
		return nil, err
	}

	var question *records.Question
	if isDuplicate {
		question = existing
	} else {
		question, err = p.createQuestion(ctx, payload, text)
		if err != nil {
			return nil, err
		}
		p.dedup.Remember(question)
	}

	cmd, err := p.recordCommand(payload, question.ID)
	if err != nil {
		return nil, err
	}
	record, err := p.records.CreateRecord(ctx, *cmd)
	if err != nil {
		return nil, classifyDomainErr(err)
	}

	p.logger.Info(
		"mistake ingested",
		"record_id", record.ID,
		"question_id", question.ID,
		"duplicate", isDuplicate,
	)

	return &pipeline.Result{
		Value: map[string]any{
			"question_id":           question.ID.String(),
			"record_id":             record.ID.String(),
			"is_duplicate_question": isDuplicate,
		},
	}, nil
}

func (p *Persist) createQuestion(ctx context.Context, payload map[string]any, text string) (*records.Question, error) {
	subject, err := stringField(payload, "subject")
	if err != nil {
		return nil, err
	}
	grade, err := stringField(payload, "grade")
	if err != nil {
		return nil, err
	}

	cmd := records.CreateQuestionCommand{
		ContentText: text,
		Subject:     subject,
		Grade:       grade,
	}
	if url, ok, err := optionalStringField(payload, "clean_question_image_url"); err != nil {
		return nil, err
	} else if ok && url != "" {
		cmd.CleanImageURL = &url
	}

	question, err := p.records.CreateQuestion(ctx, cmd)
	if err != nil {
		return nil, classifyDomainErr(err)
	}
	return question, nil
}

func (p *Persist) recordCommand(payload map[string]any, questionID uuid.UUID) (*records.CreateRecordCommand, error) {
	ownerID, err := stringField(payload, pipeline.PayloadOwnerID)
	if err != nil {
		return nil, err
	}
	reason, err := stringField(payload, "error_reason")
	if err != nil {
		return nil, err
	}
	answer, err := stringField(payload, "verified_answer_text")
	if err != nil {
		return nil, err
	}

	cmd := &records.CreateRecordCommand{
		OwnerID:     ownerID,
		QuestionID:  questionID,
		ErrorReason: reason,
		AnswerText:  answer,
	}
	if url, ok, err := optionalStringField(payload, "handwritten_answer_image_url"); err != nil {
		return nil, err
	} else if ok && url != "" {
		cmd.AnswerImageURL = &url
	}
	return cmd, nil
}

// classifyDomainErr maps record domain errors onto the retry policy:
// validation failures cannot heal with time, everything else is assumed
// to be database unavailability.
func classifyDomainErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errorsIsAny(err,
		records.ErrInvalidSubject,
		records.ErrInvalidGrade,
		records.ErrInvalidReason,
		records.ErrQuestionNotFound,
		records.ErrDuplicate,
	):
		return permanent(err)
	default:
		return transient(err)
	}
}
