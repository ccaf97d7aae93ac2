package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a record repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "records"),
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

const questionProjection = `
	id, content_text, content_hash, subject, grade, clean_image_url, created_at`

const recordProjection = `
	id, owner_id, question_id, error_reason, answer_text, answer_image_url,
	knowledge_nodes, analysis_summary, similar_question_keywords,
	created_at, updated_at`

func scanQuestion(s repository.Scanner) (Question, error) {
	var q Question
	err := s.Scan(
		&q.ID,
		&q.ContentText,
		&q.ContentHash,
		&q.Subject,
		&q.Grade,
		&q.CleanImageURL,
		&q.CreatedAt,
	)
	return q, err
}

func scanRecord(s repository.Scanner) (MistakeRecord, error) {
	var (
		r        MistakeRecord
		nodes    []byte
		keywords []byte
	)
	err := s.Scan(
		&r.ID,
		&r.OwnerID,
		&r.QuestionID,
		&r.ErrorReason,
		&r.AnswerText,
		&r.AnswerImageURL,
		&nodes,
		&r.AnalysisSummary,
		&keywords,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}
	if err := unmarshalList(nodes, &r.KnowledgeNodes); err != nil {
		return r, fmt.Errorf("decode knowledge_nodes: %w", err)
	}
	if err := unmarshalList(keywords, &r.SimilarQuestionKeywords); err != nil {
		return r, fmt.Errorf("decode similar_question_keywords: %w", err)
	}
	return r, nil
}

func unmarshalList(data []byte, dest *[]string) error {
	if len(data) == 0 {
		*dest = []string{}
		return nil
	}
	return json.Unmarshal(data, dest)
}

func marshalList(values []string) []byte {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return data
}

func (r *repo) FindQuestionByHash(ctx context.Context, hash string) (*Question, error) {
	q := fmt.Sprintf("SELECT %s FROM questions WHERE content_hash = $1", questionProjection)

	question, err := repository.QueryOne(ctx, r.db, q, []any{hash}, scanQuestion)
	if err != nil {
		return nil, repository.MapError(err, ErrQuestionNotFound, ErrDuplicate)
	}
	return &question, nil
}

func (r *repo) FindQuestion(ctx context.Context, id uuid.UUID) (*Question, error) {
	q := fmt.Sprintf("SELECT %s FROM questions WHERE id = $1", questionProjection)

	question, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanQuestion)
	if err != nil {
		return nil, repository.MapError(err, ErrQuestionNotFound, ErrDuplicate)
	}
	return &question, nil
}

func (r *repo) CreateQuestion(ctx context.Context, cmd CreateQuestionCommand) (*Question, error) {
	if !ValidSubject(cmd.Subject) {
		return nil, ErrInvalidSubject
	}
	if !ValidGrade(cmd.Grade) {
		return nil, ErrInvalidGrade
	}

	q := fmt.Sprintf(`
		INSERT INTO questions(id, content_text, content_hash, subject, grade, clean_image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s`, questionProjection)

	args := []any{
		uuid.New(),
		cmd.ContentText,
		HashContent(cmd.ContentText),
		cmd.Subject,
		cmd.Grade,
		cmd.CleanImageURL,
	}

	question, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Question, error) {
		return repository.QueryOne(ctx, tx, q, args, scanQuestion)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrQuestionNotFound, ErrDuplicate)
	}

	r.logger.Info("question created", "id", question.ID, "subject", question.Subject)
	return &question, nil
}

func (r *repo) FindRecord(ctx context.Context, id uuid.UUID) (*MistakeRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM mistake_records WHERE id = $1", recordProjection)

	record, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanRecord)
	if err != nil {
		return nil, repository.MapError(err, ErrRecordNotFound, ErrDuplicate)
	}
	return &record, nil
}

func (r *repo) CreateRecord(ctx context.Context, cmd CreateRecordCommand) (*MistakeRecord, error) {
	if !ValidReason(cmd.ErrorReason) {
		return nil, ErrInvalidReason
	}

	q := fmt.Sprintf(`
		INSERT INTO mistake_records(id, owner_id, question_id, error_reason, answer_text, answer_image_url, knowledge_nodes, similar_question_keywords)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING %s`, recordProjection)

	args := []any{
		uuid.New(),
		cmd.OwnerID,
		cmd.QuestionID,
		cmd.ErrorReason,
		cmd.AnswerText,
		cmd.AnswerImageURL,
		marshalList(nil),
		marshalList(nil),
	}

	record, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (MistakeRecord, error) {
		return repository.QueryOne(ctx, tx, q, args, scanRecord)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrRecordNotFound, ErrDuplicate)
	}

	r.logger.Info("mistake record created", "id", record.ID, "owner", record.OwnerID)
	return &record, nil
}

func (r *repo) AttachAnalysis(ctx context.Context, id uuid.UUID, update AnalysisUpdate) (*MistakeRecord, error) {
	q := fmt.Sprintf(`
		UPDATE mistake_records
		SET knowledge_nodes = $2,
		    analysis_summary = $3,
		    similar_question_keywords = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s`, recordProjection)

	args := []any{
		id,
		marshalList(update.KnowledgeNodes),
		update.AnalysisSummary,
		marshalList(update.SimilarQuestionKeywords),
	}

	record, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (MistakeRecord, error) {
		return repository.QueryOne(ctx, tx, q, args, scanRecord)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrRecordNotFound, ErrDuplicate)
	}

	r.logger.Info("analysis attached", "id", record.ID)
	return &record, nil
}

func (r *repo) ListRecords(ctx context.Context, ownerID string, limit int) ([]MistakeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`
		SELECT %s FROM mistake_records
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, recordProjection)

	return repository.QueryMany(ctx, r.db, q, []any{ownerID, limit}, scanRecord)
}

func (r *repo) Stats(ctx context.Context, ownerID string) (*OwnerStats, error) {
	stats := &OwnerStats{OwnerID: ownerID}

	row := r.db.QueryRowContext(
		ctx,
		"SELECT count(*) FROM mistake_records WHERE owner_id = $1",
		ownerID,
	)
	if err := row.Scan(&stats.TotalRecords); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	bySubject, err := repository.QueryMany(
		ctx, r.db, `
		SELECT q.subject, count(*)
		FROM mistake_records m
		JOIN questions q ON q.id = m.question_id
		WHERE m.owner_id = $1
		GROUP BY q.subject
		ORDER BY count(*) DESC`,
		[]any{ownerID},
		func(s repository.Scanner) (SubjectCount, error) {
			var c SubjectCount
			err := s.Scan(&c.Subject, &c.Count)
			return c, err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("count by subject: %w", err)
	}
	stats.BySubject = bySubject

	byReason, err := repository.QueryMany(
		ctx, r.db, `
		SELECT error_reason, count(*)
		FROM mistake_records
		WHERE owner_id = $1
		GROUP BY error_reason
		ORDER BY count(*) DESC`,
		[]any{ownerID},
		func(s repository.Scanner) (ReasonCount, error) {
			var c ReasonCount
			err := s.Scan(&c.Reason, &c.Count)
			return c, err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("count by reason: %w", err)
	}
	stats.ByReason = byReason

	topNodes, err := repository.QueryMany(
		ctx, r.db, `
		SELECT node, count(*)
		FROM mistake_records, jsonb_array_elements_text(knowledge_nodes) AS node
		WHERE owner_id = $1
		GROUP BY node
		ORDER BY count(*) DESC
		LIMIT 10`,
		[]any{ownerID},
		func(s repository.Scanner) (string, error) {
			var node string
			var count int
			err := s.Scan(&node, &count)
			return node, err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("top knowledge nodes: %w", err)
	}
	stats.TopNodes = topNodes

	return stats, nil
}
