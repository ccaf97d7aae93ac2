package records

import (
	"context"

	"github.com/google/uuid"
)

// System defines the public contract for record domain operations.
type System interface {
	Handler() *Handler

	// FindQuestionByHash looks up a bank question by content hash.
	// Returns ErrQuestionNotFound when no question matches.
	FindQuestionByHash(ctx context.Context, hash string) (*Question, error)
	FindQuestion(ctx context.Context, id uuid.UUID) (*Question, error)
	CreateQuestion(ctx context.Context, cmd CreateQuestionCommand) (*Question, error)

	FindRecord(ctx context.Context, id uuid.UUID) (*MistakeRecord, error)
	CreateRecord(ctx context.Context, cmd CreateRecordCommand) (*MistakeRecord, error)
	// AttachAnalysis stores cognitive-analysis output on an existing record.
	AttachAnalysis(ctx context.Context, id uuid.UUID, update AnalysisUpdate) (*MistakeRecord, error)

	// ListRecords returns a student's records, newest first.
	ListRecords(ctx context.Context, ownerID string, limit int) ([]MistakeRecord, error)
	// Stats aggregates a student's mistake history for report rendering.
	Stats(ctx context.Context, ownerID string) (*OwnerStats, error)
}
