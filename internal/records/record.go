// Package records implements the mistake-record domain: the question bank
// with content-hash deduplication, per-student mistake records, and the
// aggregate queries that feed study reports.
package records

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subjects recognized by the question bank.
const (
	SubjectMath      = "math"
	SubjectPhysics   = "physics"
	SubjectChemistry = "chemistry"
	SubjectEnglish   = "english"
	SubjectChinese   = "chinese"
)

// Grade bands recognized by the question bank.
const (
	GradePrimary = "primary"
	GradeMiddle  = "middle"
	GradeHigh    = "high"
)

// Error reasons a student can tag a mistake with.
const (
	ReasonCareless      = "careless"
	ReasonConceptGap    = "concept_gap"
	ReasonCalculation   = "calculation"
	ReasonMisreadPrompt = "misread_prompt"
	ReasonUnfamiliar    = "unfamiliar"
)

// Question is a deduplicated entry in the shared question bank.
// ContentHash is derived from the normalized question text; two
// submissions of the same question share one row.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ContentText   string    `json:"content_text"`
	ContentHash   string    `json:"content_hash"`
	Subject       string    `json:"subject"`
	Grade         string    `json:"grade"`
	CleanImageURL *string   `json:"clean_image_url"`
	CreatedAt     time.Time `json:"created_at"`
}

// MistakeRecord ties one student's wrong answer to a bank question,
// optionally enriched with analysis output.
type MistakeRecord struct {
	ID                      uuid.UUID `json:"id"`
	OwnerID                 string    `json:"owner_id"`
	QuestionID              uuid.UUID `json:"question_id"`
	ErrorReason             string    `json:"error_reason"`
	AnswerText              string    `json:"answer_text"`
	AnswerImageURL          *string   `json:"answer_image_url"`
	KnowledgeNodes          []string  `json:"knowledge_nodes"`
	AnalysisSummary         *string   `json:"analysis_summary"`
	SimilarQuestionKeywords []string  `json:"similar_question_keywords"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// CreateQuestionCommand carries the data needed to register a bank question.
type CreateQuestionCommand struct {
	ContentText   string
	Subject       string
	Grade         string
	CleanImageURL *string
}

// CreateRecordCommand carries the data needed to register a mistake record.
type CreateRecordCommand struct {
	OwnerID        string
	QuestionID     uuid.UUID
	ErrorReason    string
	AnswerText     string
	AnswerImageURL *string
}

// AnalysisUpdate carries the cognitive-analysis output attached to an
// existing record.
type AnalysisUpdate struct {
	KnowledgeNodes          []string
	AnalysisSummary         string
	SimilarQuestionKeywords []string
}

// SubjectCount is one row of a per-subject mistake tally.
type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

// ReasonCount is one row of a per-error-reason mistake tally.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// OwnerStats aggregates one student's mistake history for report rendering.
type OwnerStats struct {
	OwnerID      string         `json:"owner_id"`
	TotalRecords int            `json:"total_records"`
	BySubject    []SubjectCount `json:"by_subject"`
	ByReason     []ReasonCount  `json:"by_reason"`
	TopNodes     []string       `json:"top_nodes"`
}

// HashContent normalizes question text and returns its hex-encoded
// SHA-256 digest. Normalization collapses whitespace so OCR spacing
// differences do not defeat deduplication.
func HashContent(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	normalized = strings.ToLower(normalized)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ValidSubject reports whether subject is a recognized value.
func ValidSubject(subject string) bool {
	switch subject {
	case SubjectMath, SubjectPhysics, SubjectChemistry, SubjectEnglish, SubjectChinese:
		return true
	}
	return false
}

// ValidGrade reports whether grade is a recognized value.
func ValidGrade(grade string) bool {
	switch grade {
	case GradePrimary, GradeMiddle, GradeHigh:
		return true
	}
	return false
}

// ValidReason reports whether reason is a recognized value.
func ValidReason(reason string) bool {
	switch reason {
	case ReasonCareless, ReasonConceptGap, ReasonCalculation, ReasonMisreadPrompt, ReasonUnfamiliar:
		return true
	}
	return false
}
