package capabilities

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/internal/config"
	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
	"github.com/tiptoro/gateway/pkg/formatting"
)

const analysisSystemPrompt = `You are a tutoring assistant analyzing a student's mistake on an exam question.
Given the question, the student's wrong answer, and the tagged error reason,
respond with a JSON object containing:
  "knowledge_nodes": knowledge points the question exercises (3-6 short strings),
  "analysis_summary": a concise explanation of what went wrong and the correct approach,
  "similar_question_keywords": search keywords for finding practice questions (3-5 strings).
Respond with JSON only.`

// LLM adapts an OpenAI-compatible chat completion provider for cognitive
// analysis of mistakes.
type LLM struct {
	client  *Client
	model   string
	records records.System
	logger  *slog.Logger
}

// NewLLM creates the analysis adapter set.
func NewLLM(client *Client, cfg config.LLMConfig, recs records.System, logger *slog.Logger) *LLM {
	return &LLM{
		client:  client,
		model:   cfg.Model,
		records: recs,
		logger:  logger.With("system", "llm"),
	}
}

// Register binds the analysis adapters on the mux.
func (l *LLM) Register(mux *Mux) {
	mux.Register(CapLLMAnalyze, l.Analyze)
	mux.Register(CapAnalysis, l.Analysis)
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type analysisOutput struct {
	KnowledgeNodes          []string `json:"knowledge_nodes"`
	AnalysisSummary         string   `json:"analysis_summary"`
	SimilarQuestionKeywords []string `json:"similar_question_keywords"`
}

// Analyze runs the mistake-analysis prompt and parses the structured
// response. The provider fences its JSON in markdown often enough that
// parsing goes through formatting.Parse.
func (l *LLM) Analyze(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	prompt, err := buildAnalysisPrompt(payload)
	if err != nil {
		return nil, err
	}

	req := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: prompt},
		},
	}

	var resp chatResponse
	if err := l.client.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, transientf("chat completion returned no choices")
	}

	parsed, err := formatting.Parse[analysisOutput](resp.Choices[0].Message.Content)
	if err != nil {
		// Malformed output is usually a sampling artifact; a retry
		// tends to produce parseable JSON.
		return nil, transient(err)
	}

	return &pipeline.Result{
		Value: map[string]any{
			"knowledge_nodes":           parsed.KnowledgeNodes,
			"analysis_summary":          parsed.AnalysisSummary,
			"similar_question_keywords": parsed.SimilarQuestionKeywords,
		},
	}, nil
}

// Analysis is the composite third stage: analyze, then attach the output
// to the mistake record so reports see it without replaying the pipeline.
func (l *LLM) Analysis(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	result, err := l.Analyze(ctx, payload)
	if err != nil {
		return nil, err
	}

	recordID, err := stringField(payload, "record_id")
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(recordID)
	if err != nil {
		return nil, permanentf("invalid record_id %q: %w", recordID, err)
	}

	update := records.AnalysisUpdate{
		KnowledgeNodes:          stringSlice(result.Value["knowledge_nodes"]),
		AnalysisSummary:         result.Value["analysis_summary"].(string),
		SimilarQuestionKeywords: stringSlice(result.Value["similar_question_keywords"]),
	}
	if _, err := l.records.AttachAnalysis(ctx, id, update); err != nil {
		return nil, transientf("attach analysis to record %s: %w", id, err)
	}

	l.logger.Info("analysis attached", "record_id", id)
	return result, nil
}

func buildAnalysisPrompt(payload map[string]any) (string, error) {
	question, err := stringField(payload, "verified_question_text")
	if err != nil {
		return "", err
	}
	answer, err := stringField(payload, "verified_answer_text")
	if err != nil {
		return "", err
	}
	subject, err := stringField(payload, "subject")
	if err != nil {
		return "", err
	}
	grade, err := stringField(payload, "grade")
	if err != nil {
		return "", err
	}
	reason, err := stringField(payload, "error_reason")
	if err != nil {
		return "", err
	}

	return "Subject: " + subject + "\n" +
		"Grade: " + grade + "\n" +
		"Question: " + question + "\n" +
		"Student answer (wrong): " + answer + "\n" +
		"Tagged error reason: " + reason, nil
}

func stringSlice(v any) []string {
	switch values := v.(type) {
	case []string:
		return values
	case []any:
		out := make([]string, 0, len(values))
		for _, item := range values {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
