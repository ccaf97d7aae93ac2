package capabilities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
)

// Dedup answers "has this question been seen before" by content hash,
// fronting the question bank with an in-process cache. The cache only
// ever holds confirmed bank entries, so a hit is authoritative and a miss
// falls through to the database.
type Dedup struct {
	cache   *ristretto.Cache[string, *records.Question]
	records records.System
	logger  *slog.Logger
}

// NewDedup creates the dedup adapter. maxEntries bounds the cache.
func NewDedup(recs records.System, maxEntries int64, logger *slog.Logger) (*Dedup, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *records.Question]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}

	return &Dedup{
		cache:   cache,
		records: recs,
		logger:  logger.With("system", "dedup"),
	}, nil
}

// Register binds the dedup adapter on the mux.
func (d *Dedup) Register(mux *Mux) {
	mux.Register(CapDedupLookup, d.Lookup)
}

// Lookup resolves question text to an existing bank question, if any.
// The key set is fixed so the capability can bind to a stage declaration:
// question_id is empty on a miss.
func (d *Dedup) Lookup(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	text, err := stringField(payload, "verified_question_text")
	if err != nil {
		return nil, err
	}

	question, found, err := d.find(ctx, records.HashContent(text))
	if err != nil {
		return nil, err
	}

	value := map[string]any{
		"is_duplicate_question": found,
		"question_id":           "",
	}
	if found {
		value["question_id"] = question.ID.String()
	}
	return &pipeline.Result{Value: value}, nil
}

func (d *Dedup) find(ctx context.Context, hash string) (*records.Question, bool, error) {
	if q, ok := d.cache.Get(hash); ok {
		return q, true, nil
	}

	q, err := d.records.FindQuestionByHash(ctx, hash)
	if errors.Is(err, records.ErrQuestionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, transientf("question lookup: %w", err)
	}

	d.cache.Set(hash, q, 1)
	return q, true, nil
}

// Remember caches a freshly created bank question so an immediate
// resubmission dedups without touching the database.
func (d *Dedup) Remember(q *records.Question) {
	d.cache.Set(q.ContentHash, q, 1)
}
