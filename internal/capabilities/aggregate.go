package capabilities

import (
	"context"
	"log/slog"

	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
)

// Aggregate summarizes a student's mistake history for report rendering.
type Aggregate struct {
	records records.System
	logger  *slog.Logger
}

// NewAggregate creates the aggregation adapter.
func NewAggregate(recs records.System, logger *slog.Logger) *Aggregate {
	return &Aggregate{
		records: recs,
		logger:  logger.With("system", "aggregate"),
	}
}

// Register binds the aggregation adapter on the mux.
func (a *Aggregate) Register(mux *Mux) {
	mux.Register(CapAggregate, a.Stats)
}

// Stats tallies the owner's records by subject, error reason, and
// knowledge node.
func (a *Aggregate) Stats(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	ownerID, err := stringField(payload, pipeline.PayloadOwnerID)
	if err != nil {
		return nil, err
	}

	stats, err := a.records.Stats(ctx, ownerID)
	if err != nil {
		return nil, transientf("owner stats: %w", err)
	}

	return &pipeline.Result{
		Value: map[string]any{"owner_stats": stats},
	}, nil
}
