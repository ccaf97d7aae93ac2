package capabilities

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/tiptoro/gateway/pipeline"
	"github.com/tiptoro/gateway/pkg/storage"
)

// Report renders a student's study report through the remote renderer,
// validates the returned PDF, and persists it to blob storage.
type Report struct {
	client    *Client
	storage   storage.System
	aggregate *Aggregate
	logger    *slog.Logger
}

// NewReport creates the report adapter set.
func NewReport(client *Client, store storage.System, aggregate *Aggregate, logger *slog.Logger) *Report {
	return &Report{
		client:    client,
		storage:   store,
		aggregate: aggregate,
		logger:    logger.With("system", "report"),
	}
}

// Register binds the report adapters on the mux.
func (r *Report) Register(mux *Mux) {
	mux.Register(CapRenderPDF, r.RenderPDF)
	mux.Register(CapReport, r.Generate)
}

// RenderPDF sends aggregated stats to the renderer and stores the
// resulting document. The PDF is parsed before upload: a renderer that
// returns garbage fails here, not in the student's hands.
func (r *Report) RenderPDF(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	ownerID, err := stringField(payload, pipeline.PayloadOwnerID)
	if err != nil {
		return nil, err
	}
	stats, ok := payload["owner_stats"]
	if !ok {
		return nil, permanentf("payload missing owner_stats")
	}

	data, err := r.client.PostRaw(ctx, "/v1/render/report", map[string]any{
		"owner_id": ownerID,
		"stats":    stats,
	})
	if err != nil {
		return nil, err
	}

	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return nil, transientf("renderer returned invalid pdf: %w", err)
	}
	if pages == 0 {
		return nil, transientf("renderer returned empty pdf")
	}

	key := fmt.Sprintf("reports/%s/%s.pdf", ownerID, uuid.New())
	if err := r.storage.Upload(ctx, key, bytes.NewReader(data), "application/pdf"); err != nil {
		return nil, transientf("store report: %w", err)
	}

	r.logger.Info("report rendered", "owner", ownerID, "key", key, "pages", pages)

	return &pipeline.Result{
		Value: map[string]any{
			"report_pdf_url":    key,
			"report_page_count": pages,
		},
	}, nil
}

// Generate is the composite report stage: aggregate, then render.
func (r *Report) Generate(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	stats, err := r.aggregate.Stats(ctx, payload)
	if err != nil {
		return nil, err
	}
	return r.RenderPDF(ctx, merged(payload, stats.Value))
}
