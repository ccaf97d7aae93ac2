package capabilities

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tiptoro/gateway/pipeline"
	"github.com/tiptoro/gateway/pkg/storage"
)

// Region is a bounding box in pixel coordinates as reported by the layout
// service.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Vision adapts the remote vision service: page layout, printed and
// handwritten OCR, and question inpainting. Derived images are persisted
// to blob storage so later stages reference URLs, not raw bytes.
type Vision struct {
	client  *Client
	storage storage.System
	logger  *slog.Logger
}

// NewVision creates the vision adapter set.
func NewVision(client *Client, store storage.System, logger *slog.Logger) *Vision {
	return &Vision{
		client:  client,
		storage: store,
		logger:  logger.With("system", "vision"),
	}
}

// Register binds the vision adapters on the mux.
func (v *Vision) Register(mux *Mux) {
	mux.Register(CapVisionLayout, v.Layout)
	mux.Register(CapPrintOCR, v.PrintOCR)
	mux.Register(CapHandwritingOCR, v.HandwritingOCR)
	mux.Register(CapInpaint, v.Inpaint)
	mux.Register(CapVisionPerception, v.Perception)
}

type layoutResponse struct {
	QuestionRegion Region  `json:"question_region"`
	AnswerRegion   Region  `json:"answer_region"`
	Confidence     float64 `json:"confidence"`
}

// Layout locates the printed question and the handwritten answer on the
// photographed page.
func (v *Vision) Layout(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	source, err := stringField(payload, "image_source")
	if err != nil {
		return nil, err
	}

	var resp layoutResponse
	if err := v.client.PostJSON(ctx, "/v1/layout", map[string]any{"image_source": source}, &resp); err != nil {
		return nil, err
	}

	return &pipeline.Result{
		Value: map[string]any{
			"question_region": resp.QuestionRegion,
			"answer_region":   resp.AnswerRegion,
		},
		Confidence: fptr(resp.Confidence),
	}, nil
}

type ocrResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	// ImageBase64 is the cropped region the text was read from,
	// populated by the handwriting endpoint.
	ImageBase64 string `json:"image_base64,omitempty"`
}

// PrintOCR reads the printed question text within a region.
func (v *Vision) PrintOCR(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	resp, err := v.ocr(ctx, "/v1/ocr/print", payload)
	if err != nil {
		return nil, err
	}
	return &pipeline.Result{
		Value:      map[string]any{"text": resp.Text},
		Confidence: fptr(resp.Confidence),
	}, nil
}

// HandwritingOCR reads the handwritten answer text within a region.
func (v *Vision) HandwritingOCR(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	resp, err := v.ocr(ctx, "/v1/ocr/handwriting", payload)
	if err != nil {
		return nil, err
	}
	return &pipeline.Result{
		Value:      map[string]any{"text": resp.Text},
		Confidence: fptr(resp.Confidence),
	}, nil
}

func (v *Vision) ocr(ctx context.Context, path string, payload map[string]any) (*ocrResponse, error) {
	source, err := stringField(payload, "image_source")
	if err != nil {
		return nil, err
	}

	req := map[string]any{"image_source": source}
	if region, ok := payload["region"]; ok {
		req["region"] = region
	}

	var resp ocrResponse
	if err := v.client.PostJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type inpaintResponse struct {
	ImageBase64 string `json:"image_base64"`
}

// Inpaint removes the handwritten answer from the question region and
// stores the clean image. The task_id payload key namespaces the blob.
func (v *Vision) Inpaint(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	source, err := stringField(payload, "image_source")
	if err != nil {
		return nil, err
	}
	taskID, err := stringField(payload, pipeline.PayloadTaskID)
	if err != nil {
		return nil, err
	}

	req := map[string]any{"image_source": source}
	if region, ok := payload["answer_region"]; ok {
		req["mask_region"] = region
	}

	var resp inpaintResponse
	if err := v.client.PostJSON(ctx, "/v1/inpaint", req, &resp); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("tasks/%s/clean_question.png", taskID)
	url, err := v.upload(ctx, key, resp.ImageBase64)
	if err != nil {
		return nil, err
	}

	return &pipeline.Result{
		Value: map[string]any{"clean_question_image_url": url},
	}, nil
}

// Perception is the composite first stage: layout once, then printed OCR,
// handwriting OCR, and inpainting concurrently. The reported confidence
// is the weakest link so the gate catches a single bad read.
func (v *Vision) Perception(ctx context.Context, payload map[string]any) (*pipeline.Result, error) {
	taskID, err := stringField(payload, pipeline.PayloadTaskID)
	if err != nil {
		return nil, err
	}

	layout, err := v.Layout(ctx, payload)
	if err != nil {
		return nil, err
	}

	var (
		question  *pipeline.Result
		answer    *ocrResponse
		answerRes *pipeline.Result
		clean     *pipeline.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		question, err = v.PrintOCR(gctx, merged(payload, map[string]any{
			"region": layout.Value["question_region"],
		}))
		return err
	})
	g.Go(func() error {
		source, err := stringField(payload, "image_source")
		if err != nil {
			return err
		}
		req := map[string]any{
			"image_source": source,
			"region":       layout.Value["answer_region"],
		}
		var resp ocrResponse
		if err := v.client.PostJSON(gctx, "/v1/ocr/handwriting", req, &resp); err != nil {
			return err
		}
		answer = &resp
		answerRes = &pipeline.Result{Confidence: fptr(resp.Confidence)}
		return nil
	})
	g.Go(func() error {
		var err error
		clean, err = v.Inpaint(gctx, merged(payload, map[string]any{
			"answer_region": layout.Value["answer_region"],
		}))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	answerURL := ""
	if answer.ImageBase64 != "" {
		key := fmt.Sprintf("tasks/%s/handwritten_answer.png", taskID)
		answerURL, err = v.upload(ctx, key, answer.ImageBase64)
		if err != nil {
			return nil, err
		}
	}

	v.logger.Info("perception complete", "task_id", taskID)

	return &pipeline.Result{
		Value: map[string]any{
			"raw_question_text":            question.Value["text"],
			"raw_answer_text":              answer.Text,
			"clean_question_image_url":     clean.Value["clean_question_image_url"],
			"handwritten_answer_image_url": answerURL,
		},
		Confidence: minConfidence(layout.Confidence, question.Confidence, answerRes.Confidence),
	}, nil
}

// upload decodes a base64 image and stores it, returning the blob key as
// the stable URL later stages carry in the context.
func (v *Vision) upload(ctx context.Context, key, imageBase64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return "", permanentf("decode image for %s: %w", key, err)
	}
	if err := v.storage.Upload(ctx, key, bytes.NewReader(data), "image/png"); err != nil {
		return "", transientf("store %s: %w", key, err)
	}
	return key, nil
}

func merged(payload, extra map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+len(extra))
	for k, val := range payload {
		out[k] = val
	}
	for k, val := range extra {
		out[k] = val
	}
	return out
}
