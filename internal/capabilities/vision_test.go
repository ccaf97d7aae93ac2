package capabilities_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tiptoro/gateway/internal/capabilities"
	"github.com/tiptoro/gateway/pipeline"
	"github.com/tiptoro/gateway/pkg/lifecycle"
	"github.com/tiptoro/gateway/pkg/storage"
)

// fakeStorage implements storage.System in memory.
type fakeStorage struct {
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte)}
}

func (f *fakeStorage) Start(lc *lifecycle.Coordinator) error { return nil }

func (f *fakeStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.blobs[key] = data
	return nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	if _, ok := f.blobs[key]; !ok {
		return storage.ErrNotFound
	}
	delete(f.blobs, key)
	return nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.blobs[key]
	return ok, nil
}

func visionServer(t *testing.T) *httptest.Server {
	t.Helper()

	image := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/layout", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"question_region": map[string]int{"x": 0, "y": 0, "width": 800, "height": 300},
			"answer_region":   map[string]int{"x": 0, "y": 300, "width": 800, "height": 200},
			"confidence":      0.95,
		})
	})
	mux.HandleFunc("POST /v1/ocr/print", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"text":       "Solve for x: 2x + 3 = 7",
			"confidence": 0.9,
		})
	})
	mux.HandleFunc("POST /v1/ocr/handwriting", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"text":         "x = 5",
			"confidence":   0.7,
			"image_base64": image,
		})
	})
	mux.HandleFunc("POST /v1/inpaint", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"image_base64": image})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPerceptionComposite(t *testing.T) {
	srv := visionServer(t)
	store := newFakeStorage()
	vision := capabilities.NewVision(capabilities.NewClient(srv.URL, ""), store, discard())

	res, err := vision.Perception(t.Context(), map[string]any{
		pipeline.PayloadTaskID: "9f2b7a44-0000-0000-0000-000000000001",
		"image_source":         "uploads/task1.jpg",
	})
	if err != nil {
		t.Fatalf("perception: %v", err)
	}

	if res.Value["raw_question_text"] != "Solve for x: 2x + 3 = 7" {
		t.Errorf("raw_question_text = %v", res.Value["raw_question_text"])
	}
	if res.Value["raw_answer_text"] != "x = 5" {
		t.Errorf("raw_answer_text = %v", res.Value["raw_answer_text"])
	}

	cleanKey, _ := res.Value["clean_question_image_url"].(string)
	answerKey, _ := res.Value["handwritten_answer_image_url"].(string)
	if _, ok := store.blobs[cleanKey]; !ok {
		t.Errorf("clean image not stored at %q", cleanKey)
	}
	if _, ok := store.blobs[answerKey]; !ok {
		t.Errorf("answer image not stored at %q", answerKey)
	}

	// Weakest confidence wins: handwriting at 0.7.
	if res.Confidence == nil || *res.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", res.Confidence)
	}
}

func TestPerceptionPropagatesFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "vision offline", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	vision := capabilities.NewVision(capabilities.NewClient(srv.URL, ""), newFakeStorage(), discard())

	_, err := vision.Perception(t.Context(), map[string]any{
		pipeline.PayloadTaskID: "task",
		"image_source":         "uploads/task1.jpg",
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !pipeline.IsTransient(err) {
		t.Errorf("5xx should surface as transient: %v", err)
	}
}
