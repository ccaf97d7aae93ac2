package pipeline_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/pipeline"
)

func TestMemoryStoreLoadUnknown(t *testing.T) {
	store := pipeline.NewMemoryStore()
	if _, err := store.Load(t.Context(), uuid.New()); !errors.Is(err, pipeline.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := pipeline.NewMemoryStore()
	tc := pipeline.NewContext(uuid.New(), "student_001")
	tc.SetField("image_source", "blob://raw/q1.jpg")

	if err := store.Save(t.Context(), tc); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(t.Context(), tc.TaskID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// save(load(id)) is idempotent: content survives unchanged.
	if err := store.Save(t.Context(), loaded); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	again, err := store.Load(t.Context(), tc.TaskID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Status != tc.Status || again.OwnerID != tc.OwnerID {
		t.Error("round-trip altered context content")
	}
	if v, _ := again.Field("image_source"); v != "blob://raw/q1.jpg" {
		t.Errorf("image_source = %v", v)
	}
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	store := pipeline.NewMemoryStore()
	tc := pipeline.NewContext(uuid.New(), "student_001")

	if err := store.Save(t.Context(), tc); err != nil {
		t.Fatalf("save: %v", err)
	}

	stale := tc.Clone()
	stale.Version = 0

	if err := store.Save(t.Context(), stale); !errors.Is(err, pipeline.ErrVersionConflict) {
		t.Errorf("stale save: err = %v, want ErrVersionConflict", err)
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	store := pipeline.NewMemoryStore()
	tc := pipeline.NewContext(uuid.New(), "student_001")
	tc.SetField("image_source", "original")

	if err := store.Save(t.Context(), tc); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(t.Context(), tc.TaskID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded.SetField("image_source", "mutated")
	loaded.Status = pipeline.StatusFailed

	reloaded, err := store.Load(t.Context(), tc.TaskID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v, _ := reloaded.Field("image_source"); v != "original" {
		t.Error("mutating a loaded copy leaked into the stored snapshot")
	}
	if reloaded.Status == pipeline.StatusFailed {
		t.Error("status mutation leaked into the stored snapshot")
	}
}

func TestMemoryStoreExists(t *testing.T) {
	store := pipeline.NewMemoryStore()
	tc := pipeline.NewContext(uuid.New(), "student_001")

	found, err := store.Exists(t.Context(), tc.TaskID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if found {
		t.Error("exists before save")
	}

	if err := store.Save(t.Context(), tc); err != nil {
		t.Fatalf("save: %v", err)
	}

	found, err = store.Exists(t.Context(), tc.TaskID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !found {
		t.Error("missing after save")
	}
}
