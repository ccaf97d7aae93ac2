package capabilities_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tiptoro/gateway/internal/capabilities"
	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
)

func TestReportRejectsInvalidPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>this is not a pdf</html>"))
	}))
	t.Cleanup(srv.Close)

	recs := newFakeRecords()
	recs.stats = &records.OwnerStats{OwnerID: "student_001", TotalRecords: 4}

	store := newFakeStorage()
	report := capabilities.NewReport(
		capabilities.NewClient(srv.URL, ""),
		store,
		capabilities.NewAggregate(recs, discard()),
		discard(),
	)

	_, err := report.Generate(t.Context(), map[string]any{
		pipeline.PayloadOwnerID: "student_001",
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !pipeline.IsTransient(err) {
		t.Errorf("invalid renderer output should be transient: %v", err)
	}
	if len(store.blobs) != 0 {
		t.Error("invalid pdf must not be stored")
	}
}

func TestAggregateStats(t *testing.T) {
	recs := newFakeRecords()
	recs.stats = &records.OwnerStats{
		OwnerID:      "student_001",
		TotalRecords: 7,
		BySubject:    []records.SubjectCount{{Subject: records.SubjectMath, Count: 7}},
	}

	aggregate := capabilities.NewAggregate(recs, discard())
	res, err := aggregate.Stats(t.Context(), map[string]any{
		pipeline.PayloadOwnerID: "student_001",
	})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	stats, ok := res.Value["owner_stats"].(*records.OwnerStats)
	if !ok {
		t.Fatalf("owner_stats = %T", res.Value["owner_stats"])
	}
	if stats.TotalRecords != 7 {
		t.Errorf("total = %d, want 7", stats.TotalRecords)
	}
}

func TestAggregateMissingOwner(t *testing.T) {
	aggregate := capabilities.NewAggregate(newFakeRecords(), discard())

	_, err := aggregate.Stats(t.Context(), map[string]any{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if pipeline.IsTransient(err) {
		t.Error("missing owner payload key should be permanent")
	}
}
