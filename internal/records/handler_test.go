package records_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/internal/records"
)

// fakeSystem serves canned records for handler tests.
type fakeSystem struct {
	records.System

	record *records.MistakeRecord
	listed []records.MistakeRecord
	stats  *records.OwnerStats
}

func (f *fakeSystem) FindRecord(ctx context.Context, id uuid.UUID) (*records.MistakeRecord, error) {
	if f.record == nil || f.record.ID != id {
		return nil, records.ErrRecordNotFound
	}
	return f.record, nil
}

func (f *fakeSystem) ListRecords(ctx context.Context, ownerID string, limit int) ([]records.MistakeRecord, error) {
	return f.listed, nil
}

func (f *fakeSystem) Stats(ctx context.Context, ownerID string) (*records.OwnerStats, error) {
	return f.stats, nil
}

func newTestServer(t *testing.T, sys records.System) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	records.NewHandler(sys, logger).Mount(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFindRecordEndpoint(t *testing.T) {
	record := &records.MistakeRecord{
		ID:          uuid.New(),
		OwnerID:     "student_001",
		ErrorReason: records.ReasonCareless,
	}
	srv := newTestServer(t, &fakeSystem{record: record})

	resp, err := http.Get(srv.URL + "/api/records/" + record.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got records.MistakeRecord
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != record.ID || got.OwnerID != "student_001" {
		t.Errorf("record = %+v", got)
	}
}

func TestFindRecordEndpointNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeSystem{})

	resp, err := http.Get(srv.URL + "/api/records/" + uuid.NewString())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListRecordsEndpoint(t *testing.T) {
	listed := []records.MistakeRecord{
		{ID: uuid.New(), OwnerID: "student_001"},
		{ID: uuid.New(), OwnerID: "student_001"},
	}
	srv := newTestServer(t, &fakeSystem{listed: listed})

	resp, err := http.Get(srv.URL + "/api/owners/student_001/records?limit=10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got []records.MistakeRecord
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("records = %d, want 2", len(got))
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeSystem{stats: &records.OwnerStats{
		OwnerID:      "student_001",
		TotalRecords: 5,
	}})

	resp, err := http.Get(srv.URL + "/api/owners/student_001/stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var got records.OwnerStats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalRecords != 5 {
		t.Errorf("total = %d, want 5", got.TotalRecords)
	}
}
