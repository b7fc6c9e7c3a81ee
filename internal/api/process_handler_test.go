package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hireHub/internal/database"
	"hireHub/internal/dedup"
	"hireHub/internal/hiring"
)

func newProcessRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	handler := NewProcessHandler(hiring.NewStore(db, nil), nil, nil)
	router := newTestRouter()
	router.POST("/process", asUser(1), handler.ProcessBatch)
	router.POST("/process/resolve", asUser(1), handler.ResolveDuplicates)
	return router
}

func seedProcessFixture(t *testing.T, db *gorm.DB) database.Candidate {
	t.Helper()
	candidate := database.Candidate{Name: "Alice", Email: "alice@example.com", Stage: database.StageScreening}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	doc := database.CVDocument{
		Hash:      "hash-1",
		FileName:  "alice.pdf",
		ObjectKey: "cv/hash-1.pdf",
		Status:    "extracted",
		Extracted: []byte(`{"phone":"555"}`),
	}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return candidate
}

func TestProcessBatchAppliesAndReplays(t *testing.T) {
	db := newTestDB(t)
	router := newProcessRouter(t, db)
	candidate := seedProcessFixture(t, db)

	body := map[string]any{
		"mode":            "merge",
		"idempotency_key": "key-1",
		"duplicates": []map[string]any{
			{"candidateId": candidate.ID, "fileName": "alice.pdf", "hash": "hash-1"},
		},
	}

	rec := performJSON(t, router, http.MethodPost, "/process", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Summary  hiring.BatchSummary `json:"summary"`
			Replayed bool                `json:"replayed"`
		} `json:"data"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.Data.Replayed {
		t.Fatalf("unexpected first response: %+v", resp)
	}
	if resp.Data.Summary.Processed != 1 {
		t.Fatalf("expected one processed item, got %+v", resp.Data.Summary)
	}

	rec = performJSON(t, router, http.MethodPost, "/process", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if !resp.Data.Replayed {
		t.Fatal("second submission with the same key must replay")
	}
}

func TestProcessBatchValidation(t *testing.T) {
	db := newTestDB(t)
	router := newProcessRouter(t, db)

	cases := []map[string]any{
		{"mode": "explode", "idempotency_key": "k", "duplicates": []map[string]any{{"candidateId": 1}}},
		{"mode": "skip", "idempotency_key": "k", "duplicates": []map[string]any{{"candidateId": 1}}},
		{"mode": "merge", "idempotency_key": "k", "duplicates": []map[string]any{}},
	}
	for i, body := range cases {
		rec := performJSON(t, router, http.MethodPost, "/process", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("case %d: expected 400, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
}

func TestProcessBatchMissingCandidate(t *testing.T) {
	db := newTestDB(t)
	router := newProcessRouter(t, db)

	body := map[string]any{
		"mode":            "replace",
		"idempotency_key": "key-x",
		"duplicates": []map[string]any{
			{"candidateId": 424242, "fileName": "ghost.pdf", "hash": "nope"},
		},
	}
	rec := performJSON(t, router, http.MethodPost, "/process", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestResolveDuplicatesEndToEnd(t *testing.T) {
	db := newTestDB(t)
	router := newProcessRouter(t, db)
	candidate := seedProcessFixture(t, db)

	other := database.Candidate{Name: "Bob", Email: "bob@example.com", Stage: database.StageApplied}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}

	body := map[string]any{
		"duplicates": []map[string]any{
			{
				"id": "d1", "fileName": "alice.pdf", "hash": "hash-1",
				"existingCandidate": map[string]any{"id": candidate.ID},
				"suggestedAction":   "merge",
			},
			{
				"id": "d2", "fileName": "bob.pdf", "hash": "hash-1",
				"existingCandidate": map[string]any{"id": other.ID},
				"suggestedAction":   "skip",
			},
		},
		"actions": map[string]string{
			"d2": "create_new",
		},
	}

	rec := performJSON(t, router, http.MethodPost, "/process/resolve", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Results []dedup.BatchResult `json:"results"`
		} `json:"data"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Data.Results) != 2 {
		t.Fatalf("expected two batches (merge + create_new), got %+v", resp.Data.Results)
	}
	for _, res := range resp.Data.Results {
		if !res.Applied {
			t.Errorf("batch %s not applied: %s", res.Mode, res.Error)
		}
	}

	var count int64
	db.Model(&database.Candidate{}).Count(&count)
	if count != 3 {
		t.Errorf("create_new must add one candidate, have %d", count)
	}
}

func TestResolveDuplicatesRequiresActions(t *testing.T) {
	db := newTestDB(t)
	router := newProcessRouter(t, db)
	candidate := seedProcessFixture(t, db)

	body := map[string]any{
		"duplicates": []map[string]any{
			{
				"id": "d1", "fileName": "alice.pdf", "hash": "hash-1",
				"existingCandidate": map[string]any{"id": candidate.ID},
				"suggestedAction":   "merge",
			},
		},
	}
	rec := performJSON(t, router, http.MethodPost, "/process/resolve", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("an empty plan must be rejected, got %d: %s", rec.Code, rec.Body.String())
	}
}
