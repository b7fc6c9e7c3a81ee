package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hireHub/internal/database"
)

func newCandidateRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	handler := NewCandidateHandler(db, nil, nil, nil, nil)
	router := newTestRouter()
	router.POST("/candidates", asUser(1), handler.CreateCandidate)
	router.GET("/candidates", asUser(1), handler.ListCandidates)
	router.GET("/candidates/:id", asUser(1), handler.GetCandidate)
	router.PUT("/candidates/:id/stage", asUser(1), handler.MoveStage)
	router.DELETE("/candidates/:id", asUser(1), handler.DeleteCandidate)
	return router
}

func TestCreateAndGetCandidate(t *testing.T) {
	db := newTestDB(t)
	router := newCandidateRouter(t, db)

	rec := performJSON(t, router, http.MethodPost, "/candidates", map[string]any{
		"name":   "Alice",
		"email":  "alice@example.com",
		"skills": []string{"Go"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created candidateResponse
	decodeBody(t, rec, &created)
	if created.Stage != database.StageApplied {
		t.Errorf("new candidate defaults to applied, got %q", created.Stage)
	}
	if created.Source != "manual" {
		t.Errorf("manual entry must be tagged, got %q", created.Source)
	}

	rec = performJSON(t, router, http.MethodGet, "/candidates/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListCandidatesRejectsUnknownStage(t *testing.T) {
	db := newTestDB(t)
	router := newCandidateRouter(t, db)

	rec := performJSON(t, router, http.MethodGet, "/candidates?stage=limbo", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListCandidatesFiltersByStage(t *testing.T) {
	db := newTestDB(t)
	router := newCandidateRouter(t, db)

	for _, c := range []database.Candidate{
		{Name: "A", Stage: database.StageApplied},
		{Name: "B", Stage: database.StageOffer},
		{Name: "C", Stage: database.StageOffer},
	} {
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec := performJSON(t, router, http.MethodGet, "/candidates?stage=offer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []candidateResponse
	decodeBody(t, rec, &items)
	if len(items) != 2 {
		t.Fatalf("expected 2 offer-stage candidates, got %d", len(items))
	}
}

func TestMoveStageRecordsActivity(t *testing.T) {
	db := newTestDB(t)
	router := newCandidateRouter(t, db)

	candidate := database.Candidate{Name: "Dana", Stage: database.StageApplied}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := performJSON(t, router, http.MethodPut, "/candidates/1/stage", map[string]any{"stage": "screening"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got database.Candidate
	db.First(&got, candidate.ID)
	if got.Stage != database.StageScreening {
		t.Errorf("stage not updated, got %q", got.Stage)
	}

	var activity database.Activity
	if err := db.Where("candidate_id = ? AND kind = ?", candidate.ID, "stage_change").First(&activity).Error; err != nil {
		t.Fatalf("stage change must leave a timeline entry: %v", err)
	}

	rec = performJSON(t, router, http.MethodPut, "/candidates/1/stage", map[string]any{"stage": "limbo"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown stage: expected 400, got %d", rec.Code)
	}
}

func TestDeleteCandidateRemovesActivities(t *testing.T) {
	db := newTestDB(t)
	router := newCandidateRouter(t, db)

	candidate := database.Candidate{Name: "Eve"}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Create(&database.Activity{CandidateID: candidate.ID, Kind: "note", Note: "hi"}).Error; err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	if err := db.Create(&database.CVDocument{Hash: "del-hash", FileName: "eve.pdf", ObjectKey: "cv/del-hash.pdf", CandidateID: &candidate.ID}).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}

	rec := performJSON(t, router, http.MethodDelete, "/candidates/1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	var count int64
	db.Model(&database.Activity{}).Where("candidate_id = ?", candidate.ID).Count(&count)
	if count != 0 {
		t.Errorf("activities should be removed with the candidate, have %d", count)
	}
	db.Model(&database.CVDocument{}).Where("candidate_id = ?", candidate.ID).Count(&count)
	if count != 0 {
		t.Errorf("cv documents should be removed with the candidate, have %d", count)
	}
}
