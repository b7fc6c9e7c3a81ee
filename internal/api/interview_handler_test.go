package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hireHub/internal/database"
)

func newInterviewRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	handler := NewInterviewHandler(db)
	router := newTestRouter()
	router.POST("/interviews", asUser(1), handler.CreateInterview)
	router.GET("/interviews", asUser(1), handler.ListInterviews)
	router.PUT("/interviews/:id", asUser(1), handler.UpdateInterview)
	return router
}

func TestCreateInterviewRejectsOverlap(t *testing.T) {
	db := newTestDB(t)
	router := newInterviewRouter(t, db)

	candidate := database.Candidate{Name: "Alice", Stage: database.StageInterview}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}

	slot := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	first := map[string]any{
		"candidate_id": candidate.ID,
		"interviewer":  "grace",
		"scheduled_at": slot.Format(time.RFC3339),
		"duration_min": 60,
	}
	rec := performJSON(t, router, http.MethodPost, "/interviews", first)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first booking: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// 同一面试官，半小时后开始，与上一场重叠。
	overlapping := map[string]any{
		"candidate_id": candidate.ID,
		"interviewer":  "grace",
		"scheduled_at": slot.Add(30 * time.Minute).Format(time.RFC3339),
		"duration_min": 60,
	}
	rec = performJSON(t, router, http.MethodPost, "/interviews", overlapping)
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping booking: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	// 其他面试官同一时间没问题。
	otherInterviewer := map[string]any{
		"candidate_id": candidate.ID,
		"interviewer":  "henry",
		"scheduled_at": slot.Format(time.RFC3339),
		"duration_min": 60,
	}
	rec = performJSON(t, router, http.MethodPost, "/interviews", otherInterviewer)
	if rec.Code != http.StatusCreated {
		t.Fatalf("different interviewer: expected 201, got %d", rec.Code)
	}

	// 紧接着的下一场（back-to-back）不算重叠。
	backToBack := map[string]any{
		"candidate_id": candidate.ID,
		"interviewer":  "grace",
		"scheduled_at": slot.Add(60 * time.Minute).Format(time.RFC3339),
		"duration_min": 30,
	}
	rec = performJSON(t, router, http.MethodPost, "/interviews", backToBack)
	if rec.Code != http.StatusCreated {
		t.Fatalf("back-to-back booking: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateInterviewRescheduleChecksConflicts(t *testing.T) {
	db := newTestDB(t)
	router := newInterviewRouter(t, db)

	candidate := database.Candidate{Name: "Bob"}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}

	base := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	booked := database.Interview{
		CandidateID: candidate.ID,
		Interviewer: "grace",
		ScheduledAt: base,
		DurationMin: 60,
		Status:      "scheduled",
	}
	moving := database.Interview{
		CandidateID: candidate.ID,
		Interviewer: "grace",
		ScheduledAt: base.Add(2 * time.Hour),
		DurationMin: 60,
		Status:      "scheduled",
	}
	if err := db.Create(&booked).Error; err != nil {
		t.Fatalf("seed interview: %v", err)
	}
	if err := db.Create(&moving).Error; err != nil {
		t.Fatalf("seed interview: %v", err)
	}

	newSlot := base.Add(30 * time.Minute).Format(time.RFC3339)
	rec := performJSON(t, router, http.MethodPut, "/interviews/2", map[string]any{"scheduled_at": newSlot})
	if rec.Code != http.StatusConflict {
		t.Fatalf("reschedule into a busy slot: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	freeSlot := base.Add(4 * time.Hour).Format(time.RFC3339)
	rec = performJSON(t, router, http.MethodPut, "/interviews/2", map[string]any{"scheduled_at": freeSlot})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule into a free slot: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
