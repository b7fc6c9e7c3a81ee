package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hireHub/internal/database"
)

// InterviewHandler 负责面试安排。
type InterviewHandler struct {
	db *gorm.DB
}

// NewInterviewHandler 构造 InterviewHandler。
func NewInterviewHandler(db *gorm.DB) *InterviewHandler {
	return &InterviewHandler{db: db}
}

type interviewRequest struct {
	CandidateID uint      `json:"candidate_id" binding:"required"`
	JobID       *uint     `json:"job_id"`
	Interviewer string    `json:"interviewer" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	DurationMin int       `json:"duration_min"`
	Location    string    `json:"location"`
	Notes       string    `json:"notes"`
}

type interviewResponse struct {
	ID          uint      `json:"id"`
	CandidateID uint      `json:"candidate_id"`
	JobID       *uint     `json:"job_id,omitempty"`
	Interviewer string    `json:"interviewer"`
	ScheduledAt time.Time `json:"scheduled_at"`
	DurationMin int       `json:"duration_min"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
}

// CreateInterview 新建面试，同一面试官时间重叠会被拒绝。
func (h *InterviewHandler) CreateInterview(c *gin.Context) {
	var req interviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.DurationMin <= 0 {
		req.DurationMin = 60
	}

	ctx := c.Request.Context()
	var candidate database.Candidate
	if err := h.db.WithContext(ctx).First(&candidate, req.CandidateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "candidate not found")
		} else {
			Internal(c, "failed to query candidate")
		}
		return
	}

	conflict, err := h.hasConflict(c, req.Interviewer, req.ScheduledAt, req.DurationMin, 0)
	if err != nil {
		Internal(c, "failed to check schedule")
		return
	}
	if conflict {
		Conflict(c, "interviewer already booked in that slot")
		return
	}

	interview := database.Interview{
		CandidateID: req.CandidateID,
		JobID:       req.JobID,
		Interviewer: req.Interviewer,
		ScheduledAt: req.ScheduledAt,
		DurationMin: req.DurationMin,
		Location:    req.Location,
		Status:      "scheduled",
		Notes:       req.Notes,
	}
	if err := h.db.WithContext(ctx).Create(&interview).Error; err != nil {
		Internal(c, "failed to create interview")
		return
	}

	c.JSON(http.StatusCreated, newInterviewResponse(interview))
}

// ListInterviews 列出面试，可按候选人或面试官过滤。
func (h *InterviewHandler) ListInterviews(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&database.Interview{})
	if candidateID := c.Query("candidate_id"); candidateID != "" {
		query = query.Where("candidate_id = ?", candidateID)
	}
	if interviewer := c.Query("interviewer"); interviewer != "" {
		query = query.Where("interviewer = ?", interviewer)
	}

	var interviews []database.Interview
	if err := query.Order("scheduled_at ASC").Find(&interviews).Error; err != nil {
		Internal(c, "failed to list interviews")
		return
	}

	items := make([]interviewResponse, 0, len(interviews))
	for _, iv := range interviews {
		items = append(items, newInterviewResponse(iv))
	}
	c.JSON(http.StatusOK, items)
}

type updateInterviewRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
	DurationMin *int       `json:"duration_min"`
	Location    *string    `json:"location"`
	Status      *string    `json:"status"`
	Notes       *string    `json:"notes"`
}

// UpdateInterview 调整时间、状态或备注。
func (h *InterviewHandler) UpdateInterview(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid interview id")
		return
	}

	var req updateInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var interview database.Interview
	if err := h.db.WithContext(ctx).First(&interview, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "interview not found")
		} else {
			Internal(c, "failed to query interview")
		}
		return
	}

	updates := map[string]any{}
	if req.ScheduledAt != nil {
		duration := interview.DurationMin
		if req.DurationMin != nil {
			duration = *req.DurationMin
		}
		conflict, err := h.hasConflict(c, interview.Interviewer, *req.ScheduledAt, duration, interview.ID)
		if err != nil {
			Internal(c, "failed to check schedule")
			return
		}
		if conflict {
			Conflict(c, "interviewer already booked in that slot")
			return
		}
		updates["scheduled_at"] = *req.ScheduledAt
	}
	if req.DurationMin != nil {
		updates["duration_min"] = *req.DurationMin
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.Status != nil {
		switch *req.Status {
		case "scheduled", "done", "cancelled":
			updates["status"] = *req.Status
		default:
			BadRequest(c, "invalid interview status")
			return
		}
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(&interview).Updates(updates).Error; err != nil {
			Internal(c, "failed to update interview")
			return
		}
		if err := h.db.WithContext(ctx).First(&interview, interview.ID).Error; err != nil {
			Internal(c, "failed to reload interview")
			return
		}
	}

	c.JSON(http.StatusOK, newInterviewResponse(interview))
}

// DeleteInterview 删除面试安排。
func (h *InterviewHandler) DeleteInterview(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid interview id")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(&database.Interview{}, id).Error; err != nil {
		Internal(c, "failed to delete interview")
		return
	}
	c.Status(http.StatusNoContent)
}

// hasConflict 检查同一面试官在给定时间段内是否已有未取消的面试。
func (h *InterviewHandler) hasConflict(c *gin.Context, interviewer string, start time.Time, durationMin int, excludeID uint) (bool, error) {
	end := start.Add(time.Duration(durationMin) * time.Minute)

	// 区间重叠判断放在应用层做，避免写方言相关的 interval SQL。
	var booked []database.Interview
	query := h.db.WithContext(c.Request.Context()).
		Where("interviewer = ? AND status = ?", interviewer, "scheduled")
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Find(&booked).Error; err != nil {
		return false, err
	}

	for _, iv := range booked {
		ivEnd := iv.ScheduledAt.Add(time.Duration(iv.DurationMin) * time.Minute)
		if iv.ScheduledAt.Before(end) && ivEnd.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func newInterviewResponse(iv database.Interview) interviewResponse {
	return interviewResponse{
		ID:          iv.ID,
		CandidateID: iv.CandidateID,
		JobID:       iv.JobID,
		Interviewer: iv.Interviewer,
		ScheduledAt: iv.ScheduledAt,
		DurationMin: iv.DurationMin,
		Location:    iv.Location,
		Status:      iv.Status,
		Notes:       iv.Notes,
	}
}
