package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hireHub/internal/database"
)

// ActivityHandler 负责候选人时间线。
type ActivityHandler struct {
	db *gorm.DB
}

// NewActivityHandler 构造 ActivityHandler。
func NewActivityHandler(db *gorm.DB) *ActivityHandler {
	return &ActivityHandler{db: db}
}

type activityResponse struct {
	ID        uint      `json:"id"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note"`
	ActorID   uint      `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListActivities 按时间倒序列出候选人时间线。
func (h *ActivityHandler) ListActivities(c *gin.Context) {
	candidateID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid candidate id")
		return
	}

	var activities []database.Activity
	if err := h.db.WithContext(c.Request.Context()).
		Where("candidate_id = ?", candidateID).
		Order("created_at DESC").
		Find(&activities).Error; err != nil {
		Internal(c, "failed to list activities")
		return
	}

	items := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		items = append(items, activityResponse{
			ID:        a.ID,
			Kind:      a.Kind,
			Note:      a.Note,
			ActorID:   a.ActorID,
			CreatedAt: a.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, items)
}

type createNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

// CreateNote 往候选人时间线追加一条备注。
func (h *ActivityHandler) CreateNote(c *gin.Context) {
	candidateID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid candidate id")
		return
	}

	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, _ := userIDFromContext(c)
	activity := database.Activity{
		CandidateID: candidateID,
		Kind:        "note",
		Note:        req.Note,
		ActorID:     userID,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&activity).Error; err != nil {
		Internal(c, "failed to create note")
		return
	}

	c.JSON(http.StatusCreated, activityResponse{
		ID:        activity.ID,
		Kind:      activity.Kind,
		Note:      activity.Note,
		ActorID:   activity.ActorID,
		CreatedAt: activity.CreatedAt,
	})
}
