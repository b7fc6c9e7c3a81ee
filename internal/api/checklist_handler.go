package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hireHub/internal/database"
)

// ChecklistHandler 负责清单模板与候选人清单实例。
type ChecklistHandler struct {
	db *gorm.DB
}

// NewChecklistHandler 构造 ChecklistHandler。
func NewChecklistHandler(db *gorm.DB) *ChecklistHandler {
	return &ChecklistHandler{db: db}
}

// checklistItem 是 Items JSONB 里的元素。
type checklistItem struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

type checklistRequest struct {
	Title string   `json:"title" binding:"required"`
	Items []string `json:"items" binding:"required,min=1"`
}

type checklistResponse struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Items       []checklistItem `json:"items"`
	IsTemplate  bool            `json:"is_template"`
	CandidateID *uint           `json:"candidate_id,omitempty"`
}

// CreateTemplate 新建清单模板，所有条目初始未完成。
func (h *ChecklistHandler) CreateTemplate(c *gin.Context) {
	var req checklistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	items := make([]checklistItem, 0, len(req.Items))
	for _, label := range req.Items {
		items = append(items, checklistItem{Label: label})
	}
	raw, err := json.Marshal(items)
	if err != nil {
		Internal(c, "failed to encode items")
		return
	}

	checklist := database.Checklist{
		Title:      req.Title,
		Items:      datatypes.JSON(raw),
		IsTemplate: true,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&checklist).Error; err != nil {
		Internal(c, "failed to create checklist")
		return
	}

	resp, err := newChecklistResponse(checklist)
	if err != nil {
		Internal(c, "failed to decode checklist")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListTemplates 列出全部清单模板。
func (h *ChecklistHandler) ListTemplates(c *gin.Context) {
	var checklists []database.Checklist
	if err := h.db.WithContext(c.Request.Context()).
		Where("is_template = ?", true).
		Order("created_at DESC").
		Find(&checklists).Error; err != nil {
		Internal(c, "failed to list checklists")
		return
	}

	items := make([]checklistResponse, 0, len(checklists))
	for _, cl := range checklists {
		resp, err := newChecklistResponse(cl)
		if err != nil {
			Internal(c, "failed to decode checklist")
			return
		}
		items = append(items, resp)
	}
	c.JSON(http.StatusOK, items)
}

// DeleteTemplate 删除清单模板，已实例化的候选人清单不受影响。
func (h *ChecklistHandler) DeleteTemplate(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid checklist id")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).
		Where("is_template = ?", true).
		Delete(&database.Checklist{}, id).Error; err != nil {
		Internal(c, "failed to delete checklist")
		return
	}
	c.Status(http.StatusNoContent)
}

type instantiateRequest struct {
	TemplateID uint `json:"template_id" binding:"required"`
}

// InstantiateForCandidate 从模板复制一份清单挂到候选人名下。
func (h *ChecklistHandler) InstantiateForCandidate(c *gin.Context) {
	candidateID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid candidate id")
		return
	}

	var req instantiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var template database.Checklist
	if err := h.db.WithContext(ctx).
		Where("is_template = ?", true).
		First(&template, req.TemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "checklist template not found")
		} else {
			Internal(c, "failed to query template")
		}
		return
	}

	instance := database.Checklist{
		Title:       template.Title,
		Items:       template.Items,
		IsTemplate:  false,
		CandidateID: &candidateID,
	}
	if err := h.db.WithContext(ctx).Create(&instance).Error; err != nil {
		Internal(c, "failed to instantiate checklist")
		return
	}

	resp, err := newChecklistResponse(instance)
	if err != nil {
		Internal(c, "failed to decode checklist")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListForCandidate 列出候选人名下的清单。
func (h *ChecklistHandler) ListForCandidate(c *gin.Context) {
	candidateID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid candidate id")
		return
	}

	var checklists []database.Checklist
	if err := h.db.WithContext(c.Request.Context()).
		Where("candidate_id = ?", candidateID).
		Order("created_at ASC").
		Find(&checklists).Error; err != nil {
		Internal(c, "failed to list checklists")
		return
	}

	items := make([]checklistResponse, 0, len(checklists))
	for _, cl := range checklists {
		resp, err := newChecklistResponse(cl)
		if err != nil {
			Internal(c, "failed to decode checklist")
			return
		}
		items = append(items, resp)
	}
	c.JSON(http.StatusOK, items)
}

type toggleItemRequest struct {
	Index int  `json:"index"`
	Done  bool `json:"done"`
}

// ToggleItem 勾选或取消清单里的一项。
func (h *ChecklistHandler) ToggleItem(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid checklist id")
		return
	}

	var req toggleItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var checklist database.Checklist
	if err := h.db.WithContext(ctx).First(&checklist, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "checklist not found")
		} else {
			Internal(c, "failed to query checklist")
		}
		return
	}

	var items []checklistItem
	if err := json.Unmarshal(checklist.Items, &items); err != nil {
		Internal(c, "failed to decode checklist items")
		return
	}
	if req.Index < 0 || req.Index >= len(items) {
		BadRequest(c, "item index out of range")
		return
	}
	items[req.Index].Done = req.Done

	raw, err := json.Marshal(items)
	if err != nil {
		Internal(c, "failed to encode checklist items")
		return
	}
	if err := h.db.WithContext(ctx).Model(&checklist).Update("items", datatypes.JSON(raw)).Error; err != nil {
		Internal(c, "failed to update checklist")
		return
	}

	checklist.Items = datatypes.JSON(raw)
	resp, err := newChecklistResponse(checklist)
	if err != nil {
		Internal(c, "failed to decode checklist")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func newChecklistResponse(cl database.Checklist) (checklistResponse, error) {
	var items []checklistItem
	if len(cl.Items) > 0 {
		if err := json.Unmarshal(cl.Items, &items); err != nil {
			return checklistResponse{}, err
		}
	}
	return checklistResponse{
		ID:          cl.ID,
		Title:       cl.Title,
		Items:       items,
		IsTemplate:  cl.IsTemplate,
		CandidateID: cl.CandidateID,
	}, nil
}
