package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func newTemplateRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()
	handler := NewTemplateHandler(db)
	router := newTestRouter()
	router.POST("/templates", asUser(1), handler.CreateTemplate)
	router.PUT("/templates/:id", asUser(1), handler.UpdateTemplate)
	return router
}

func TestCreateTemplateValidatesSyntax(t *testing.T) {
	db := newTestDB(t)
	router := newTemplateRouter(t, db)

	rec := performJSON(t, router, http.MethodPost, "/templates", map[string]any{
		"name":    "broken",
		"subject": "Hello {{.Name",
		"body":    "text",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("broken subject: expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = performJSON(t, router, http.MethodPost, "/templates", map[string]any{
		"name":    "ok",
		"subject": "Hello {{.Name}}",
		"body":    "Dear {{.Name}}, we are hiring for {{.JobTitle}}.",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("valid template: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateTemplateNameMustBeUnique(t *testing.T) {
	db := newTestDB(t)
	router := newTemplateRouter(t, db)

	body := map[string]any{"name": "offer", "subject": "s", "body": "b"}
	rec := performJSON(t, router, http.MethodPost, "/templates", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", rec.Code)
	}

	rec = performJSON(t, router, http.MethodPost, "/templates", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate name: expected 409, got %d", rec.Code)
	}
}
