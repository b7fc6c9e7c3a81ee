package match

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"hireHub/internal/database"
	"hireHub/internal/dedup"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestDetectByHash(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&database.Candidate{
		Name:   "Alice",
		Email:  "alice@example.com",
		Stage:  database.StageApplied,
		CVHash: "hash-1",
	}).Error)

	detector := NewDetector(db)
	dup, err := detector.Detect(context.Background(), "hash-1", "alice.pdf", nil)
	require.NoError(t, err)
	require.NotNil(t, dup)

	assert.Equal(t, "Alice", dup.Existing.Name)
	assert.Equal(t, dedup.ActionSkip, dup.Suggested, "same hash means the identical file")
	assert.NotEmpty(t, dup.ID)
	assert.Equal(t, "alice.pdf", dup.FileName)
}

func TestDetectByEmailIsCaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&database.Candidate{
		Name:   "Bob",
		Email:  "Bob@Example.com",
		Stage:  database.StageScreening,
		CVHash: "old-hash",
	}).Error)

	detector := NewDetector(db)
	extracted := &dedup.NewData{Email: "bob@example.com"}
	dup, err := detector.Detect(context.Background(), "new-hash", "bob.pdf", extracted)
	require.NoError(t, err)
	require.NotNil(t, dup)

	assert.Equal(t, "Bob", dup.Existing.Name)
	assert.NotEqual(t, dedup.ActionSkip, dup.Suggested)
	require.NotNil(t, dup.NewData)
	assert.Equal(t, "bob@example.com", dup.NewData.Email)
}

func TestDetectNoMatch(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&database.Candidate{
		Name:   "Carol",
		Email:  "carol@example.com",
		CVHash: "other",
	}).Error)

	detector := NewDetector(db)
	dup, err := detector.Detect(context.Background(), "unseen", "new.pdf", &dedup.NewData{Email: "dave@example.com"})
	require.NoError(t, err)
	assert.Nil(t, dup)

	// 抽取失败时只有哈希可查。
	dup, err = detector.Detect(context.Background(), "unseen", "new.pdf", nil)
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestExtractedFromDocument(t *testing.T) {
	assert.Nil(t, ExtractedFromDocument(nil))
	assert.Nil(t, ExtractedFromDocument(&database.CVDocument{Status: "pending"}))
	assert.Nil(t, ExtractedFromDocument(&database.CVDocument{
		Status:    "failed",
		Extracted: []byte(`{"name":"x"}`),
	}))
	assert.Nil(t, ExtractedFromDocument(&database.CVDocument{
		Status:    "extracted",
		Extracted: []byte(`{invalid`),
	}))

	data := ExtractedFromDocument(&database.CVDocument{
		Status:    "extracted",
		Extracted: []byte(`{"name":"Dana","email":"dana@example.com"}`),
	})
	require.NotNil(t, data)
	assert.Equal(t, "Dana", data.Name)
	assert.Equal(t, "dana@example.com", data.Email)
}
