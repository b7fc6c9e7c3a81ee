package hiring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

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

func seedCandidate(t *testing.T, db *gorm.DB, candidate database.Candidate) database.Candidate {
	t.Helper()
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	return candidate
}

func seedDocument(t *testing.T, db *gorm.DB, hash string, extracted *dedup.NewData) database.CVDocument {
	t.Helper()
	doc := database.CVDocument{
		Hash:      hash,
		FileName:  hash + ".pdf",
		ObjectKey: "cv/" + hash + ".pdf",
		Status:    "pending",
	}
	if extracted != nil {
		raw, err := json.Marshal(extracted)
		if err != nil {
			t.Fatalf("encode extracted: %v", err)
		}
		doc.Extracted = raw
		doc.Status = "extracted"
	}
	if err := db.Create(&doc).Error; err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

func intPtr(v int) *int { return &v }

func TestApplyBatchMergeOnlyFillsEmptyFields(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, nil)

	candidate := seedCandidate(t, db, database.Candidate{
		Name:  "Alice",
		Email: "",
		Phone: "123",
		Stage: database.StageScreening,
	})
	seedDocument(t, db, "hash-merge", &dedup.NewData{
		Name:     "Alice Replacement",
		Email:    "alice@example.com",
		Phone:    "999",
		FitScore: intPtr(80),
		Skills:   []string{"Go", "SQL"},
	})

	summary, replayed, err := store.ApplyBatch(context.Background(), dedup.Batch{
		Mode:           dedup.ActionMerge,
		IdempotencyKey: "key-merge",
		Items: []dedup.BatchItem{
			{CandidateID: candidate.ID, FileName: "alice.pdf", Hash: "hash-merge"},
		},
	})
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if replayed {
		t.Fatal("first submission must not be a replay")
	}
	if summary.Processed != 1 || summary.Updated != 1 || summary.Created != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var got database.Candidate
	if err := db.First(&got, candidate.ID).Error; err != nil {
		t.Fatalf("reload candidate: %v", err)
	}
	if got.Name != "Alice" {
		t.Errorf("merge must not overwrite name, got %q", got.Name)
	}
	if got.Phone != "123" {
		t.Errorf("merge must not overwrite phone, got %q", got.Phone)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("merge should fill empty email, got %q", got.Email)
	}
	if got.FitScore == nil || *got.FitScore != 80 {
		t.Errorf("merge should fill empty fit score, got %v", got.FitScore)
	}

	var activities int64
	db.Model(&database.Activity{}).Where("candidate_id = ?", candidate.ID).Count(&activities)
	if activities != 1 {
		t.Errorf("expected one activity entry, got %d", activities)
	}
}

func TestApplyBatchMergeWithoutExtractionIsNoOp(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, nil)

	candidate := seedCandidate(t, db, database.Candidate{Name: "Bob", Email: "bob@example.com"})
	seedDocument(t, db, "hash-empty", nil)

	_, _, err := store.ApplyBatch(context.Background(), dedup.Batch{
		Mode:           dedup.ActionMerge,
		IdempotencyKey: "key-noop",
		Items: []dedup.BatchItem{
			{CandidateID: candidate.ID, FileName: "bob.pdf", Hash: "hash-empty"},
		},
	})
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}

	var got database.Candidate
	db.First(&got, candidate.ID)
	if got.Name != "Bob" || got.Email != "bob@example.com" {
		t.Errorf("no-op merge changed the candidate: %+v", got)
	}
}

func TestApplyBatchReplaceOverwritesAndRepointsCV(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, nil)

	candidate := seedCandidate(t, db, database.Candidate{
		Name:        "Carol Old",
		Email:       "carol@old.example.com",
		Phone:       "111",
		CVObjectKey: "cv/old.pdf",
		CVHash:      "old-hash",
	})
	doc := seedDocument(t, db, "hash-replace", &dedup.NewData{
		Name:  "Carol New",
		Email: "carol@new.example.com",
	})

	_, _, err := store.ApplyBatch(context.Background(), dedup.Batch{
		Mode:           dedup.ActionReplace,
		IdempotencyKey: "key-replace",
		Items: []dedup.BatchItem{
			{CandidateID: candidate.ID, FileName: "carol.pdf", Hash: "hash-replace"},
		},
	})
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}

	var got database.Candidate
	db.First(&got, candidate.ID)
	if got.Name != "Carol New" {
		t.Errorf("replace should overwrite name, got %q", got.Name)
	}
	if got.Email != "carol@new.example.com" {
		t.Errorf("replace should overwrite email, got %q", got.Email)
	}
	if got.Phone != "111" {
		t.Errorf("replace keeps fields absent from the new CV, got %q", got.Phone)
	}
	if got.CVObjectKey != doc.ObjectKey || got.CVHash != doc.Hash {
		t.Errorf("replace should repoint the CV, got key=%q hash=%q", got.CVObjectKey, got.CVHash)
	}
}

func TestApplyBatchCreateNewSharesIdentity(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, nil)

	jobID := uint(7)
	existing := seedCandidate(t, db, database.Candidate{
		Name:  "Dave",
		Email: "dave@example.com",
		JobID: &jobID,
		Stage: database.StageOffer,
	})
	doc := seedDocument(t, db, "hash-new", &dedup.NewData{Phone: "555"})

	summary, _, err := store.ApplyBatch(context.Background(), dedup.Batch{
		Mode:           dedup.ActionCreateNew,
		IdempotencyKey: "key-create",
		Items: []dedup.BatchItem{
			{CandidateID: existing.ID, FileName: "dave2.pdf", Hash: "hash-new"},
		},
	})
	if err != nil {
		t.Fatalf("apply batch: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("expected one created candidate, got %+v", summary)
	}

	var fresh database.Candidate
	if err := db.First(&fresh, summary.CandidateIDs[0]).Error; err != nil {
		t.Fatalf("load fresh candidate: %v", err)
	}
	if fresh.ID == existing.ID {
		t.Fatal("create_new must insert a distinct row")
	}
	if fresh.Email != existing.Email || fresh.Name != existing.Name {
		t.Errorf("create_new shares identity with the existing record, got %+v", fresh)
	}
	if fresh.Stage != database.StageApplied {
		t.Errorf("new record starts at the applied stage, got %q", fresh.Stage)
	}
	if fresh.Phone != "555" {
		t.Errorf("extracted fields land on the new record, got %q", fresh.Phone)
	}

	var gotDoc database.CVDocument
	db.First(&gotDoc, doc.ID)
	if gotDoc.CandidateID == nil || *gotDoc.CandidateID != fresh.ID {
		t.Errorf("document should link to the new candidate, got %v", gotDoc.CandidateID)
	}
}

func TestApplyBatchReplaysOnDuplicateKey(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, nil)

	existing := seedCandidate(t, db, database.Candidate{Name: "Eve", Email: "eve@example.com"})
	seedDocument(t, db, "hash-idem", nil)

	batch := dedup.Batch{
		Mode:           dedup.ActionCreateNew,
		IdempotencyKey: "key-idem",
		Items: []dedup.BatchItem{
			{CandidateID: existing.ID, FileName: "eve.pdf", Hash: "hash-idem"},
		},
	}

	first, replayed, err := store.ApplyBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if replayed {
		t.Fatal("first apply must not replay")
	}

	second, replayed, err := store.ApplyBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !replayed {
		t.Fatal("second apply with the same key must replay")
	}
	if len(second.CandidateIDs) != 1 || second.CandidateIDs[0] != first.CandidateIDs[0] {
		t.Errorf("replay returns the original summary, got %+v vs %+v", second, first)
	}

	var count int64
	db.Model(&database.Candidate{}).Count(&count)
	if count != 2 {
		t.Errorf("replay must not insert again, have %d candidates", count)
	}
}

func TestApplyBatchMissingCandidateFailsWholeBatch(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, nil)

	existing := seedCandidate(t, db, database.Candidate{Name: "Frank", Email: "frank@example.com"})
	seedDocument(t, db, "hash-a", &dedup.NewData{Email: "frank@new.example.com"})

	_, _, err := store.ApplyBatch(context.Background(), dedup.Batch{
		Mode:           dedup.ActionReplace,
		IdempotencyKey: "key-missing",
		Items: []dedup.BatchItem{
			{CandidateID: existing.ID, FileName: "frank.pdf", Hash: "hash-a"},
			{CandidateID: 99999, FileName: "ghost.pdf", Hash: "hash-a"},
		},
	})
	if !errors.Is(err, ErrCandidateMissing) {
		t.Fatalf("expected ErrCandidateMissing, got %v", err)
	}

	// 整个批次是一个事务：第一项的变更必须回滚。
	var got database.Candidate
	db.First(&got, existing.ID)
	if got.Email != "frank@example.com" {
		t.Errorf("failed batch must roll back, got email %q", got.Email)
	}

	var batches int64
	db.Model(&database.ProcessedBatch{}).Count(&batches)
	if batches != 0 {
		t.Errorf("failed batch must not record its key, got %d rows", batches)
	}
}

func TestApplyBatchRejectsInvalidInput(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db, nil)

	cases := []dedup.Batch{
		{Mode: dedup.ActionSkip, IdempotencyKey: "k", Items: []dedup.BatchItem{{CandidateID: 1}}},
		{Mode: dedup.ActionMerge, IdempotencyKey: "k"},
		{Mode: dedup.ActionMerge, Items: []dedup.BatchItem{{CandidateID: 1}}},
	}
	for i, batch := range cases {
		if _, _, err := store.ApplyBatch(context.Background(), batch); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
