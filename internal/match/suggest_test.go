package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"hireHub/internal/database"
	"hireHub/internal/dedup"
)

func candidateAt(stage string, updatedAt time.Time) *database.Candidate {
	return &database.Candidate{
		Model: gorm.Model{ID: 1, UpdatedAt: updatedAt},
		Name:  "Alice",
		Stage: stage,
	}
}

func TestSuggestSameHashWinsOverEverything(t *testing.T) {
	// 即便候选人还在早期阶段并且抽取成功，同一份文件也只建议跳过。
	existing := candidateAt(database.StageApplied, time.Now())
	action, reason := Suggest(existing, &dedup.NewData{Email: "a@example.com"}, true)

	assert.Equal(t, dedup.ActionSkip, action)
	assert.Contains(t, reason, "identical CV")
}

func TestSuggestSkipForActivePipelineStages(t *testing.T) {
	for _, stage := range []string{database.StageInterview, database.StageOffer, database.StageHired} {
		existing := candidateAt(stage, time.Now())
		action, _ := Suggest(existing, &dedup.NewData{}, false)
		assert.Equalf(t, dedup.ActionSkip, action, "stage %s must not be touched", stage)
	}
}

func TestSuggestCreateNewWhenExtractionFailed(t *testing.T) {
	existing := candidateAt(database.StageApplied, time.Now())
	action, reason := Suggest(existing, nil, false)

	assert.Equal(t, dedup.ActionCreateNew, action)
	assert.Contains(t, reason, "extraction failed")
}

func TestSuggestReplaceForStaleRecord(t *testing.T) {
	existing := candidateAt(database.StageScreening, time.Now().Add(-200*24*time.Hour))
	action, _ := Suggest(existing, &dedup.NewData{}, false)

	assert.Equal(t, dedup.ActionReplace, action)
}

func TestSuggestMergeForFreshEarlyStageCandidate(t *testing.T) {
	existing := candidateAt(database.StageScreening, time.Now())
	action, _ := Suggest(existing, &dedup.NewData{Email: "a@example.com"}, false)

	assert.Equal(t, dedup.ActionMerge, action)
}

func TestSuggestRejectedCandidateIsMergeable(t *testing.T) {
	// rejected 不算活跃流程，新 CV 可以合并进来重新激活。
	existing := candidateAt(database.StageRejected, time.Now())
	action, _ := Suggest(existing, &dedup.NewData{}, false)

	assert.Equal(t, dedup.ActionMerge, action)
}
