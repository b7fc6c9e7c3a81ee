package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDuplicates() []Duplicate {
	return []Duplicate{
		{ID: "d1", FileName: "alice.pdf", Hash: "h1", Existing: ExistingCandidate{ID: 1}, Suggested: ActionMerge},
		{ID: "d2", FileName: "bob.pdf", Hash: "h2", Existing: ExistingCandidate{ID: 2}, Suggested: ActionSkip},
		{ID: "d3", FileName: "carol.pdf", Hash: "h3", Existing: ExistingCandidate{ID: 3}, Suggested: ActionReplace},
	}
}

func TestEffectiveFallsBackToSuggestion(t *testing.T) {
	plan := NewPlan()
	dups := sampleDuplicates()

	assert.Equal(t, ActionMerge, plan.Effective(dups[0]))
	assert.Equal(t, ActionSkip, plan.Effective(dups[1]))

	plan.Set("d1", ActionCreateNew)
	assert.Equal(t, ActionCreateNew, plan.Effective(dups[0]))
	assert.Equal(t, ActionSkip, plan.Effective(dups[1]), "other items keep their suggestion")
}

func TestEffectiveIgnoresInvalidOverride(t *testing.T) {
	plan := NewPlan()
	plan.Set("d1", Action("explode"))

	dups := sampleDuplicates()
	assert.Equal(t, ActionMerge, plan.Effective(dups[0]))
}

func TestApplyAllOverwritesEveryChoice(t *testing.T) {
	plan := NewPlan()
	dups := sampleDuplicates()
	plan.Set("d2", ActionMerge)

	plan.ApplyAll(ActionSkip, dups)

	for _, d := range dups {
		assert.Equal(t, ActionSkip, plan.Effective(d))
	}
	require.NotNil(t, plan.SelectedMode)
	assert.Equal(t, ActionSkip, *plan.SelectedMode)
}

func TestApplySuggestionsIsIdempotent(t *testing.T) {
	plan := NewPlan()
	dups := sampleDuplicates()
	plan.ApplyAll(ActionReplace, dups)

	plan.ApplySuggestions(dups)
	first := make(map[string]Action)
	for _, d := range dups {
		first[d.ID] = plan.Effective(d)
	}

	plan.ApplySuggestions(dups)
	for _, d := range dups {
		assert.Equal(t, first[d.ID], plan.Effective(d))
		assert.Equal(t, d.Suggested, plan.Effective(d))
	}
	assert.Nil(t, plan.SelectedMode)
}

func TestEmpty(t *testing.T) {
	var nilPlan *Plan
	assert.True(t, nilPlan.Empty())
	assert.True(t, NewPlan().Empty())

	withChoice := NewPlan()
	withChoice.Set("d1", ActionMerge)
	assert.False(t, withChoice.Empty())

	mode := ActionSkip
	withMode := NewPlan()
	withMode.SelectedMode = &mode
	assert.False(t, withMode.Empty())
}

func TestBatchKeyStableAcrossRetries(t *testing.T) {
	plan := NewPlan()

	first := plan.batchKey(ActionMerge)
	require.NotEmpty(t, first)
	assert.Equal(t, first, plan.batchKey(ActionMerge), "same plan keeps the same key")
	assert.NotEqual(t, first, plan.batchKey(ActionReplace), "each mode gets its own key")

	other := NewPlan()
	assert.NotEqual(t, first, other.batchKey(ActionMerge), "a fresh plan is a fresh submission")
}

func TestSeedKeys(t *testing.T) {
	plan := NewPlan()
	plan.SeedKeys(map[string]string{
		"merge":   "key-merge",
		"replace": "",
		"bogus":   "key-bogus",
	})

	assert.Equal(t, "key-merge", plan.batchKey(ActionMerge))
	assert.NotEqual(t, "key-bogus", plan.batchKey(ActionCreateNew))
	assert.NotEmpty(t, plan.batchKey(ActionReplace), "empty seed is ignored, key generated lazily")
}
