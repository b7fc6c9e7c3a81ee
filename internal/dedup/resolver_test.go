package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubmitter 记录提交的批次，支持按模式注入失败。
type fakeSubmitter struct {
	mu      sync.Mutex
	batches []Batch
	failing map[Action]error
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{failing: make(map[Action]error)}
}

func (f *fakeSubmitter) SubmitBatch(_ context.Context, batch Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	if err, ok := f.failing[batch.Mode]; ok {
		return err
	}
	return nil
}

func (f *fakeSubmitter) submitted() []Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Batch(nil), f.batches...)
}

func threeModeDuplicates() []Duplicate {
	return []Duplicate{
		{ID: "d1", FileName: "a.pdf", Hash: "h1", Existing: ExistingCandidate{ID: 1}, Suggested: ActionMerge},
		{ID: "d2", FileName: "b.pdf", Hash: "h2", Existing: ExistingCandidate{ID: 2}, Suggested: ActionReplace},
		{ID: "d3", FileName: "c.pdf", Hash: "h3", Existing: ExistingCandidate{ID: 3}, Suggested: ActionCreateNew},
		{ID: "d4", FileName: "d.pdf", Hash: "h4", Existing: ExistingCandidate{ID: 4}, Suggested: ActionSkip},
	}
}

func TestResolveNoDuplicatesIsNoOp(t *testing.T) {
	submitter := newFakeSubmitter()
	resolver := NewResolver(submitter, nil)

	results, err := resolver.Resolve(context.Background(), nil, NewPlan())
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, submitter.submitted())
}

func TestResolveEmptyPlanRejectedWithoutSubmitting(t *testing.T) {
	submitter := newFakeSubmitter()
	resolver := NewResolver(submitter, nil)

	_, err := resolver.Resolve(context.Background(), threeModeDuplicates(), NewPlan())
	require.ErrorIs(t, err, ErrNoActions)
	assert.Empty(t, submitter.submitted(), "rejection must happen before any request")
}

func TestResolveAllSkipSubmitsNothing(t *testing.T) {
	submitter := newFakeSubmitter()
	resolver := NewResolver(submitter, nil)

	dups := threeModeDuplicates()
	plan := NewPlan()
	plan.ApplyAll(ActionSkip, dups)

	results, err := resolver.Resolve(context.Background(), dups, plan)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Empty(t, submitter.submitted())
}

func TestResolveSubmitsOneBatchPerMode(t *testing.T) {
	submitter := newFakeSubmitter()
	resolver := NewResolver(submitter, nil)

	dups := threeModeDuplicates()
	plan := NewPlan()
	plan.ApplySuggestions(dups)

	results, err := resolver.Resolve(context.Background(), dups, plan)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, res := range results {
		assert.True(t, res.Applied)
		assert.Empty(t, res.Error)
		assert.Equal(t, 1, res.Items)
	}

	modes := make(map[Action]bool)
	for _, batch := range submitter.submitted() {
		modes[batch.Mode] = true
	}
	assert.Equal(t, map[Action]bool{ActionMerge: true, ActionReplace: true, ActionCreateNew: true}, modes)
}

func TestResolvePartialFailureKeepsSiblingResults(t *testing.T) {
	submitter := newFakeSubmitter()
	submitter.failing[ActionReplace] = errors.New("boom")
	resolver := NewResolver(submitter, nil)

	dups := threeModeDuplicates()
	plan := NewPlan()
	plan.ApplySuggestions(dups)

	results, err := resolver.Resolve(context.Background(), dups, plan)
	require.Error(t, err)
	require.Len(t, results, 3)
	assert.Len(t, submitter.submitted(), 3, "a failing bucket must not cancel its siblings")

	byMode := make(map[Action]BatchResult)
	for _, res := range results {
		byMode[res.Mode] = res
	}
	assert.True(t, byMode[ActionMerge].Applied)
	assert.True(t, byMode[ActionCreateNew].Applied)
	assert.False(t, byMode[ActionReplace].Applied)
	assert.Contains(t, byMode[ActionReplace].Error, "boom")
	assert.Equal(t, "replace", FailedModes(results))
}

func TestResolveRetryReusesIdempotencyKeys(t *testing.T) {
	submitter := newFakeSubmitter()
	submitter.failing[ActionMerge] = errors.New("transient")
	resolver := NewResolver(submitter, nil)

	dups := threeModeDuplicates()
	plan := NewPlan()
	plan.ApplySuggestions(dups)

	first, err := resolver.Resolve(context.Background(), dups, plan)
	require.Error(t, err)

	delete(submitter.failing, ActionMerge)
	second, err := resolver.Resolve(context.Background(), dups, plan)
	require.NoError(t, err)

	keys := func(results []BatchResult) map[Action]string {
		out := make(map[Action]string)
		for _, res := range results {
			out[res.Mode] = res.IdempotencyKey
		}
		return out
	}
	assert.Equal(t, keys(first), keys(second), "retry with the same plan must reuse keys so the server can replay")
}
