package dedup

// submitOrder 固定批次的构建与提交顺序，保证结果可复现。
var submitOrder = []Action{ActionMerge, ActionReplace, ActionCreateNew}

// ComputeBatches 把冲突集合按有效动作分桶并构建批次请求。纯函数。
// 每个冲突项恰好落入一个桶；skip 桶被整体丢弃，不产生任何请求；
// 剩下的每个非空桶生成一个 Batch，幂等键由 plan 缓存。
func ComputeBatches(duplicates []Duplicate, plan *Plan) []Batch {
	buckets := make(map[Action][]BatchItem, len(submitOrder))
	for _, d := range duplicates {
		action := plan.Effective(d)
		if !action.Mutates() {
			continue
		}
		buckets[action] = append(buckets[action], BatchItem{
			CandidateID: d.Existing.ID,
			FileName:    d.FileName,
			Hash:        d.Hash,
		})
	}

	batches := make([]Batch, 0, len(buckets))
	for _, mode := range submitOrder {
		items := buckets[mode]
		if len(items) == 0 {
			continue
		}
		batches = append(batches, Batch{
			Mode:           mode,
			IdempotencyKey: plan.batchKey(mode),
			Items:          items,
		})
	}
	return batches
}
