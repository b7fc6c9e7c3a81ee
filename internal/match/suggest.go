package match

import (
	"fmt"
	"time"

	"hireHub/internal/database"
	"hireHub/internal/dedup"
)

// staleAfter 之前没有任何更新的候选人记录视为过期，
// 建议用新 CV 整体覆盖。
const staleAfter = 180 * 24 * time.Hour

// Suggest 根据冲突双方的状态计算建议动作与人类可读的理由。
// 规则从强到弱：
//  1. 同一份文件（哈希相同）重复上传 → skip；
//  2. 候选人已深入流水线（面试及之后）→ skip，避免覆盖活跃流程；
//  3. 新 CV 抽取失败 → create_new，无数据可合并，分开保留最稳妥；
//  4. 既有记录长期未更新 → replace；
//  5. 其余情况 → merge，新字段只填空位。
func Suggest(existing *database.Candidate, extracted *dedup.NewData, sameHash bool) (dedup.Action, string) {
	if sameHash {
		return dedup.ActionSkip, "identical CV already on file for this candidate"
	}

	switch existing.Stage {
	case database.StageInterview, database.StageOffer, database.StageHired:
		return dedup.ActionSkip, fmt.Sprintf("candidate is already at %q stage, not touching an active process", existing.Stage)
	}

	if extracted == nil {
		return dedup.ActionCreateNew, "extraction failed for the new CV, keeping records separate"
	}

	if time.Since(existing.UpdatedAt) > staleAfter {
		return dedup.ActionReplace, "existing record has not been updated in over six months"
	}

	return dedup.ActionMerge, "new CV can fill in missing fields on an early-stage candidate"
}
