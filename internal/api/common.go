package api

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var errInvalidID = errors.New("invalid id")

// candidatesCacheKey 是候选人列表的缓存键。
// 任何改动候选人表的处理器都必须在成功后失效它，读取方重新查库。
const candidatesCacheKey = "hiring:candidates:list"

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalidID
	}
	return uint(id), nil
}

// invalidateCandidatesCache 删除候选人列表缓存。失败只记失败，不影响主流程。
func invalidateCandidatesCache(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return nil
	}
	return client.Del(ctx, candidatesCacheKey).Err()
}
