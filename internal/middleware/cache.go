package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheStaleKey   = "stale"
	cacheLoadingKey = "revalidating"
	cacheUpdatedKey = "updated_at"
)

// WithResponseMeta initialises response metadata storage on the request context.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetQueryState records the query cache freshness of the data being returned.
func SetQueryState(c *gin.Context, stale, revalidating bool, updatedAt time.Time) {
	meta := ensureMeta(c)
	for k, v := range QueryStateMeta(stale, revalidating, updatedAt) {
		meta[k] = v
	}
}

// QueryStateMeta renders query cache freshness as envelope metadata.
func QueryStateMeta(stale, revalidating bool, updatedAt time.Time) map[string]interface{} {
	meta := map[string]interface{}{
		cacheStaleKey:   stale,
		cacheLoadingKey: revalidating,
	}
	if !updatedAt.IsZero() {
		meta[cacheUpdatedKey] = updatedAt.UTC().Format(time.RFC3339)
	}
	return meta
}

// ExtractMeta returns the metadata map stored on the context.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok && len(typed) > 0 {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}
