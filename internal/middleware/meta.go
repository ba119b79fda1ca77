package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	requestStartKey = "request_started_at"
)

// WithResponseMeta gives handlers a meta map that ends up in the response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the payload was served from the summary cache.
func SetCacheHit(c *gin.Context, hit bool) {
	meta, ok := lookupMeta(c)
	if !ok {
		meta = map[string]interface{}{}
		c.Set(responseMetaKey, meta)
	}
	meta["cache_hit"] = hit
}

// ExtractMeta returns the request's meta map stamped with the elapsed time, or nil when unset.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta, ok := lookupMeta(c)
	if !ok {
		return nil
	}
	if v, exists := c.Get(requestStartKey); exists {
		if started, ok := v.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(started).Milliseconds()
		}
	}
	return meta
}

func lookupMeta(c *gin.Context) (map[string]interface{}, bool) {
	if c == nil {
		return nil, false
	}
	v, exists := c.Get(responseMetaKey)
	if !exists {
		return nil, false
	}
	meta, ok := v.(map[string]interface{})
	return meta, ok && meta != nil
}
