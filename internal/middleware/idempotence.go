package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotenceHeader = "x-idempotence"
	idempotenceTTL    = 60 * time.Second
	idempotencePrefix = "formdeck:idempotence:"
)

const (
	idempotencePending = "0"
	idempotenceDone    = "1"
)

// IdempotenceStore is the key/value backend that remembers recent writes.
type IdempotenceStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Idempotence rejects a repeated non-GET request while the first one is in
// flight or for 60 seconds after it succeeded. Requests are keyed by the
// x-idempotence header, or by a hash of method, URL, body, user agent, IP and
// token. Store errors let the request through.
func Idempotence(store IdempotenceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		key, err := resolveIdempotenceKey(c)
		if err != nil || key == "" {
			c.Next()
			return
		}

		storeKey := idempotencePrefix + key
		ctx := c.Request.Context()

		val, found, err := store.Get(ctx, storeKey)
		if err != nil {
			c.Next()
			return
		}
		if found {
			msg := "the same request can only be sent once within 60 seconds of succeeding"
			if string(val) == idempotencePending {
				msg = "the same request is still being processed"
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"ok":      0,
				"code":    http.StatusConflict,
				"message": msg,
			})
			return
		}

		if err := store.Set(ctx, storeKey, []byte(idempotencePending), idempotenceTTL); err != nil {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			_ = store.Set(ctx, storeKey, []byte(idempotenceDone), redis.KeepTTL)
		} else {
			_ = store.Del(ctx, storeKey)
		}
	}
}

// resolveIdempotenceKey returns the idempotence key for the current request.
func resolveIdempotenceKey(c *gin.Context) (string, error) {
	if hdr := c.GetHeader(idempotenceHeader); hdr != "" {
		return hdr, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	ua := c.Request.UserAgent()
	ip := c.ClientIP()
	token := extractToken(c)

	if len(body) == 0 && ua == "" && ip == "" && token == "" {
		return "", nil
	}

	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%s", c.Request.Method, c.Request.URL.String(), body, ua, ip, token)
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:]), nil
}
