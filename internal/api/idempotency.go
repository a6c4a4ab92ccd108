package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/oxx-labs/oxx-backend/internal/metrics"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

const (
	IdempotencyKeyHeader    = "Idempotency-Key"
	IdempotentReplayHeader  = "Idempotent-Replay"
	maxIdempotencyKeyLength = 128

	// txSubmittedKey marks a failed request whose transaction already reached the node.
	txSubmittedKey = "oxx.tx_submitted"
)

type cachedResponse struct {
	inFlight    bool
	status      int
	contentType string
	body        []byte
}

// IdempotencyCache remembers write responses by Idempotency-Key so a retried request is
// answered from the first attempt instead of submitting a second transaction.
type IdempotencyCache struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger logging.Logger
}

func NewIdempotencyCache(ttl time.Duration, logger logging.Logger) *IdempotencyCache {
	return &IdempotencyCache{
		cache:  cache.New(ttl, 2*ttl),
		ttl:    ttl,
		logger: logger,
	}
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware is a no-op for requests without the header.
func (c *IdempotencyCache) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := ctx.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			ctx.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Code:  CodeValidation,
				Error: "Idempotency-Key must be at most 128 characters",
			})
			return
		}

		cacheKey := ctx.Request.Method + " " + ctx.FullPath() + " " + key
		if err := c.cache.Add(cacheKey, &cachedResponse{inFlight: true}, c.ttl); err != nil {
			c.replay(ctx, cacheKey)
			return
		}

		writer := &recordingWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = writer
		defer func() {
			// A panicking handler leaves no cached answer, so the client may retry.
			if recovered := recover(); recovered != nil {
				c.cache.Delete(cacheKey)
				panic(recovered)
			}
		}()

		ctx.Next()

		// Server errors before any submission are forgotten so the retry can succeed.
		if writer.Status() >= http.StatusInternalServerError && !ctx.GetBool(txSubmittedKey) {
			c.cache.Delete(cacheKey)
			return
		}
		c.cache.Set(cacheKey, &cachedResponse{
			status:      writer.Status(),
			contentType: writer.Header().Get("Content-Type"),
			body:        writer.body.Bytes(),
		}, c.ttl)
	}
}

func (c *IdempotencyCache) replay(ctx *gin.Context, cacheKey string) {
	value, found := c.cache.Get(cacheKey)
	if !found {
		// Expired between Add and Get; treat as a conflict rather than racing a new write.
		value = &cachedResponse{inFlight: true}
	}
	cached := value.(*cachedResponse)
	if cached.inFlight {
		ctx.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{
			Code:  CodeIdempotencyConflict,
			Error: "A request with this Idempotency-Key is still being processed",
		})
		return
	}

	metrics.IdempotentReplaysTotal.Inc()
	c.logger.Debug("Replaying idempotent response", "key", ctx.GetHeader(IdempotencyKeyHeader), "status", cached.status)
	ctx.Header(IdempotentReplayHeader, "true")
	ctx.Data(cached.status, cached.contentType, cached.body)
	ctx.Abort()
}
