package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"coop-ledger/pkg/id"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "Ax-Request-Id"
	HeaderRequestAt = "Ax-Request-At"
	HeaderMemberID  = "Ax-Member-Id"

	storeTimeout = 2 * time.Second
)

// IdempotencyConfig tunes the replay store. Zero values take the defaults
// from DefaultIdempotencyConfig.
type IdempotencyConfig struct {
	// TTL keeps a finished response available for replay.
	TTL time.Duration
	// LockTTL bounds how long an unfinished request holds its key.
	LockTTL time.Duration
	// MaxSkew is the accepted distance between Ax-Request-At and the server clock.
	MaxSkew time.Duration
	Prefix  string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		LockTTL: 60 * time.Second,
		MaxSkew: 10 * time.Minute,
		Prefix:  "idemp:coop:",
	}
}

func (c IdempotencyConfig) withDefaults() IdempotencyConfig {
	d := DefaultIdempotencyConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	if c.MaxSkew <= 0 {
		c.MaxSkew = d.MaxSkew
	}
	if c.Prefix == "" {
		c.Prefix = d.Prefix
	}
	return c
}

type idempEntry struct {
	InProgress  bool      `json:"in_progress"`
	Code        int       `json:"code"`
	Body        []byte    `json:"body"`
	BodySHA256  string    `json:"body_sha256"`
	RequestID   string    `json:"request_id"`
	RequestAtMS int64     `json:"request_at_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// respRecorder tees the handler's response so it can be stored for replay.
type respRecorder struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (r *respRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *respRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func errJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

// Idempotency makes every mutating request replayable: the first response
// for (method, route, member, request id) is stored and returned again for
// retries with the same body. Server errors are not stored, so a failed
// request can be retried under the same id.
func Idempotency(rdb *redis.Client, cfg IdempotencyConfig, log *zap.Logger) echo.MiddlewareFunc {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	s := store{rdb: rdb, lockTTL: cfg.LockTTL}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			reqID := strings.TrimSpace(req.Header.Get(HeaderRequestID))
			if reqID == "" {
				return errJSON(c, http.StatusBadRequest, "missing "+HeaderRequestID)
			}
			if !validReqID(reqID) {
				return errJSON(c, http.StatusBadRequest, "invalid "+HeaderRequestID+" format")
			}
			reqAt, err := parseRequestAt(req.Header.Get(HeaderRequestAt))
			if err != nil {
				return errJSON(c, http.StatusBadRequest, err.Error())
			}
			if now := nowUTC(); reqAt.Before(now.Add(-cfg.MaxSkew)) || reqAt.After(now.Add(cfg.MaxSkew)) {
				return errJSON(c, http.StatusBadRequest, HeaderRequestAt+" too skewed")
			}
			memberID := strings.TrimSpace(req.Header.Get(HeaderMemberID))
			if memberID == "" {
				return errJSON(c, http.StatusBadRequest, "missing "+HeaderMemberID)
			}
			if !id.Valid(memberID) {
				return errJSON(c, http.StatusBadRequest, "invalid "+HeaderMemberID)
			}

			var body []byte
			if req.Body != nil {
				if body, err = io.ReadAll(req.Body); err != nil {
					return errJSON(c, http.StatusBadRequest, "unreadable body")
				}
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			hash := bodyHash(body)

			key := buildKey(cfg.Prefix, req.Method, c.Path(), memberID, reqID)
			ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
			defer cancel()

			ok, err := s.claim(ctx, key, idempEntry{
				InProgress:  true,
				BodySHA256:  hash,
				RequestID:   reqID,
				RequestAtMS: reqAt.UnixMilli(),
				CreatedAt:   nowUTC(),
			})
			if err != nil {
				log.Error("idempotency store unavailable", zap.String("key", key), zap.Error(err))
				return errJSON(c, http.StatusServiceUnavailable, "idempotency store unavailable")
			}
			if !ok {
				cur, err := s.load(ctx, key)
				if err != nil {
					log.Warn("idempotency entry unreadable", zap.String("key", key), zap.Error(err))
				}
				if cur.BodySHA256 != "" && cur.BodySHA256 != hash {
					return errJSON(c, http.StatusConflict, HeaderRequestID+" reused with different body")
				}
				if !cur.InProgress && cur.Code != 0 && len(cur.Body) > 0 {
					c.Response().Header().Set("Idempotent-Replayed", "true")
					return c.Blob(cur.Code, echo.MIMEApplicationJSON, cur.Body)
				}
				return errJSON(c, http.StatusConflict, "request is already in progress")
			}

			rec := &respRecorder{ResponseWriter: c.Response().Writer, code: http.StatusOK}
			c.Response().Writer = rec
			if err := next(c); err != nil {
				c.Error(err)
			}

			// The response is already written; the store update must not be
			// cut short by a client that hung up.
			sctx, scancel := context.WithTimeout(context.WithoutCancel(req.Context()), storeTimeout)
			defer scancel()
			if rec.code >= http.StatusInternalServerError {
				if err := s.release(sctx, key); err != nil {
					log.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
				}
				return nil
			}
			if err := s.save(sctx, key, idempEntry{
				Code:        rec.code,
				Body:        rec.buf.Bytes(),
				BodySHA256:  hash,
				RequestID:   reqID,
				RequestAtMS: reqAt.UnixMilli(),
				CreatedAt:   nowUTC(),
			}, cfg.TTL); err != nil {
				log.Warn("idempotency save failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}
