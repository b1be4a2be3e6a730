package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/pkg/apperrors"
	"github.com/GoPolymarket/polylend/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey   = "X-Idempotency-Key"
	HeaderIdempotentReplay = "X-Idempotent-Replay"
)

// IdempotencyRecord is the stored outcome of one keyed ledger mutation.
type IdempotencyRecord struct {
	Fingerprint string // keccak256 of the request body
	Status      int
	Body        []byte
	CreatedAt   time.Time
	Pending     bool // 仍在处理中
}

type IdempotencyStore interface {
	// Claim reserves key for a request. It returns (record, true) when the key is already taken.
	Claim(key, fingerprint string) (*IdempotencyRecord, bool)
	Complete(key string, rec IdempotencyRecord)
	Release(key string)
}

// InMemIdempotencyStore 单实例部署使用，多实例请用 Redis
type InMemIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]*IdempotencyRecord
}

func NewInMemIdempotencyStore(ttl time.Duration) *InMemIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InMemIdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]*IdempotencyRecord),
	}
}

func (s *InMemIdempotencyStore) Claim(key, fingerprint string) (*IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.records[key]; ok && now.Sub(rec.CreatedAt) < s.ttl {
		cp := *rec
		return &cp, true
	}
	s.records[key] = &IdempotencyRecord{
		Fingerprint: fingerprint,
		CreatedAt:   now,
		Pending:     true,
	}
	return nil, false
}

func (s *InMemIdempotencyStore) Complete(key string, rec IdempotencyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Pending = false
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.records[key] = &rec
	s.evictLocked(rec.CreatedAt)
}

func (s *InMemIdempotencyStore) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

func (s *InMemIdempotencyStore) evictLocked(now time.Time) {
	for k, rec := range s.records {
		if !rec.Pending && now.Sub(rec.CreatedAt) >= s.ttl {
			delete(s.records, k)
		}
	}
}

// IdempotencyMiddleware replays the first successful response of a keyed mutation.
// Keys are scoped per caller and route; reusing a key with a different body is rejected.
// Must run after CallerMiddleware.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if idemKey == "" || !isMutation(c.Request.Method) {
			c.Next()
			return
		}
		caller, ok := Caller(c)
		if !ok {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			raw, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.Error(apperrors.NewInvalidRequest("unreadable request body"))
				c.Abort()
				return
			}
			body = raw
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		scope := caller.Hex() + ":" + c.Request.Method + " " + c.FullPath() + ":" + idemKey
		fp := crypto.Keccak256Hash(body).Hex()

		if rec, taken := store.Claim(scope, fp); taken {
			switch {
			case rec.Fingerprint != "" && rec.Fingerprint != fp:
				c.Error(apperrors.Newf(apperrors.ErrInvalidRequest, "idempotency key %q was used with a different request", idemKey))
			case rec.Pending:
				c.Error(apperrors.Newf(apperrors.ErrRequestInProgress, "request with idempotency key %q is still in progress", idemKey))
			default:
				metrics.IdempotentReplays.Inc()
				c.Header(HeaderIdempotentReplay, "true")
				c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			}
			c.Abort()
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		// 被拒绝的变更不缓存，调用方修正后可用同一个 key 重试
		if len(c.Errors) > 0 || w.Status() >= http.StatusBadRequest {
			store.Release(scope)
			return
		}
		store.Complete(scope, IdempotencyRecord{
			Fingerprint: fp,
			Status:      w.Status(),
			Body:        w.body,
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
