package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/formdeck/core/internal/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func init() { gin.SetMode(gin.TestMode) }

func TestHTTPCacheServesSecondRequestFromStore(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{}}
	calls := 0
	r := gin.New()
	r.GET("/lookup/data", HTTPCache(store, time.Minute), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"data": []string{"a"}})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lookup/data?sourceId=x", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":["a"]}`, w.Body.String())
	}
	assert.Equal(t, 1, calls)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lookup/data?sourceId=x&ts=1", nil))
	assert.Equal(t, 2, calls)
}

func TestIdempotenceRejectsRepeatedSubmission(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{}}
	calls := 0
	r := gin.New()
	r.POST("/forms/:id/records", Idempotence(store), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"id": "r1"})
	})

	submit := func(body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/forms/f1/records", strings.NewReader(body))
		req.Header.Set("User-Agent", "test")
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, submit(`{"data":{"a":"x"}}`))
	assert.Equal(t, http.StatusConflict, submit(`{"data":{"a":"x"}}`))
	assert.Equal(t, http.StatusCreated, submit(`{"data":{"a":"y"}}`))
	assert.Equal(t, 2, calls)

	for k, v := range store.data {
		assert.True(t, strings.HasPrefix(k, "formdeck:idempotence:"))
		assert.Equal(t, "1", string(v))
	}
}

func TestIdempotenceReleasesFailedRequests(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{}}
	calls := 0
	r := gin.New()
	r.POST("/forms/:id/records", Idempotence(store), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "missing"})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/forms/f1/records", strings.NewReader(`{}`))
		req.Header.Set(idempotenceHeader, "k1")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencePendingRequest(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{idempotencePrefix + "k2": []byte(idempotencePending)}}
	r := gin.New()
	r.POST("/x", Idempotence(store), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(idempotenceHeader, "k2")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "still being processed")
}

func TestHTTPCacheSkipsErrors(t *testing.T) {
	store := &memoryStore{data: map[string][]byte{}}
	r := gin.New()
	r.GET("/x", HTTPCache(store, time.Minute), func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "nope"})
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Empty(t, store.data)
}

func TestAuthMiddleware(t *testing.T) {
	signer := jwt.NewSigner("k")
	r := gin.New()
	r.GET("/private", Auth(signer), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := signer.Sign("u1", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", NormalizeToken("  Bearer abc "))
	assert.Equal(t, "abc", NormalizeToken("abc"))
	assert.Equal(t, "", NormalizeToken(" "))
}
