package prices

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"usagehub/internal/prices"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBackend struct {
	doc prices.Document
}

func (b *memoryBackend) Load(context.Context) (prices.Document, error) {
	if b.doc == nil {
		return nil, prices.ErrDocumentNotFound
	}
	return b.doc.Clone(), nil
}

func (b *memoryBackend) Save(_ context.Context, doc prices.Document) error {
	b.doc = doc.Clone()
	return nil
}

type stubCatalog struct {
	doc prices.Document
	err error
}

func (s stubCatalog) Fetch(context.Context) (prices.Document, error) {
	return s.doc, s.err
}

func newRouter(t *testing.T, catalog Catalog) (*gin.Engine, *prices.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := &memoryBackend{doc: prices.Document{"GPT-4o": {Input: 2.5, Output: 10}}}
	store := prices.NewStore(backend, 10, time.Second, nil)
	t.Cleanup(store.Close)

	h := NewHandler(store, catalog)
	router := gin.New()
	group := router.Group("/api/prices")
	group.GET("", h.Get)
	group.PUT("", h.Update)
	group.POST("/bulk", h.Bulk)
	group.GET("/remote", h.Remote)
	group.POST("/sync", h.Sync)
	return router, store
}

func do(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPriceDocumentEndpoints(t *testing.T) {
	router, store := newRouter(t, stubCatalog{})

	t.Run("读取", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/prices", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"GPT-4o":{"input":2.5,"output":10}}`, w.Body.String())
	})

	t.Run("缺少模型名", func(t *testing.T) {
		w := do(router, http.MethodPut, "/api/prices", `{"input":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Missing modelName"}`, w.Body.String())
	})

	t.Run("单个更新", func(t *testing.T) {
		w := do(router, http.MethodPut, "/api/prices", `{"modelName":"claude","input":3,"output":15}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"prices":{"GPT-4o":{"input":2.5,"output":10},"claude":{"input":3,"output":15}}}`, w.Body.String())
	})

	t.Run("批量更新", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/prices/bulk", `{"claude":{"input":4,"output":20},"mini":{"input":0.1,"output":0.4}}`)
		require.Equal(t, http.StatusOK, w.Code)

		doc, err := store.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, prices.Price{Input: 4, Output: 20}, doc["claude"])
		assert.Len(t, doc, 3)
	})

	t.Run("批量更新拒绝空模型名", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/prices/bulk", `{"":{"input":1,"output":1}}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSyncEndpoint(t *testing.T) {
	router, store := newRouter(t, stubCatalog{})

	t.Run("数组形式", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/prices/sync", `[{"modelName":"gpt-4o","input":5,"output":10},{"modelName":"new","input":1,"output":2}]`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"conflicts":[{"model":"GPT-4o","local":{"input":2.5,"output":10},"remote":{"input":5,"output":10}}],
			"newModels":[{"model":"new","price":{"input":1,"output":2}}]
		}`, w.Body.String())
	})

	t.Run("映射形式且不写入", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/prices/sync", `{"GPT-4o":{"input":2.5,"output":10}}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"conflicts":[],"newModels":[]}`, w.Body.String())

		doc, err := store.Get(context.Background())
		require.NoError(t, err)
		assert.Len(t, doc, 1)
	})

	t.Run("非法请求体", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/prices/sync", `not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSyncBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := prices.NewStore(&memoryBackend{doc: prices.Document{}}, 10, time.Second, nil)
	t.Cleanup(store.Close)

	h := NewHandler(store, stubCatalog{})
	assert.Equal(t, MaxSyncBodyBytes, h.maxSyncBytes)
	h.maxSyncBytes = 64

	router := gin.New()
	router.POST("/api/prices/sync", h.Sync)

	big := `{"` + strings.Repeat("m", 100) + `":{"input":1,"output":1}}`
	w := do(router, http.MethodPost, "/api/prices/sync", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":"Request body too large"}`, w.Body.String())

	w = do(router, http.MethodPost, "/api/prices/sync", `{"m":{"input":1,"output":1}}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRemoteEndpoint(t *testing.T) {
	router, _ := newRouter(t, stubCatalog{doc: prices.Document{"m": {Input: 1}}})
	w := do(router, http.MethodGet, "/api/prices/remote", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"m":{"input":1,"output":0}}`, w.Body.String())

	router, _ = newRouter(t, stubCatalog{err: errors.New("upstream down")})
	w = do(router, http.MethodGet, "/api/prices/remote", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"upstream down"}`, w.Body.String())
}
