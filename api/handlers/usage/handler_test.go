package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"usagehub/internal/aggregation"
	"usagehub/internal/analytics"
	"usagehub/internal/identity"
	"usagehub/internal/leaderboard"
	"usagehub/internal/pricing"
	"usagehub/internal/usage"
	"usagehub/internal/usage/usagetest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := usagetest.Open(t)
	at := usagetest.At
	usagetest.InsertToken(t, db, 7, "abc", "registered")
	usagetest.InsertLogs(t, db,
		usagetest.Log{CreatedAt: at("2025-02-01", 9, 0), TokenID: 7, TokenName: "alice", ModelName: "fixed", ChannelID: 1},
		usagetest.Log{CreatedAt: at("2025-02-01", 9, 30), TokenID: 7, TokenName: "alice", ModelName: "fixed", ChannelID: 1},
		usagetest.Log{CreatedAt: at("2025-02-01", 11, 0), TokenID: 8, TokenName: "bob", ModelName: "fixed", ChannelID: 2},
	)
	usagetest.InsertChannel(t, db, 1, "main", "fixed", 1)

	cache := pricing.NewConfigCache(pricing.StaticSource{pricing.TableModelPrice: `{"fixed": 10}`}, time.Minute, time.Second, nil)
	require.NoError(t, cache.Refresh(context.Background()))

	repo := usage.NewRepository(db, usagetest.Shanghai, time.Second)
	engine := aggregation.NewEngine(nil)
	stats := analytics.NewService(repo, cache, engine, nil, nil, usagetest.Shanghai, nil)
	stats.SetClock(func() time.Time { return time.Unix(at("2025-02-02", 12, 0), 0) })
	board := leaderboard.NewService(repo, cache, engine, usagetest.Shanghai, leaderboard.Options{})
	resolver := identity.NewResolver(identity.NewGormStore(db), repo, "sk-", time.Second)

	h := NewHandler(stats, board, resolver)
	router := gin.New()
	api := router.Group("/api/newapi")
	api.GET("/overview", h.Overview)
	api.GET("/daily-overview", h.DailyOverview)
	api.GET("/leaderboard", h.Leaderboard)
	api.GET("/trend", h.Trend)
	api.GET("/user-overview", h.UserOverview)
	api.GET("/user-hourly", h.UserHourly)
	api.GET("/user-trend", h.UserTrend)
	api.GET("/verify-token", h.VerifyToken)
	api.GET("/model-trend", h.ModelTrend)
	legacy := router.Group("/api")
	legacy.GET("/tokens", h.LegacyTokens)
	legacy.GET("/stats", h.LegacyStats)
	legacy.GET("/trend", h.LegacyTrend)
	return router, db
}

func get(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestOverviewEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("overview", func(t *testing.T) {
		w := get(router, "/api/newapi/overview")
		require.Equal(t, http.StatusOK, w.Code)
		totals := decode[analytics.Totals](t, w)
		assert.InDelta(t, 30, totals.TotalCost, 1e-9)
		assert.InDelta(t, 216, totals.TotalCostCNY, 1e-9)
		assert.Equal(t, uint64(3), totals.TotalRequests)
	})

	t.Run("daily-overview 缺少日期", func(t *testing.T) {
		w := get(router, "/api/newapi/daily-overview")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Missing date param"}`, w.Body.String())
	})

	t.Run("daily-overview 非法日期", func(t *testing.T) {
		w := get(router, "/api/newapi/daily-overview?date=2025-13-01")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("trend 返回数组", func(t *testing.T) {
		w := get(router, "/api/newapi/trend?days=7")
		require.Equal(t, http.StatusOK, w.Code)
		points := decode[[]analytics.TrendPoint](t, w)
		require.Len(t, points, 1)
		assert.Equal(t, "2025-02-01", points[0].Date)
	})
}

func TestLeaderboardEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/api/newapi/leaderboard?date=2025-02-01&type=requests&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[[]leaderboard.Item](t, w)
	require.Len(t, items, 1)
	assert.Equal(t, "alice", items[0].TokenName)
	assert.Equal(t, 1, items[0].Rank)
	assert.InDelta(t, 20, items[0].TotalCost, 1e-9)

	w = get(router, "/api/newapi/leaderboard?date=bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdentityEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("缺少身份", func(t *testing.T) {
		w := get(router, "/api/newapi/user-overview")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Missing or invalid token/token_name"}`, w.Body.String())
	})

	t.Run("未注册的密钥", func(t *testing.T) {
		w := get(router, "/api/newapi/verify-token?token=sk-unknown")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("按密钥校验", func(t *testing.T) {
		w := get(router, "/api/newapi/verify-token?token=sk-abc")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"valid":true,"hasUsage":true,"tokenName":"alice","tokenId":7}`, w.Body.String())
	})

	t.Run("按名称校验", func(t *testing.T) {
		w := get(router, "/api/newapi/verify-token?token_name=carol")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"valid":true,"hasUsage":false,"tokenName":"carol","tokenId":null}`, w.Body.String())
	})

	t.Run("user-overview 按密钥汇总", func(t *testing.T) {
		w := get(router, "/api/newapi/user-overview?token=abc")
		require.Equal(t, http.StatusOK, w.Code)
		o := decode[analytics.UserOverview](t, w)
		assert.Equal(t, "alice", o.TokenName)
		assert.Equal(t, uint64(2), o.TotalRequests)
	})

	t.Run("user-hourly 缺少日期", func(t *testing.T) {
		w := get(router, "/api/newapi/user-hourly?token_name=alice")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Missing or invalid token/token_name/date"}`, w.Body.String())
	})

	t.Run("user-hourly", func(t *testing.T) {
		w := get(router, "/api/newapi/user-hourly?token_name=alice&date=2025-02-01")
		require.Equal(t, http.StatusOK, w.Code)
		chart := decode[analytics.HourlyChart](t, w)
		require.Len(t, chart.ChartData, 24)
		assert.Equal(t, []string{"fixed"}, chart.TopModels)
	})

	t.Run("user-trend 不限天数", func(t *testing.T) {
		w := get(router, "/api/newapi/user-trend?token_name=bob")
		require.Equal(t, http.StatusOK, w.Code)
		points := decode[[]analytics.TrendPoint](t, w)
		require.Len(t, points, 1)
		assert.Equal(t, uint64(1), points[0].TotalRequests)
	})
}

func TestModelTrendEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/api/newapi/model-trend?start=2025-02-01")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing start or end date param"}`, w.Body.String())

	w = get(router, "/api/newapi/model-trend?start=2025-02-01&end=2025-02-01&granularity=decade")
	require.Equal(t, http.StatusOK, w.Code)
	trend := decode[analytics.ModelTrend](t, w)
	assert.Equal(t, analytics.GranularityDay, trend.Granularity)
	require.Len(t, trend.PieData, 1)
	assert.Equal(t, uint64(3), trend.PieData[0].Value)
}

func TestLegacyEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := get(router, "/api/tokens")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["alice","bob"]`, w.Body.String())

	w = get(router, "/api/stats?token=alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing required params: token, start, end"}`, w.Body.String())

	w = get(router, "/api/stats?token=alice&start=2025-02-01&end=2025-02-01")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[analytics.TokenStats](t, w)
	require.Len(t, stats.Models, 1)
	assert.Equal(t, "main", stats.Models[0].ChannelName)
	assert.Equal(t, uint64(2), stats.Summary.TotalRequests)

	w = get(router, "/api/trend?token=bob")
	assert.JSONEq(t, `{"error":"Missing required params"}`, w.Body.String())
}

func TestStoreFailureReturns500(t *testing.T) {
	router, db := newTestRouter(t)
	require.NoError(t, db.Exec("DROP TABLE logs").Error)

	w := get(router, "/api/newapi/overview")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}
