package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	local := Document{
		"GPT-4o":   {Input: 2.5, Output: 10},
		"claude":   {Input: 3, Output: 15},
		"deepseek": {Input: 0.27, Output: 1.1},
	}

	report := Reconcile(local, []RemoteEntry{
		{Model: "gpt-4o", Price: Price{Input: 2.5, Output: 10}},
		{Model: "Claude", Price: Price{Input: 3, Output: 12}},
		{Model: "qwen-max", Price: Price{Input: 1.6, Output: 6.4}},
	})

	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, Conflict{
		Model:  "claude",
		Local:  Price{Input: 3, Output: 15},
		Remote: Price{Input: 3, Output: 12},
	}, report.Conflicts[0])

	require.Len(t, report.NewModels, 1)
	assert.Equal(t, "qwen-max", report.NewModels[0].Model)

	// 对账从不修改本地文档
	assert.Len(t, local, 3)
	assert.Equal(t, 12.0, report.Conflicts[0].Remote.Output)
}

func TestReconcileNoop(t *testing.T) {
	local := Document{"m": {Input: 1, Output: 2}}
	report := Reconcile(local, EntriesFromDocument(local))
	assert.NotNil(t, report.Conflicts)
	assert.NotNil(t, report.NewModels)
	assert.Empty(t, report.Conflicts)
	assert.Empty(t, report.NewModels)
}

func TestReconcilePrefersExactMatch(t *testing.T) {
	local := Document{
		"Model": {Input: 1},
		"model": {Input: 2},
	}
	report := Reconcile(local, []RemoteEntry{{Model: "model", Price: Price{Input: 2}}})
	assert.Empty(t, report.Conflicts)
}

func TestParseRemote(t *testing.T) {
	t.Run("映射", func(t *testing.T) {
		entries, err := ParseRemote([]byte(`{"b": {"input": 1, "output": 2}, "a": {"input": 3}}`))
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "a", entries[0].Model)
		assert.Equal(t, Price{Input: 3}, entries[0].Price)
	})

	t.Run("数组", func(t *testing.T) {
		entries, err := ParseRemote([]byte(`  [{"modelName": "x", "input": 0.5, "output": 1.5}]`))
		require.NoError(t, err)
		assert.Equal(t, []RemoteEntry{{Model: "x", Price: Price{Input: 0.5, Output: 1.5}}}, entries)
	})

	t.Run("数组缺少模型名", func(t *testing.T) {
		_, err := ParseRemote([]byte(`[{"input": 1}]`))
		assert.ErrorIs(t, err, ErrMissingModelName)
	})

	t.Run("非法 JSON", func(t *testing.T) {
		_, err := ParseRemote([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestCatalogClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"openai": {"id": "openai", "models": {
				"gpt-4o": {"cost": {"input": 2.5, "output": 10}},
				"gpt-image": {"cost": {}},
				"whisper": {}
			}},
			"azure": {"models": {
				"gpt-4o": {"cost": {"input": 5, "output": 15}},
				"o1": {"cost": {"output": 60}}
			}}
		}`))
	}))
	defer srv.Close()

	doc, err := NewCatalogClient(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)

	assert.Len(t, doc, 2)
	// provider 升序：openai 覆盖 azure
	assert.Equal(t, Price{Input: 2.5, Output: 10}, doc["gpt-4o"])
	assert.Equal(t, Price{Output: 60}, doc["o1"])
}

func TestCatalogClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewCatalogClient(srv.URL, time.Second).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
