package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"usagehub/internal/aggregation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bucket(key string, costBase float64, models ...string) *aggregation.Bucket {
	b := &aggregation.Bucket{Key: key, TotalCostBase: costBase, TotalTokens: 1000, TotalRequests: 2}
	for _, m := range models {
		b.Members = append(b.Members, &aggregation.Bucket{Key: m, TotalCostBase: costBase / float64(len(models)), TotalTokens: 100, TotalRequests: 1})
	}
	return b
}

func cardText(t *testing.T, p *Payload) string {
	t.Helper()
	var sb strings.Builder
	for _, el := range p.Card.Card.Body.Elements {
		sb.WriteString(el.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestBuilderWithinBudget(t *testing.T) {
	b := NewBuilder(nil, DefaultOptions(), nil)

	rich := bucket("rich", 30, "gpt-4o")
	poor := bucket("poor", 10, "gpt-4o")
	payload, err := b.Build(Input{
		Date:       "2025-03-01",
		Identities: []*aggregation.Bucket{poor, rich},
		Summary:    &aggregation.Bucket{TotalCostBase: 40, TotalTokens: 2000, TotalRequests: 4},
		Returning:  []*aggregation.Bucket{rich, poor},
	})
	require.NoError(t, err)

	assert.False(t, payload.Truncated)
	assert.Equal(t, 1, payload.Identities)
	assert.LessOrEqual(t, len(payload.Body), DefaultOptions().MaxPayloadBytes)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload.Body, &decoded))
	assert.Equal(t, "interactive", decoded["msg_type"])

	assert.Equal(t, "📊 API 消耗日报 — 2025-03-01", payload.Card.Card.Header.Title.Content)
	text := cardText(t, payload)
	assert.Contains(t, text, "👥 活跃令牌 **2** 个")
	assert.Contains(t, text, "💰 总消耗 **¥288.00**")
	assert.Contains(t, text, "**消耗超过 ¥150 的令牌（共 1 个）**")
	assert.Contains(t, text, "**Top 1 · rich** — ¥216.00")
	assert.NotContains(t, text, "Top 2")
	assert.Contains(t, text, "### 👥 老用户活跃（2人）")
	assert.NotContains(t, text, "欢迎新人")
}

func TestBuilderNoTokenAboveThreshold(t *testing.T) {
	b := NewBuilder(nil, DefaultOptions(), nil)
	payload, err := b.Build(Input{Date: "2025-03-01", Identities: []*aggregation.Bucket{bucket("poor", 1, "m")}})
	require.NoError(t, err)

	assert.Equal(t, 0, payload.Identities)
	assert.Contains(t, cardText(t, payload), "**今日无消耗超过 ¥150 的令牌**")
}

func TestBuilderTruncatesLargePayload(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPayloadBytes = 4000
	b := NewBuilder(nil, opts, nil)

	identities := make([]*aggregation.Bucket, 0, 20)
	for i := 0; i < 20; i++ {
		models := make([]string, 10)
		for j := range models {
			models[j] = fmt.Sprintf("a-rather-long-model-name-%02d-%02d", i, j)
		}
		identities = append(identities, bucket(fmt.Sprintf("token-%02d", i), float64(100+i), models...))
	}

	payload, err := b.Build(Input{Date: "2025-03-01", Identities: identities})
	require.NoError(t, err)

	assert.True(t, payload.Truncated)
	assert.Equal(t, 10, payload.Identities)
	text := cardText(t, payload)
	assert.Contains(t, text, "Top 1 · token-19")
	assert.NotContains(t, text, "Top 11")
	// 总览仍统计全部活跃令牌
	assert.Contains(t, text, "👥 活跃令牌 **20** 个")
}

func TestBuilderModelOverflow(t *testing.T) {
	b := NewBuilder(nil, DefaultOptions(), strings.ToUpper)

	models := make([]string, 12)
	for i := range models {
		models[i] = fmt.Sprintf("m%d", i)
	}
	tok := bucket("wide", 120, models...)
	payload, err := b.Build(Input{
		Date:       "2025-03-01",
		Identities: []*aggregation.Bucket{tok},
		New:        []*aggregation.Bucket{tok},
	})
	require.NoError(t, err)

	text := cardText(t, payload)
	assert.Contains(t, text, "| ...及其他 2 个模型 | | | |")
	assert.Contains(t, text, "| M0 |")
	assert.NotContains(t, text, "| M11 |")
	assert.Contains(t, text, "### 🎉 欢迎新人上线（1人）")
	assert.Contains(t, text, "🌟 **NEW** wide · ¥864.00 · 1.0K tokens · M0, M1, M2 (+9)")
}

func TestTruncatedCount(t *testing.T) {
	cases := map[int]int{0: 0, 3: 3, 5: 5, 8: 5, 11: 5, 20: 10, 21: 10}
	for n, want := range cases {
		assert.Equal(t, want, TruncatedCount(n), "n=%d", n)
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "12.3K", FormatNumber(12345))
	assert.Equal(t, "1.23M", FormatNumber(1234567))
}
