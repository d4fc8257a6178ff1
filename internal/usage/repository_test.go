package usage_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"usagehub/internal/usage"
	"usagehub/internal/usage/usagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRepository(t *testing.T) *usage.Repository {
	db := usagetest.Open(t)
	at := usagetest.At
	usagetest.InsertLogs(t, db,
		usagetest.Log{CreatedAt: at("2025-01-01", 9, 0), TokenID: 1, TokenName: "alice", ModelName: "gpt-4o", PromptTokens: 100, CompletionTokens: 50, ChannelID: 1},
		usagetest.Log{CreatedAt: at("2025-01-01", 9, 30), TokenID: 1, TokenName: "alice", ModelName: "gpt-4o", PromptTokens: 200, CompletionTokens: 100, ChannelID: 2},
		usagetest.Log{CreatedAt: at("2025-01-02", 0, 10), TokenID: 1, TokenName: "alice-renamed", ModelName: "claude", PromptTokens: 10, CompletionTokens: 10, ChannelID: 1},
		usagetest.Log{CreatedAt: at("2025-01-02", 23, 59), TokenID: 2, TokenName: "bob", ModelName: "gpt-4o", PromptTokens: 1, CompletionTokens: 1, ChannelID: 1},
		usagetest.Log{CreatedAt: at("2025-01-02", 12, 0), TokenID: 3, TokenName: "", ModelName: "gpt-4o", PromptTokens: 5, CompletionTokens: 5},
		// 非消费日志不计入
		usagetest.Log{Type: 1, CreatedAt: at("2025-01-03", 12, 0), TokenID: 2, TokenName: "bob", ModelName: "gpt-4o", PromptTokens: 999},
	)
	return usage.NewRepository(db, usagetest.Shanghai, time.Second)
}

func TestRepositoryRows(t *testing.T) {
	repo := seedRepository(t)
	ctx := context.Background()

	t.Run("按令牌与模型聚合", func(t *testing.T) {
		rows, err := repo.Rows(ctx, usage.Query{
			Filter:       usage.Filter{NamedOnly: true},
			GroupByToken: true,
		})
		require.NoError(t, err)
		require.Len(t, rows, 3)

		sort.Slice(rows, func(i, j int) bool { return rows[i].IdentityKey < rows[j].IdentityKey })
		assert.Equal(t, "alice", rows[0].IdentityKey)
		assert.Equal(t, uint64(300), rows[0].PromptTokens)
		assert.Equal(t, uint64(150), rows[0].CompletionTokens)
		assert.Equal(t, uint64(2), rows[0].RequestCount)
		assert.Equal(t, uint64(450), rows[0].Tokens())
		assert.Equal(t, "alice-renamed", rows[1].IdentityKey)
		assert.Equal(t, "bob", rows[2].IdentityKey)
	})

	t.Run("单日边界按上海时区", func(t *testing.T) {
		f, err := usage.DayFilter("2025-01-02", usagetest.Shanghai)
		require.NoError(t, err)

		rows, err := repo.Rows(ctx, usage.Query{Filter: f})
		require.NoError(t, err)

		var requests uint64
		for _, r := range rows {
			requests += r.RequestCount
		}
		assert.Equal(t, uint64(3), requests)
	})

	t.Run("按令牌ID与渠道聚合", func(t *testing.T) {
		id := 1
		rows, err := repo.Rows(ctx, usage.Query{
			Filter:         usage.Filter{TokenID: &id},
			GroupByChannel: true,
		})
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("小时桶", func(t *testing.T) {
		rows, err := repo.Rows(ctx, usage.Query{
			Filter: usage.Filter{TokenName: "alice"},
			Hourly: true,
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)

		bucket := rows[0].Bucket
		assert.Equal(t, 9, bucket.Hour())
		assert.Equal(t, 0, bucket.Minute())
		assert.Equal(t, "2025-01-01", bucket.Format(usage.DateLayout))
		assert.Equal(t, uint64(2), rows[0].RequestCount)
	})
}

func TestRepositoryLookups(t *testing.T) {
	repo := seedRepository(t)
	ctx := context.Background()

	names, err := repo.DistinctTokenNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "alice-renamed", "bob"}, names)

	before, err := repo.TokenNamesBefore(ctx, time.Unix(usagetest.At("2025-01-02", 0, 0), 0))
	require.NoError(t, err)
	assert.Contains(t, before, "alice")
	assert.NotContains(t, before, "bob")

	name, err := repo.LatestTokenName(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice-renamed", name)

	name, err = repo.LatestTokenName(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, name)

	id := 2
	has, err := repo.HasUsage(ctx, usage.Filter{TokenID: &id})
	require.NoError(t, err)
	assert.True(t, has)

	id = 404
	has, err = repo.HasUsage(ctx, usage.Filter{TokenID: &id})
	require.NoError(t, err)
	assert.False(t, has)

	dates, err := repo.AvailableDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-02", "2025-01-01"}, dates)
}

func TestParseDay(t *testing.T) {
	start, end, err := usage.ParseDay("2025-03-01", usagetest.Shanghai)
	require.NoError(t, err)
	assert.Equal(t, int64(1740758400), start.Unix())
	assert.Equal(t, int64(86400), end.Unix()-start.Unix())

	for _, bad := range []string{"", "2025/03/01", "2025-13-01", "tomorrow"} {
		_, _, err := usage.ParseDay(bad, usagetest.Shanghai)
		assert.True(t, errors.Is(err, usage.ErrInvalidDate), bad)
	}
}
