// Package aggregation 将日志库用量行聚合为成本、Token 与请求数汇总
// 纯内存变换，不做任何 I/O
package aggregation

import (
	"sort"

	"usagehub/internal/pricing"
	"usagehub/internal/usage"
)

// Bucket 聚合桶，Key 可以是身份、模型或时间
type Bucket struct {
	Key                   string
	TotalCostBase         float64
	TotalTokens           uint64
	TotalPromptTokens     uint64
	TotalCompletionTokens uint64
	TotalRequests         uint64
	Members               []*Bucket
}

func (b *Bucket) add(row usage.Row, cost float64) {
	b.TotalCostBase += cost
	b.TotalPromptTokens += row.PromptTokens
	b.TotalCompletionTokens += row.CompletionTokens
	b.TotalTokens += row.PromptTokens + row.CompletionTokens
	b.TotalRequests += row.RequestCount
}

func (b *Bucket) merge(o *Bucket) {
	b.TotalCostBase += o.TotalCostBase
	b.TotalPromptTokens += o.TotalPromptTokens
	b.TotalCompletionTokens += o.TotalCompletionTokens
	b.TotalTokens += o.TotalTokens
	b.TotalRequests += o.TotalRequests
}

// Options 聚合选项
type Options struct {
	// ClassifyNew 是否区分新老身份
	ClassifyNew bool
	// History 查询起点之前已有用量的身份
	History map[string]struct{}
}

// Result 聚合结果
type Result struct {
	PerIdentity []*Bucket
	Summary     *Bucket
	New         []*Bucket
	Returning   []*Bucket
}

// Engine 聚合引擎
type Engine struct {
	calc *pricing.Calculator
}

// NewEngine 创建聚合引擎
func NewEngine(calc *pricing.Calculator) *Engine {
	if calc == nil {
		calc = pricing.NewCalculator()
	}
	return &Engine{calc: calc}
}

// Calculator 引擎使用的计算器
func (e *Engine) Calculator() *pricing.Calculator {
	return e.calc
}

type groupKey struct {
	identity string
	model    string
}

// Aggregate 先按 (身份, 模型) 合并再计费，折叠为身份级汇总与全局汇总
func (e *Engine) Aggregate(rows []usage.Row, cfg *pricing.Config, opts Options) Result {
	groups := mergeRows(rows, func(r usage.Row) groupKey {
		return groupKey{identity: r.IdentityKey, model: r.ModelName}
	})

	identities := make(map[string]*Bucket)
	summary := &Bucket{}
	for _, g := range groups {
		cost := e.calc.Cost(cfg, g.key.model, g.row.PromptTokens, g.row.CompletionTokens, g.row.RequestCount)

		ib, ok := identities[g.key.identity]
		if !ok {
			ib = &Bucket{Key: g.key.identity}
			identities[g.key.identity] = ib
		}
		ib.add(g.row, cost)

		mb := &Bucket{Key: g.key.model}
		mb.add(g.row, cost)
		ib.Members = append(ib.Members, mb)

		summary.add(g.row, cost)
	}

	perIdentity := make([]*Bucket, 0, len(identities))
	for _, b := range identities {
		SortByCost(b.Members)
		perIdentity = append(perIdentity, b)
	}
	SortByCost(perIdentity)

	res := Result{PerIdentity: perIdentity, Summary: summary}
	if opts.ClassifyNew {
		res.New = []*Bucket{}
		res.Returning = []*Bucket{}
		for _, b := range perIdentity {
			if _, seen := opts.History[b.Key]; seen {
				res.Returning = append(res.Returning, b)
			} else {
				res.New = append(res.New, b)
			}
		}
	}
	return res
}

// Summarize 只计算全局汇总
func (e *Engine) Summarize(rows []usage.Row, cfg *pricing.Config) *Bucket {
	summary := &Bucket{}
	for _, b := range e.ByModel(rows, cfg) {
		summary.merge(b)
	}
	return summary
}

// ByModel 按模型聚合，按成本降序
func (e *Engine) ByModel(rows []usage.Row, cfg *pricing.Config) []*Bucket {
	groups := mergeRows(rows, func(r usage.Row) string { return r.ModelName })

	out := make([]*Bucket, 0, len(groups))
	for _, g := range groups {
		b := &Bucket{Key: g.key}
		b.add(g.row, e.calc.Cost(cfg, g.key, g.row.PromptTokens, g.row.CompletionTokens, g.row.RequestCount))
		out = append(out, b)
	}
	SortByCost(out)
	return out
}

// ByTime 按 keyFn 给出的时间键聚合，键升序；Members 为该时间段内的模型明细
func (e *Engine) ByTime(rows []usage.Row, cfg *pricing.Config, keyFn func(usage.Row) string) []*Bucket {
	buckets := make(map[string][]usage.Row)
	for _, r := range rows {
		k := keyFn(r)
		buckets[k] = append(buckets[k], r)
	}

	out := make([]*Bucket, 0, len(buckets))
	for k, members := range buckets {
		b := &Bucket{Key: k, Members: e.ByModel(members, cfg)}
		for _, m := range b.Members {
			b.merge(m)
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

type merged[K comparable] struct {
	key K
	row usage.Row
}

// mergeRows 按键合并 token 与请求数，保持首次出现的顺序
func mergeRows[K comparable](rows []usage.Row, keyFn func(usage.Row) K) []*merged[K] {
	index := make(map[K]*merged[K], len(rows))
	out := make([]*merged[K], 0, len(rows))
	for _, r := range rows {
		k := keyFn(r)
		g, ok := index[k]
		if !ok {
			g = &merged[K]{key: k}
			index[k] = g
			out = append(out, g)
		}
		g.row.PromptTokens += r.PromptTokens
		g.row.CompletionTokens += r.CompletionTokens
		g.row.RequestCount += r.RequestCount
	}
	return out
}
