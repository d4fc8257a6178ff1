package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"usagehub/internal/aggregation"
	"usagehub/internal/pricing"
)

// Options 日报渲染参数
type Options struct {
	// Threshold 入选令牌的最低消耗（展示货币）
	Threshold       float64
	MaxIdentities   int
	MaxModels       int
	MaxPayloadBytes int
}

// DefaultOptions 默认渲染参数
func DefaultOptions() Options {
	return Options{Threshold: 150, MaxIdentities: 20, MaxModels: 10, MaxPayloadBytes: 19000}
}

// Input 一天的聚合结果
type Input struct {
	Date       string
	Identities []*aggregation.Bucket
	Summary    *aggregation.Bucket
	New        []*aggregation.Bucket
	Returning  []*aggregation.Bucket
}

// Payload 渲染后的卡片
type Payload struct {
	Card       Card
	Body       []byte
	Identities int
	Truncated  bool
}

// Builder 日报卡片构建器
type Builder struct {
	calc      *pricing.Calculator
	opts      Options
	normalize func(string) string
}

// NewBuilder 创建构建器；normalize 为模型展示名映射，可为 nil
func NewBuilder(calc *pricing.Calculator, opts Options, normalize func(string) string) *Builder {
	if calc == nil {
		calc = pricing.NewCalculator()
	}
	if normalize == nil {
		normalize = func(s string) string { return s }
	}
	return &Builder{calc: calc, opts: opts, normalize: normalize}
}

// Select 过滤达到阈值的身份，按成本降序并截取前 MaxIdentities 个
func (b *Builder) Select(identities []*aggregation.Bucket) []*aggregation.Bucket {
	selected := make([]*aggregation.Bucket, 0, len(identities))
	for _, id := range identities {
		if b.calc.ToDisplay(id.TotalCostBase) >= b.opts.Threshold {
			selected = append(selected, id)
		}
	}
	aggregation.SortByCost(selected)
	if b.opts.MaxIdentities > 0 && len(selected) > b.opts.MaxIdentities {
		selected = selected[:b.opts.MaxIdentities]
	}
	return selected
}

// Build 渲染卡片；超过体积上限时把令牌列表减半（至少 5 个）重建一次，仍超限也照常返回
func (b *Builder) Build(in Input) (*Payload, error) {
	selected := b.Select(in.Identities)

	payload, err := b.render(in, selected)
	if err != nil {
		return nil, err
	}
	if b.opts.MaxPayloadBytes <= 0 || len(payload.Body) <= b.opts.MaxPayloadBytes {
		return payload, nil
	}

	keep := TruncatedCount(len(selected))
	truncated, err := b.render(in, selected[:keep])
	if err != nil {
		return nil, err
	}
	truncated.Truncated = true
	return truncated, nil
}

// TruncatedCount 截断后保留的数量：max(5, floor(n/2))，且不超过 n
func TruncatedCount(n int) int {
	keep := n / 2
	if keep < 5 {
		keep = 5
	}
	if keep > n {
		keep = n
	}
	return keep
}

func (b *Builder) render(in Input, tokens []*aggregation.Bucket) (*Payload, error) {
	card := newCard(fmt.Sprintf("📊 API 消耗日报 — %s", in.Date), b.elements(in, tokens))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(card); err != nil {
		return nil, fmt.Errorf("序列化日报卡片失败: %w", err)
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")

	return &Payload{Card: card, Body: body, Identities: len(tokens)}, nil
}

func (b *Builder) elements(in Input, tokens []*aggregation.Bucket) []Element {
	summary := in.Summary
	if summary == nil {
		summary = &aggregation.Bucket{}
	}

	// 总览
	elements := []Element{
		markdown(fmt.Sprintf("**今日总览**\n👥 活跃令牌 **%d** 个 | 📡 调用 **%s** 次 | 🔤 Tokens **%s** | 💰 总消耗 **¥%.2f**",
			len(in.Identities), FormatNumber(summary.TotalRequests), FormatNumber(summary.TotalTokens),
			b.calc.ToDisplay(summary.TotalCostBase))),
		divider(),
	}

	// 新老用户分组
	if len(in.New) > 0 {
		elements = append(elements,
			markdown(fmt.Sprintf("### 🎉 欢迎新人上线（%d人）", len(in.New))),
			markdown(b.userList(in.New, "🌟 **NEW** ")),
			divider(),
		)
	}
	if len(in.Returning) > 0 {
		elements = append(elements,
			markdown(fmt.Sprintf("### 👥 老用户活跃（%d人）", len(in.Returning))),
			markdown(b.userList(in.Returning, "👤 ")),
			divider(),
		)
	}

	threshold := strconv.FormatFloat(b.opts.Threshold, 'f', -1, 64)
	if len(tokens) == 0 {
		return append(elements, markdown(fmt.Sprintf("**今日无消耗超过 ¥%s 的令牌**", threshold)))
	}

	// 每个令牌一段，附模型明细表
	elements = append(elements, markdown(fmt.Sprintf("**消耗超过 ¥%s 的令牌（共 %d 个）**", threshold, len(tokens))))
	for i, tok := range tokens {
		elements = append(elements, markdown(fmt.Sprintf("**Top %d · %s** — ¥%.2f\n调用 %d 次 | Tokens %s\n\n%s",
			i+1, tok.Key, b.calc.ToDisplay(tok.TotalCostBase), tok.TotalRequests, FormatNumber(tok.TotalTokens),
			b.modelTable(tok.Members))))
		if i < len(tokens)-1 {
			elements = append(elements, divider())
		}
	}
	return elements
}

func (b *Builder) userList(users []*aggregation.Bucket, badge string) string {
	lines := make([]string, len(users))
	for i, u := range users {
		names := make([]string, 0, 3)
		for _, m := range u.Members {
			if len(names) == 3 {
				break
			}
			names = append(names, b.normalize(m.Key))
		}
		more := ""
		if len(u.Members) > 3 {
			more = fmt.Sprintf(" (+%d)", len(u.Members)-3)
		}
		lines[i] = fmt.Sprintf("%s%s · ¥%.2f · %s tokens · %s%s",
			badge, u.Key, b.calc.ToDisplay(u.TotalCostBase), FormatNumber(u.TotalTokens), strings.Join(names, ", "), more)
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) modelTable(models []*aggregation.Bucket) string {
	var sb strings.Builder
	sb.WriteString("| 模型 | Tokens | 调用 | 费用(¥) |\n|---|---|---|---|\n")

	shown := models
	if b.opts.MaxModels > 0 && len(shown) > b.opts.MaxModels {
		shown = shown[:b.opts.MaxModels]
	}
	for _, m := range shown {
		fmt.Fprintf(&sb, "| %s | %s | %d | %.2f |\n",
			b.normalize(m.Key), FormatNumber(m.TotalTokens), m.TotalRequests, b.calc.ToDisplay(m.TotalCostBase))
	}
	if remaining := len(models) - len(shown); remaining > 0 {
		fmt.Fprintf(&sb, "| ...及其他 %d 个模型 | | | |\n", remaining)
	}
	return sb.String()
}

// FormatNumber 1234567 -> 1.23M，12345 -> 12.3K
func FormatNumber(n uint64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatUint(n, 10)
	}
}
