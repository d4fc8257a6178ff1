package pricing

// 计费公式默认参数
const (
	DefaultBaseUnit        = 0.002 / 1000
	DefaultRatio           = 30.0
	DefaultCompletionRatio = 1.0
	DefaultExchangeRate    = 7.2
)

// Calculator 成本计算器，纯函数，不做任何 I/O
type Calculator struct {
	BaseUnit               float64
	DefaultRatio           float64
	DefaultCompletionRatio float64
	ExchangeRate           float64
}

// CostResult 成本结果（基础货币与展示货币）
type CostResult struct {
	CostBase    float64 `json:"costBase"`
	CostDisplay float64 `json:"costDisplay"`
}

// NewCalculator 使用默认参数创建计算器
func NewCalculator() *Calculator {
	return &Calculator{
		BaseUnit:               DefaultBaseUnit,
		DefaultRatio:           DefaultRatio,
		DefaultCompletionRatio: DefaultCompletionRatio,
		ExchangeRate:           DefaultExchangeRate,
	}
}

// Cost 按级联规则计算基础货币成本：
// 固定单价 × 请求数，否则按倍率公式计算；模型名为空时成本为 0
func (c *Calculator) Cost(cfg *Config, model string, promptTokens, completionTokens, requests uint64) float64 {
	if model == "" || cfg == nil {
		return 0
	}

	if price, ok := cfg.ModelPrice.Lookup(model); ok {
		return clamp(price * float64(requests))
	}

	ratio := cfg.ModelRatio.LookupOr(model, c.DefaultRatio)
	completionRatio := cfg.CompletionRatio.LookupOr(model, c.DefaultCompletionRatio)

	inputCost := float64(promptTokens) * ratio * c.BaseUnit
	outputCost := float64(completionTokens) * ratio * completionRatio * c.BaseUnit
	return clamp(inputCost + outputCost)
}

// Result 计算成本并换算展示货币
func (c *Calculator) Result(cfg *Config, model string, promptTokens, completionTokens, requests uint64) CostResult {
	base := c.Cost(cfg, model, promptTokens, completionTokens, requests)
	return CostResult{CostBase: base, CostDisplay: c.ToDisplay(base)}
}

// ToDisplay 基础货币换算为展示货币
func (c *Calculator) ToDisplay(base float64) float64 {
	return base * c.ExchangeRate
}

// FromDisplay 展示货币换算回基础货币
func (c *Calculator) FromDisplay(display float64) float64 {
	if c.ExchangeRate == 0 {
		return 0
	}
	return display / c.ExchangeRate
}

// 负倍率配置不得产生负成本
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
