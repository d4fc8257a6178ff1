package analytics

// Totals 成本与用量汇总；TotalCost 为基准货币（USD），TotalCostCNY 为展示货币
type Totals struct {
	TotalCost             float64 `json:"totalCost"`
	TotalCostCNY          float64 `json:"totalCostCNY"`
	TotalTokens           uint64  `json:"totalTokens"`
	TotalPromptTokens     uint64  `json:"totalPromptTokens"`
	TotalCompletionTokens uint64  `json:"totalCompletionTokens"`
	TotalRequests         uint64  `json:"totalRequests"`
}

// DailyOverview 单日汇总
type DailyOverview struct {
	Date string `json:"date"`
	Totals
}

// ModelShare 趋势与单日明细中的模型条目
type ModelShare struct {
	ModelName string  `json:"modelName"`
	CostCNY   float64 `json:"costCNY"`
	Tokens    uint64  `json:"tokens"`
	Requests  uint64  `json:"requests"`
}

// TrendPoint 按天的趋势点
type TrendPoint struct {
	Date          string       `json:"date"`
	TotalCost     float64      `json:"totalCost"`
	TotalTokens   uint64       `json:"totalTokens"`
	TotalRequests uint64       `json:"totalRequests"`
	Models        []ModelShare `json:"models"`
	TotalCostCNY  float64      `json:"totalCostCNY"`
}

// ModelDistribution 模型占比
type ModelDistribution struct {
	ModelName     string  `json:"modelName"`
	TotalCost     float64 `json:"totalCost"`
	TotalCostCNY  float64 `json:"totalCostCNY"`
	TotalTokens   uint64  `json:"totalTokens"`
	TotalRequests uint64  `json:"totalRequests"`
	// Percentage 成本占全部模型的百分比
	Percentage float64 `json:"percentage"`
}

// UserOverview 单个身份的累计汇总
type UserOverview struct {
	TokenName string `json:"tokenName"`
	Totals
}

// UserDailyOverview 单个身份的单日汇总
type UserDailyOverview struct {
	TokenName string `json:"tokenName"`
	Date      string `json:"date"`
	Totals
	Models []ModelShare `json:"models"`
}

// ChartRow 图表行：一个时间标签加若干 模型名 -> tokens
type ChartRow map[string]any

// HourlyChart 单日 24 小时分布
type HourlyChart struct {
	ChartData []ChartRow `json:"chartData"`
	TopModels []string   `json:"topModels"`
}

// PieSlice 饼图条目，Value 为请求数
type PieSlice struct {
	Name   string `json:"name"`
	Value  uint64 `json:"value"`
	Tokens uint64 `json:"tokens"`
}

// ModelTrend 按粒度分桶的模型趋势
type ModelTrend struct {
	ChartData   []ChartRow  `json:"chartData"`
	TopModels   []string    `json:"topModels"`
	PieData     []PieSlice  `json:"pieData"`
	Granularity Granularity `json:"granularity"`
}

// ChannelModelStats 令牌在某个 (模型, 渠道) 上的用量
type ChannelModelStats struct {
	ModelName        string `json:"modelName"`
	ChannelID        int    `json:"channelId"`
	ChannelName      string `json:"channelName"`
	RequestCount     uint64 `json:"requestCount"`
	PromptTokens     uint64 `json:"promptTokens"`
	CompletionTokens uint64 `json:"completionTokens"`
	TotalTokens      uint64 `json:"totalTokens"`
}

// StatsSummary 令牌统计汇总（不含成本）
type StatsSummary struct {
	TotalRequests         uint64 `json:"totalRequests"`
	TotalTokens           uint64 `json:"totalTokens"`
	TotalPromptTokens     uint64 `json:"totalPromptTokens"`
	TotalCompletionTokens uint64 `json:"totalCompletionTokens"`
}

// TokenStats 令牌区间统计
type TokenStats struct {
	Models  []ChannelModelStats `json:"models"`
	Summary StatsSummary        `json:"summary"`
}

// TokenTrendPoint 令牌按 (天, 模型) 的趋势点
type TokenTrendPoint struct {
	Date         string `json:"date"`
	ModelName    string `json:"modelName"`
	RequestCount uint64 `json:"requestCount"`
	TotalTokens  uint64 `json:"totalTokens"`
}

// ModelChannels 模型及提供它的启用渠道
type ModelChannels struct {
	ModelName    string   `json:"modelName"`
	ChannelIDs   []int    `json:"channelIds"`
	ChannelNames []string `json:"channelNames"`
}
