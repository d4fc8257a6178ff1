package tasks

// Task Types
const (
	TypeDailyReport = "report:daily"
)

// QueueReport 日报任务所在队列
const QueueReport = "report"

// DailyReportPayload 日报任务载荷，Date 为空表示执行当天
type DailyReportPayload struct {
	Date string `json:"date"`
}
