package usage

import (
	"fmt"
	"time"
)

// DateLayout 日期参数格式
const DateLayout = "2006-01-02"

// ParseDay 解析 YYYY-MM-DD，返回该自然日在 loc 中的 [start, end)
func ParseDay(date string, loc *time.Location) (time.Time, time.Time, error) {
	if date == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	start, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s", ErrInvalidDate, date)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// DayFilter 单日过滤条件
func DayFilter(date string, loc *time.Location) (Filter, error) {
	start, end, err := ParseDay(date, loc)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Start: start, End: end}, nil
}

// Today loc 时区下的当前日期
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

// zoneOffset 时区在参考时刻的 UTC 偏移秒数
func zoneOffset(loc *time.Location, at time.Time) int {
	if at.IsZero() {
		at = time.Now()
	}
	_, offset := at.In(loc).Zone()
	return offset
}
