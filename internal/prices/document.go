package prices

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrDocumentNotFound 持久化存储中尚无价格文档
	ErrDocumentNotFound = errors.New("price document not found")
	// ErrMissingModelName 更新请求缺少模型名
	ErrMissingModelName = errors.New("missing modelName")
	// ErrStoreClosed 写队列已关闭
	ErrStoreClosed = errors.New("price store closed")
)

// Price 单个模型的手工价格
type Price struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// Document 模型名到价格的完整文档，整体读取、整体替换
type Document map[string]Price

// Clone 深拷贝
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge 返回合并 updates 后的新文档，不修改接收者
func (d Document) Merge(updates Document) Document {
	out := d.Clone()
	for k, v := range updates {
		out[k] = v
	}
	return out
}

// Keys 排序后的模型名
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeyMatcher 在本地文档中查找与远端模型名对应的键
type KeyMatcher func(local Document, model string) (string, bool)

// ExactMatch 完全相同
func ExactMatch() KeyMatcher {
	return func(local Document, model string) (string, bool) {
		_, ok := local[model]
		return model, ok
	}
}

// FoldMatch 忽略大小写，多个候选时取字典序最小的键
func FoldMatch() KeyMatcher {
	return func(local Document, model string) (string, bool) {
		for _, k := range local.Keys() {
			if strings.EqualFold(k, model) {
				return k, true
			}
		}
		return "", false
	}
}

// DefaultMatchers 先精确再忽略大小写
func DefaultMatchers() []KeyMatcher {
	return []KeyMatcher{ExactMatch(), FoldMatch()}
}

// Find 按顺序尝试匹配器，首个命中即返回
func (d Document) Find(model string, matchers ...KeyMatcher) (string, bool) {
	for _, m := range matchers {
		if k, ok := m(d, model); ok {
			return k, true
		}
	}
	return "", false
}
