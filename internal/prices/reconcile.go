package prices

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RemoteEntry 远端价格条目
type RemoteEntry struct {
	Model string
	Price Price
}

// Conflict 本地与远端价格不一致
type Conflict struct {
	Model  string `json:"model"`
	Local  Price  `json:"local"`
	Remote Price  `json:"remote"`
}

// NewModel 本地不存在的远端模型
type NewModel struct {
	Model string `json:"model"`
	Price Price  `json:"price"`
}

// Report 对账结果，只读，由调用方决定是否通过 Set 应用
type Report struct {
	Conflicts []Conflict `json:"conflicts"`
	NewModels []NewModel `json:"newModels"`
}

// Reconcile 将远端列表与本地文档比较
// matchers 为空时使用 DefaultMatchers
func Reconcile(local Document, remote []RemoteEntry, matchers ...KeyMatcher) Report {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}

	report := Report{Conflicts: []Conflict{}, NewModels: []NewModel{}}
	for _, entry := range remote {
		key, ok := local.Find(entry.Model, matchers...)
		if !ok {
			report.NewModels = append(report.NewModels, NewModel{Model: entry.Model, Price: entry.Price})
			continue
		}
		if lp := local[key]; lp != entry.Price {
			report.Conflicts = append(report.Conflicts, Conflict{Model: key, Local: lp, Remote: entry.Price})
		}
	}
	return report
}

// EntriesFromDocument 文档转为按模型名排序的条目
func EntriesFromDocument(doc Document) []RemoteEntry {
	entries := make([]RemoteEntry, 0, len(doc))
	for _, k := range doc.Keys() {
		entries = append(entries, RemoteEntry{Model: k, Price: doc[k]})
	}
	return entries
}

type remoteItem struct {
	ModelName string  `json:"modelName"`
	Input     float64 `json:"input"`
	Output    float64 `json:"output"`
}

// ParseRemote 解析远端价格：既接受 {model: {input, output}} 映射，也接受 [{modelName, input, output}] 数组
func ParseRemote(data []byte) ([]RemoteEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []remoteItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("解析远端价格数组失败: %w", err)
		}
		entries := make([]RemoteEntry, 0, len(items))
		for _, it := range items {
			if it.ModelName == "" {
				return nil, ErrMissingModelName
			}
			entries = append(entries, RemoteEntry{Model: it.ModelName, Price: Price{Input: it.Input, Output: it.Output}})
		}
		return entries, nil
	}

	doc := Document{}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("解析远端价格映射失败: %w", err)
	}
	return EntriesFromDocument(doc), nil
}
