// Package modelalias 把渠道侧的模型 ID 映射为展示名称
package modelalias

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Map 模型别名表：alias -> canonical
type Map map[string]string

// Load 读取 YAML 别名文件；文件不存在时返回空表
func Load(path string) (Map, error) {
	if path == "" {
		return Map{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Map{}, nil
		}
		return nil, fmt.Errorf("读取模型别名文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 别名表，空值条目会被忽略
func Parse(data []byte) (Map, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解析模型别名失败: %w", err)
	}
	m := make(Map, len(raw))
	for alias, canonical := range raw {
		if alias != "" && canonical != "" {
			m[alias] = canonical
		}
	}
	return m, nil
}

// Normalize 返回展示名称，未登记的名称原样返回
func (m Map) Normalize(name string) string {
	if canonical, ok := m[name]; ok {
		return canonical
	}
	return name
}

// Aliases 指向同一展示名称的全部别名（有序）
func (m Map) Aliases(canonical string) []string {
	var out []string
	for alias, c := range m {
		if c == canonical {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}
