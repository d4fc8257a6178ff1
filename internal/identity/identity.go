package identity

import (
	"errors"
	"strconv"
	"strings"

	"usagehub/internal/usage"
)

var (
	// ErrMissingIdentity 请求既没有 token 也没有 token_name
	ErrMissingIdentity = errors.New("missing token or token_name")
	// ErrIdentityNotFound 令牌密钥未注册
	ErrIdentityNotFound = errors.New("identity not found")
)

// Identity 计费身份
type Identity struct {
	// TokenID 通过密钥解析时为令牌 ID，按名称解析时为 nil
	TokenID            *int   `json:"tokenId"`
	DisplayName        string `json:"tokenName"`
	HasHistoricalUsage bool   `json:"hasUsage"`
	// RawName 按名称解析时的原始名称
	RawName string `json:"-"`
}

// Filter 身份对应的用量过滤条件
func (i Identity) Filter() usage.Filter {
	if i.TokenID != nil {
		id := *i.TokenID
		return usage.Filter{TokenID: &id}
	}
	return usage.Filter{TokenName: i.RawName}
}

// Equal 两个身份 ID 相同，或均无 ID 且原始名称相同
func (i Identity) Equal(o Identity) bool {
	if i.TokenID != nil || o.TokenID != nil {
		return i.TokenID != nil && o.TokenID != nil && *i.TokenID == *o.TokenID
	}
	return i.RawName == o.RawName
}

// Placeholder 无任何名称时的展示名
func Placeholder(id int) string {
	return "token-" + strconv.Itoa(id)
}

// CandidateRule 候选密钥生成规则，返回 false 表示不适用
type CandidateRule func(raw string) (string, bool)

// Verbatim 原样尝试
func Verbatim() CandidateRule {
	return func(raw string) (string, bool) {
		return raw, raw != ""
	}
}

// StripPrefix 去掉密钥前缀后尝试，仅当输入长于前缀
func StripPrefix(prefix string) CandidateRule {
	return func(raw string) (string, bool) {
		if prefix == "" || len(raw) <= len(prefix) || !strings.HasPrefix(raw, prefix) {
			return "", false
		}
		return raw[len(prefix):], true
	}
}

// Candidates 按规则顺序生成去重后的候选列表
func Candidates(raw string, rules ...CandidateRule) []string {
	seen := make(map[string]struct{}, len(rules))
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		c, ok := rule(raw)
		if !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
