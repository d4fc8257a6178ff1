package identity

import (
	"context"
	"time"

	"usagehub/internal/usage"
)

// Resolver 将调用方提供的密钥或名称解析为计费身份
type Resolver struct {
	store   Store
	usage   UsageLookup
	rules   []CandidateRule
	timeout time.Duration
}

// NewResolver 创建身份解析器
// prefix 为密钥前缀（如 "sk-"），timeout 约束整次解析的外部查询
func NewResolver(store Store, lookup UsageLookup, prefix string, timeout time.Duration) *Resolver {
	return &Resolver{
		store:   store,
		usage:   lookup,
		rules:   []CandidateRule{Verbatim(), StripPrefix(prefix)},
		timeout: timeout,
	}
}

// Resolve 解析查询参数；token_name 优先于 token
func (r *Resolver) Resolve(ctx context.Context, tokenName, token string) (Identity, error) {
	if tokenName != "" {
		return r.ResolveName(ctx, tokenName, time.Time{})
	}
	if token == "" {
		return Identity{}, ErrMissingIdentity
	}
	return r.ResolveSecret(ctx, token)
}

// ResolveSecret 按候选顺序查找密钥，首个命中即返回，不跨候选合并
func (r *Resolver) ResolveSecret(ctx context.Context, secret string) (Identity, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var token *Token
	for _, candidate := range Candidates(secret, r.rules...) {
		found, err := r.store.FindByKey(ctx, candidate)
		if err != nil {
			return Identity{}, err
		}
		if found != nil {
			token = found
			break
		}
	}
	if token == nil {
		return Identity{}, ErrIdentityNotFound
	}

	name, err := r.usage.LatestTokenName(ctx, token.ID)
	if err != nil {
		return Identity{}, err
	}
	if name == "" {
		name = token.Name
	}
	if name == "" {
		name = Placeholder(token.ID)
	}

	id := token.ID
	has, err := r.usage.HasUsage(ctx, usage.Filter{TokenID: &id})
	if err != nil {
		return Identity{}, err
	}

	return Identity{TokenID: &id, DisplayName: name, HasHistoricalUsage: has}, nil
}

// ResolveName 以名称本身作为身份；cutoff 非零时只统计 cutoff 之前的用量
func (r *Resolver) ResolveName(ctx context.Context, name string, cutoff time.Time) (Identity, error) {
	if name == "" {
		return Identity{}, ErrMissingIdentity
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	has, err := r.usage.HasUsage(ctx, usage.Filter{TokenName: name, End: cutoff})
	if err != nil {
		return Identity{}, err
	}
	return Identity{DisplayName: name, RawName: name, HasHistoricalUsage: has}, nil
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}
