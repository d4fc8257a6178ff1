package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// CatalogClient models.dev 公共模型目录客户端
type CatalogClient struct {
	url        string
	httpClient *http.Client
}

// NewCatalogClient 创建目录客户端
func NewCatalogClient(url string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type catalogProvider struct {
	Models map[string]catalogModel `json:"models"`
}

type catalogModel struct {
	Cost *struct {
		Input  *float64 `json:"input"`
		Output *float64 `json:"output"`
	} `json:"cost"`
}

// Fetch 拉取目录并展开为价格文档
func (c *CatalogClient) Fetch(ctx context.Context) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求模型目录失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("模型目录返回错误状态码 %d: %s", resp.StatusCode, string(body))
	}

	var providers map[string]catalogProvider
	if err := json.NewDecoder(resp.Body).Decode(&providers); err != nil {
		return nil, fmt.Errorf("解析模型目录失败: %w", err)
	}
	return flattenCatalog(providers), nil
}

// flattenCatalog 按 provider 名称升序展开，同名模型以后出现者为准；缺失的一侧按 0 处理
func flattenCatalog(providers map[string]catalogProvider) Document {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := Document{}
	for _, name := range names {
		for id, model := range providers[name].Models {
			if model.Cost == nil || (model.Cost.Input == nil && model.Cost.Output == nil) {
				continue
			}
			var p Price
			if model.Cost.Input != nil {
				p.Input = *model.Cost.Input
			}
			if model.Cost.Output != nil {
				p.Output = *model.Cost.Output
			}
			doc[id] = p
		}
	}
	return doc
}
