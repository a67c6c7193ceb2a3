// Package raw 实现直通提供商：不做任何翻译，原文原样返回。
// 用于流水线调试与缓存、注入路径的独立验证。
package raw

import (
	"context"

	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/translation"
)

// Provider Raw 提供商（跳过翻译，直接返回原文）
type Provider struct{}

// New 创建新的 Raw 提供商
func New() *Provider {
	return &Provider{}
}

// Translate 执行翻译（直接返回原文，不产生任何替换）
func (p *Provider) Translate(ctx context.Context, text string) (*translation.Result, error) {
	return &translation.Result{
		Original:  text,
		Processed: text,
	}, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "raw"
}
