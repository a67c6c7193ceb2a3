// Package openai 基于 OpenAI Chat Completions 接口实现翻译提供商。
package openai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/providers"
	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/translation"
)

// Config OpenAI 配置
type Config struct {
	providers.BaseConfig
	Model          string  `json:"model"`
	Temperature    float32 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TargetLanguage string  `json:"target_language"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseConfig:     providers.DefaultConfig(),
		Model:          goopenai.GPT3Dot5Turbo,
		Temperature:    0.3,
		MaxTokens:      4096,
		TargetLanguage: "Chinese",
	}
}

// Provider OpenAI 提供商
type Provider struct {
	config Config
	client *goopenai.Client
}

// New 创建新的 OpenAI 提供商
func New(config Config) *Provider {
	clientCfg := goopenai.DefaultConfig(config.APIKey)
	if config.APIEndpoint != "" {
		clientCfg.BaseURL = config.APIEndpoint
	}

	return &Provider{
		config: config,
		client: goopenai.NewClientWithConfig(clientCfg),
	}
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, text string) (*translation.Result, error) {
	req := goopenai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: "You are a professional translator. Translate accurately while preserving the original meaning and tone. Output only the translation.",
			},
			{
				Role: goopenai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Translate the following text to %s:\n\n%s",
					p.config.TargetLanguage, text),
			},
		},
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai translation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned empty response")
	}

	processed := strings.TrimSpace(resp.Choices[0].Message.Content)

	return &translation.Result{
		Original:  text,
		Processed: processed,
		Replacements: []translation.Replacement{
			{
				Original:    text,
				Translation: processed,
				Position:    0,
				IsNew:       true,
			},
		},
	}, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "openai"
}
