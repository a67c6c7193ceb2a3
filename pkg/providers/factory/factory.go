// Package factory 按名称创建翻译提供商。
package factory

import (
	"os"

	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/providers"
	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/providers/openai"
	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/providers/raw"
	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/translation"
)

// Options 提供商创建参数
type Options struct {
	Model       string
	APIKey      string
	BaseURL     string
	TargetLang  string
	Temperature float32
}

// New 按名称创建提供商。空名称等同于 raw。
func New(name string, opts Options) (translation.Translator, error) {
	switch name {
	case "", "raw":
		return raw.New(), nil
	case "openai":
		cfg := openai.DefaultConfig()
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		cfg.APIKey = opts.APIKey
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		cfg.APIEndpoint = opts.BaseURL
		if opts.TargetLang != "" {
			cfg.TargetLanguage = opts.TargetLang
		}
		if opts.Temperature > 0 {
			cfg.Temperature = opts.Temperature
		}
		return openai.New(cfg), nil
	default:
		return nil, &providers.ErrUnknownProvider{Name: name}
	}
}
