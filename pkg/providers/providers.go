// Package providers 定义翻译提供商的公共配置与工厂。
package providers

import (
	"fmt"
	"time"
)

// BaseConfig 所有提供商共享的基础配置
type BaseConfig struct {
	APIKey      string        `json:"api_key"`
	APIEndpoint string        `json:"api_endpoint"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultConfig 返回默认基础配置
func DefaultConfig() BaseConfig {
	return BaseConfig{
		Timeout: 30 * time.Second,
	}
}

// ErrUnknownProvider 请求了未注册的提供商名称
type ErrUnknownProvider struct {
	Name string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown provider: %s", e.Name)
}
