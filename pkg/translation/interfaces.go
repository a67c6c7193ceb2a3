package translation

import "context"

// Translator 外部翻译协作方。核心把它当作不透明的异步函数：
// 失败按普通错误记录并跳过当前分段，核心自身不做重试。
type Translator interface {
	// Translate 翻译一段文本
	Translate(ctx context.Context, text string) (*Result, error)

	// GetName 获取提供商名称
	GetName() string
}
