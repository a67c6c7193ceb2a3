package translation

// Replacement 原文中一处被翻译覆盖的片段
type Replacement struct {
	// Original 原文片段
	Original string `json:"original"`

	// Translation 对应译文
	Translation string `json:"translation"`

	// Position 片段在原文中的位置
	Position int `json:"position"`

	// IsNew 是否是本次新产生的译文（而非缓存回放）
	IsNew bool `json:"isNew"`
}

// Result 一次翻译调用的结果
type Result struct {
	// Original 提交的原文
	Original string `json:"original"`

	// Processed 处理后的完整文本
	Processed string `json:"processed"`

	// Replacements 逐片段的替换明细
	Replacements []Replacement `json:"replacements"`
}

// Clone 深拷贝结果，缓存读取方不得共享内部切片
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{
		Original:  r.Original,
		Processed: r.Processed,
	}
	if len(r.Replacements) > 0 {
		out.Replacements = make([]Replacement, len(r.Replacements))
		copy(out.Replacements, r.Replacements)
	}
	return out
}
