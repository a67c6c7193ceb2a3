package segment

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// boundaryPattern 句子/子句边界。西文标点要求后跟空白或行尾，
// CJK 全角标点本身就是边界，句间没有空格。
// 负向后顾排除常见缩写的句点，避免在 e.g. / Dr. 之类的位置断句。
var boundaryPattern = regexp2.MustCompile(
	`(?<!\b(?:e\.g|i\.e|etc|vs|Mr|Mrs|Ms|Dr|Prof|St)\.?)(?:[.!?;](?=\s|$)|[。！？；])`, 0)

// findBoundaries 返回文本中所有边界位置（rune 下标，指向边界符之后）
func findBoundaries(runes []rune) []int {
	var boundaries []int

	m, err := boundaryPattern.FindRunesMatch(runes)
	for err == nil && m != nil {
		boundaries = append(boundaries, m.Index+m.Length)
		m, err = boundaryPattern.FindNextMatch(m)
	}
	return boundaries
}

// splitAtBoundary 把超长文本在智能边界处切分，每块不超过 maxLen。
// 窗口内没有句子边界时退化为最近的空格；连空格都没有的单个巨型
// 词不再强行切断，允许越界。
func splitAtBoundary(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	boundaries := findBoundaries(runes)
	var parts []string
	start := 0

	for len(runes)-start > maxLen {
		cut := -1

		// 取窗口内最靠后的句子边界
		for _, b := range boundaries {
			if b > start && b <= start+maxLen {
				cut = b
			}
		}

		// 退化为窗口内最后一个空格
		if cut < 0 {
			for i := start + maxLen; i > start; i-- {
				if runes[i-1] == ' ' {
					cut = i
					break
				}
			}
		}

		// 单个巨型词：吞到下一个空格或文本结尾
		if cut < 0 {
			cut = start + maxLen
			for cut < len(runes) && runes[cut] != ' ' {
				cut++
			}
		}

		part := strings.TrimSpace(string(runes[start:cut]))
		if part != "" {
			parts = append(parts, part)
		}
		start = cut
	}

	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
