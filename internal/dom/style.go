package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Display 元素的显示类型
type Display int

const (
	DisplayBlock Display = iota
	DisplayInline
	DisplayNone
)

// inlineTags 默认按内联渲染的标签
var inlineTags = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true,
	"br": true, "cite": true, "code": true, "data": true, "dfn": true,
	"em": true, "i": true, "kbd": true, "mark": true, "q": true,
	"rp": true, "rt": true, "ruby": true, "s": true, "samp": true,
	"small": true, "span": true, "strong": true, "sub": true,
	"sup": true, "time": true, "u": true, "var": true, "wbr": true,
	"img": true, "label": true, "button": true, "input": true,
	"select": true, "output": true,
}

// alwaysBlockTags 无论样式如何都按块级处理的语义标签。
// 页面样式经常把结构上块级的标签改成 display:inline，
// 这些标签的分类不跟随样式。
var alwaysBlockTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "li": true, "dt": true, "dd": true,
	"td": true, "th": true, "caption": true,
	"article": true, "section": true, "aside": true, "nav": true,
	"header": true, "footer": true, "main": true, "figure": true,
	"figcaption": true, "blockquote": true, "pre": true,
}

// DisplayOf 解析元素的显示类型：
// 语义块级标签优先，其次是 style 属性里的 display，最后按标签默认值。
func DisplayOf(n *html.Node) Display {
	if n.Type != html.ElementNode {
		return DisplayInline
	}

	tag := strings.ToLower(n.Data)
	if alwaysBlockTags[tag] {
		return DisplayBlock
	}

	if disp, ok := styleDisplay(n); ok {
		switch disp {
		case "none":
			return DisplayNone
		case "inline", "inline-block", "inline-flex", "inline-grid":
			return DisplayInline
		default:
			return DisplayBlock
		}
	}

	if inlineTags[tag] {
		return DisplayInline
	}
	return DisplayBlock
}

// styleDisplay 从 style 属性解析 display 值
func styleDisplay(n *html.Node) (string, bool) {
	style := GetAttr(n, "style")
	if style == "" {
		return "", false
	}

	for _, decl := range strings.Split(style, ";") {
		parts := strings.SplitN(decl, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.TrimSpace(strings.ToLower(parts[0])) == "display" {
			return strings.TrimSpace(strings.ToLower(parts[1])), true
		}
	}
	return "", false
}

// GetAttr 读取元素属性值，不存在时返回空字符串
func GetAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasClass 判断元素 class 属性是否包含指定类名
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(GetAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// IsHidden 判断元素是否对用户不可见：
// display:none、hidden 属性或 aria-hidden="true"。
func IsHidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if disp, ok := styleDisplay(n); ok && disp == "none" {
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "hidden" {
			return true
		}
		if a.Key == "aria-hidden" && strings.EqualFold(a.Val, "true") {
			return true
		}
	}
	return false
}
