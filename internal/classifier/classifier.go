// Package classifier 实现对文档树的单遍递归分类，
// 把每个元素标记为 skip / atomic-inline / block / inline / paragraph，
// 并提取作为翻译单元的"段落"。
package classifier

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
)

// Label 遍历过程中赋予节点的瞬时标签。
// 标签保存在每轮遍历私有的旁路映射中，遍历结束即丢弃，
// 从不写入文档树本身。
type Label int

const (
	LabelNone Label = iota
	LabelSkip
	LabelAtomicInline
	LabelBlock
	LabelInline
	LabelParagraph
)

// String 返回标签名称
func (l Label) String() string {
	switch l {
	case LabelSkip:
		return "skip"
	case LabelAtomicInline:
		return "atomic-inline"
	case LabelBlock:
		return "block"
	case LabelInline:
		return "inline"
	case LabelParagraph:
		return "paragraph"
	default:
		return "none"
	}
}

// Paragraph 一个段落级翻译单元：内联内容连续段的最低块级祖先
type Paragraph struct {
	Element   *html.Node   // 段落元素
	Text      string       // 提取出的文本
	TextNodes []*html.Node // 构成段落的文本节点
}

// ProcessedAttr 标记已处理节点的属性，带该属性的子树整体跳过
const ProcessedAttr = "data-illa-processed"

// InjectedClass 标记注入输出的类名，带该类的子树整体跳过。
// 注入器产生的节点必须带上它，否则系统会反复翻译自己的输出。
const InjectedClass = "illa-translation"

// skipTags 整个子树都不参与遍历的标签
var skipTags = map[string]bool{
	"script": true, "style": true, "meta": true, "link": true,
	"noscript": true, "iframe": true, "object": true, "embed": true,
	"canvas": true, "svg": true, "math": true, "template": true,
	"textarea": true, "select": true, "option": true, "title": true,
}

// atomicInlineTags 不再深入、文本整体并入父级的内联标签
var atomicInlineTags = map[string]bool{
	"code": true, "time": true, "abbr": true, "kbd": true,
	"samp": true, "var": true,
}

// minParagraphLength 短于该长度（去除空白后）的段落按噪声丢弃
const minParagraphLength = 2

// walkSeq 全局遍历序号，同一轮遍历内的节点不会被重复访问
var walkSeq atomic.Uint64

// Walker 文档树分类器
type Walker struct {
	logger *zap.Logger
}

// NewWalker 创建分类器
func NewWalker(logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{logger: logger}
}

// pass 一轮遍历的私有状态。labels 兼作访问守卫：
// 已在本轮标注过的节点不会被二次进入，即使同一轮内发生重入调用。
type pass struct {
	walkID uint64
	labels map[*html.Node]Label
}

// Classify 对 root 子树做一遍分类并返回标签视图。
// 返回的映射只在本轮有效，调用方用完即弃，文档树不携带任何标注。
func (w *Walker) Classify(root *html.Node) (labels map[*html.Node]Label) {
	p := &pass{
		walkID: walkSeq.Add(1),
		labels: make(map[*html.Node]Label),
	}

	defer func() {
		if r := recover(); r != nil {
			// 分类过程不允许把故障抛给宿主，标签映射原样返回
			w.logger.Error("分类遍历异常中断",
				zap.Uint64("walkID", p.walkID),
				zap.Any("panic", r))
			labels = p.labels
		}
	}()

	w.classifyNode(p, root)
	return p.labels
}

// CollectParagraphs 分类 root 子树并收集叶子段落
func (w *Walker) CollectParagraphs(root *html.Node) []Paragraph {
	var paragraphs []Paragraph

	labels := w.Classify(root)

	for n, label := range labels {
		if label != LabelParagraph {
			continue
		}
		text, textNodes := w.extractText(labels, n)
		if len([]rune(strings.TrimSpace(text))) < minParagraphLength {
			continue
		}
		paragraphs = append(paragraphs, Paragraph{
			Element:   n,
			Text:      text,
			TextNodes: textNodes,
		})
	}

	paragraphs = filterLeafParagraphs(paragraphs)

	// 标签映射随 pass 废弃，按文档序返回结果
	sortParagraphs(paragraphs)

	w.logger.Debug("段落收集完成",
		zap.Int("paragraphs", len(paragraphs)),
		zap.Int("labeledNodes", len(labels)))

	return paragraphs
}

// classifyNode 深度优先分类单个节点
func (w *Walker) classifyNode(p *pass, n *html.Node) Label {
	if n == nil {
		return LabelNone
	}

	// 同一轮遍历的守卫：已标注的节点直接复用结果
	if label, ok := p.labels[n]; ok {
		return label
	}

	if n.Type == html.DocumentNode {
		label := LabelBlock
		p.labels[n] = label
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.classifyNode(p, c)
		}
		return label
	}

	if n.Type != html.ElementNode {
		return LabelNone
	}

	if w.shouldSkip(n) {
		p.labels[n] = LabelSkip
		return LabelSkip
	}

	tag := strings.ToLower(n.Data)
	if atomicInlineTags[tag] {
		p.labels[n] = LabelAtomicInline
		return LabelAtomicInline
	}

	// 先递归子元素，段落判定依赖子节点的分类结果
	hasInlineChild := false
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				hasInlineChild = true
			}
		case html.ElementNode:
			childLabel := w.classifyNode(p, c)
			if childLabel == LabelInline || childLabel == LabelAtomicInline {
				hasInlineChild = true
			}
		}
	}

	var label Label
	switch {
	case dom.DisplayOf(n) == dom.DisplayInline:
		// 内联元素自身不成段，文本归属最近的块级祖先
		label = LabelInline
	case hasInlineChild:
		// 内联内容连续段的最低块级祖先即段落
		label = LabelParagraph
	default:
		label = LabelBlock
	}

	p.labels[n] = label
	return label
}

// shouldSkip 判断子树是否整体跳过
func (w *Walker) shouldSkip(n *html.Node) bool {
	tag := strings.ToLower(n.Data)
	if skipTags[tag] {
		return true
	}
	if dom.IsHidden(n) {
		return true
	}
	if v := dom.GetAttr(n, "contenteditable"); v != "" && !strings.EqualFold(v, "false") {
		return true
	}
	if strings.EqualFold(dom.GetAttr(n, "translate"), "no") {
		return true
	}
	if dom.GetAttr(n, ProcessedAttr) != "" {
		return true
	}
	if dom.HasClass(n, InjectedClass) {
		return true
	}
	return false
}

// extractText 提取段落文本及其文本节点。
// 内联边界处保留单个首尾空格，换行折叠为空格，<br> 译作换行。
func (w *Walker) extractText(labels map[*html.Node]Label, n *html.Node) (string, []*html.Node) {
	var sb strings.Builder
	var textNodes []*html.Node

	var walk func(cur *html.Node)
	walk = func(cur *html.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(collapseWhitespace(c.Data))
				if strings.TrimSpace(c.Data) != "" {
					textNodes = append(textNodes, c)
				}
			case html.ElementNode:
				tag := strings.ToLower(c.Data)
				if tag == "br" {
					sb.WriteString("\n")
					continue
				}
				switch labels[c] {
				case LabelAtomicInline:
					// 原子内联的文本整体并入，不记录其内部文本节点
					sb.WriteString(collapseWhitespace(dom.ElementText(c)))
				case LabelInline:
					walk(c)
				}
				// block / paragraph / skip 子树不属于本段落
			}
		}
	}
	walk(n)

	return normalizeRuns(sb.String()), textNodes
}

// collapseWhitespace 把空白串折叠为单个空格，保留首尾空白的存在性
func collapseWhitespace(s string) string {
	if s == "" {
		return ""
	}
	leading := s[0] == ' ' || s[0] == '\t' || s[0] == '\n' || s[0] == '\r'
	trailing := s[len(s)-1] == ' ' || s[len(s)-1] == '\t' || s[len(s)-1] == '\n' || s[len(s)-1] == '\r'

	fields := strings.Fields(s)
	out := strings.Join(fields, " ")
	if out == "" {
		if leading || trailing {
			return " "
		}
		return ""
	}
	if leading {
		out = " " + out
	}
	if trailing {
		out = out + " "
	}
	return out
}

// normalizeRuns 折叠重复空格但保留 <br> 产生的换行
func normalizeRuns(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		lead := strings.HasPrefix(line, " ")
		trail := strings.HasSuffix(line, " ")
		line = strings.Join(fields, " ")
		if lead && line != "" {
			line = " " + line
		}
		if trail && line != "" {
			line = line + " "
		}
		lines[i] = line
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// filterLeafParagraphs 只保留叶子段落：
// 嵌套段落中块级后代优先作为翻译单元，祖先段落被放弃。
func filterLeafParagraphs(paragraphs []Paragraph) []Paragraph {
	var result []Paragraph
	for _, p := range paragraphs {
		dropped := false
		for _, other := range paragraphs {
			if other.Element == p.Element {
				continue
			}
			if dom.IsAncestor(p.Element, other.Element) && dom.DisplayOf(other.Element) == dom.DisplayBlock {
				dropped = true
				break
			}
		}
		if !dropped {
			result = append(result, p)
		}
	}
	return result
}

// sortParagraphs 按文档序排序段落
func sortParagraphs(paragraphs []Paragraph) {
	for i := 1; i < len(paragraphs); i++ {
		for j := i; j > 0 && dom.CompareOrder(paragraphs[j-1].Element, paragraphs[j].Element) > 0; j-- {
			paragraphs[j-1], paragraphs[j] = paragraphs[j], paragraphs[j-1]
		}
	}
}
