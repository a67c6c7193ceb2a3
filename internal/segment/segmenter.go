// Package segment 把分类器产出的段落加工成长度受控的内容分段，
// 超长的在句子边界拆开，过小的与相邻分段合并。
package segment

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/classifier"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
)

// Config 分段配置
type Config struct {
	MaxSegmentLength    int  // 单个分段的最大字符数
	MinSegmentLength    int  // 低于该长度的分段视为过小
	EnableSmartBoundary bool // 在句子边界处分割超长分段
	MergeSmallSegments  bool // 合并相邻的过小分段
}

// DefaultConfig 默认分段配置
func DefaultConfig() Config {
	return Config{
		MaxSegmentLength:    400,
		MinSegmentLength:    20,
		EnableSmartBoundary: true,
		MergeSmallSegments:  true,
	}
}

// Segment 一个有界翻译单元及其 DOM 锚点。
// 所有节点引用都是非持有引用，消费方改写 DOM 前必须重新 Resolve。
type Segment struct {
	ID          string        // 分段标识
	Text        string        // 分段文本
	Element     dom.NodeRef   // 归属元素
	Elements    []dom.NodeRef // 合并分段时的全部归属元素
	TextNodes   []dom.NodeRef // 构成分段的文本节点
	Fingerprint string        // 文本+路径指纹
	DOMPath     string        // 归属元素的结构路径
}

// Length 返回分段文本的字符数
func (s *Segment) Length() int {
	return utf8.RuneCountInString(s.Text)
}

// Segmenter 内容分段器
type Segmenter struct {
	cfg    Config
	walker *classifier.Walker
	logger *zap.Logger
}

// NewSegmenter 创建分段器
func NewSegmenter(cfg Config, logger *zap.Logger) *Segmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSegmentLength <= 0 {
		cfg.MaxSegmentLength = 400
	}
	return &Segmenter{
		cfg:    cfg,
		walker: classifier.NewWalker(logger),
		logger: logger,
	}
}

// SegmentContent 对 root 子树走完整的分类→分段流程
func (s *Segmenter) SegmentContent(doc *dom.Document, root *html.Node) []Segment {
	paragraphs := s.walker.CollectParagraphs(root)

	var segments []Segment
	for _, p := range paragraphs {
		segments = append(segments, s.segmentsFromParagraph(doc, p)...)
	}

	if s.cfg.MergeSmallSegments {
		segments = s.MergeSmallSegments(segments)
	}

	s.logger.Debug("内容分段完成",
		zap.Int("paragraphs", len(paragraphs)),
		zap.Int("segments", len(segments)))

	return segments
}

// ExtractSegmentsFromContainer 只处理单个容器节点，不做小段合并
func (s *Segmenter) ExtractSegmentsFromContainer(doc *dom.Document, node *html.Node) []Segment {
	paragraphs := s.walker.CollectParagraphs(node)

	var segments []Segment
	for _, p := range paragraphs {
		segments = append(segments, s.segmentsFromParagraph(doc, p)...)
	}
	return segments
}

// segmentsFromParagraph 把一个段落转成一个或多个分段
func (s *Segmenter) segmentsFromParagraph(doc *dom.Document, p classifier.Paragraph) []Segment {
	path := dom.Path(p.Element)

	texts := []string{p.Text}
	if s.cfg.EnableSmartBoundary && utf8.RuneCountInString(p.Text) > s.cfg.MaxSegmentLength {
		texts = splitAtBoundary(p.Text, s.cfg.MaxSegmentLength)
	}

	textRefs := make([]dom.NodeRef, 0, len(p.TextNodes))
	for _, tn := range p.TextNodes {
		textRefs = append(textRefs, doc.Ref(tn))
	}

	segments := make([]Segment, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		elRef := doc.Ref(p.Element)
		segments = append(segments, Segment{
			ID:          uuid.NewString(),
			Text:        text,
			Element:     elRef,
			Elements:    []dom.NodeRef{elRef},
			TextNodes:   textRefs,
			Fingerprint: Fingerprint(text, path),
			DOMPath:     path,
		})
	}
	return segments
}

// MergeSmallSegments 把过小的分段并入相邻分段，
// 避免为零碎文本发起大量昂贵的翻译调用。
// 合并后不会产生超过最大长度的分段，也不会留下两个相邻的过小分段。
func (s *Segmenter) MergeSmallSegments(segments []Segment) []Segment {
	if len(segments) < 2 || s.cfg.MinSegmentLength <= 0 {
		return segments
	}

	var result []Segment
	for _, seg := range segments {
		if len(result) == 0 {
			result = append(result, seg)
			continue
		}

		prev := &result[len(result)-1]
		eitherSmall := prev.Length() < s.cfg.MinSegmentLength || seg.Length() < s.cfg.MinSegmentLength
		fits := prev.Length()+seg.Length()+1 <= s.cfg.MaxSegmentLength

		if eitherSmall && fits {
			merged := s.merge(*prev, seg)
			result[len(result)-1] = merged
			continue
		}
		result = append(result, seg)
	}
	return result
}

// merge 合并两个相邻分段，指纹按合并后的文本重新计算
func (s *Segmenter) merge(a, b Segment) Segment {
	text := strings.TrimSpace(a.Text + " " + b.Text)
	return Segment{
		ID:          a.ID,
		Text:        text,
		Element:     a.Element,
		Elements:    append(append([]dom.NodeRef{}, a.Elements...), b.Elements...),
		TextNodes:   append(append([]dom.NodeRef{}, a.TextNodes...), b.TextNodes...),
		Fingerprint: Fingerprint(text, a.DOMPath),
		DOMPath:     a.DOMPath,
	}
}
