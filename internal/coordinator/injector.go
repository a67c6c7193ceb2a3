package coordinator

import (
	"errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/classifier"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/segment"
	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/translation"
)

// errSegmentDetached 分段的锚点节点在回写前脱离了文档
var errSegmentDetached = errors.New("分段锚点已脱离文档")

// applyResult 把翻译结果回写到分段的归属元素：
// 注入带标记类的译文节点，并给元素打上已处理标记，
// 下一轮遍历的跳过规则据此识别输出。
// 回写前重新解析活引用，脱离的分段静默跳过。
func (c *Coordinator) applyResult(seg *segment.Segment, result *translation.Result) error {
	el := seg.Element.Resolve()
	if el == nil {
		return errSegmentDetached
	}

	span := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Span,
		Data:     "span",
		Attr: []html.Attribute{
			{Key: "class", Val: classifier.InjectedClass},
		},
	}
	span.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: " " + result.Processed,
	})

	if err := c.doc.AppendChild(el, span); err != nil {
		return err
	}

	// 合并产生的分段归属多个元素，每个都要打上标记，
	// 否则下一轮遍历会把未标记的那些重新收集
	owners := seg.Elements
	if len(owners) == 0 {
		owners = []dom.NodeRef{seg.Element}
	}
	for _, ref := range owners {
		owner := ref.Resolve()
		if owner == nil {
			continue
		}
		if err := c.doc.SetAttr(owner, classifier.ProcessedAttr, seg.Fingerprint); err != nil {
			return err
		}
	}
	return nil
}
