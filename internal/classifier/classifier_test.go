package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
)

func loadDoc(t *testing.T, body string) *dom.Document {
	t.Helper()
	doc, err := dom.LoadString("<html><head><title>t</title></head><body>"+body+"</body></html>",
		"https://example.com/")
	require.NoError(t, err)
	return doc
}

func collect(t *testing.T, body string) []Paragraph {
	t.Helper()
	doc := loadDoc(t, body)
	w := NewWalker(zaptest.NewLogger(t))
	return w.CollectParagraphs(doc.Body())
}

func TestClassify(t *testing.T) {
	t.Run("paragraph is lowest block with inline content", func(t *testing.T) {
		doc := loadDoc(t, `<div id="wrap"><p id="p1">Hello <b>world</b></p></div>`)
		w := NewWalker(zaptest.NewLogger(t))

		labels := w.Classify(doc.Body())

		p1 := doc.Find("#p1")[0]
		wrap := doc.Find("#wrap")[0]
		b := doc.Find("b")[0]
		assert.Equal(t, LabelParagraph, labels[p1])
		assert.Equal(t, LabelBlock, labels[wrap])
		assert.Equal(t, LabelInline, labels[b])
	})

	t.Run("skip subtrees", func(t *testing.T) {
		doc := loadDoc(t, `
			<script id="s">var x = 1;</script>
			<div id="hidden" style="display:none">invisible text</div>
			<div id="edit" contenteditable="true">editable text</div>
			<div id="notrans" translate="no">keep as is</div>`)
		w := NewWalker(zaptest.NewLogger(t))

		labels := w.Classify(doc.Body())

		for _, id := range []string{"#s", "#hidden", "#edit", "#notrans"} {
			nodes := doc.Find(id)
			require.Len(t, nodes, 1, id)
			assert.Equal(t, LabelSkip, labels[nodes[0]], id)
		}
	})

	t.Run("atomic inline not descended", func(t *testing.T) {
		doc := loadDoc(t, `<p>run <code id="c">go <b>test</b></code> now</p>`)
		w := NewWalker(zaptest.NewLogger(t))

		labels := w.Classify(doc.Body())

		c := doc.Find("#c")[0]
		assert.Equal(t, LabelAtomicInline, labels[c])
		// code 内部的 b 不被单独分类
		b := doc.Find("#c b")[0]
		assert.Equal(t, LabelNone, labels[b])
	})
}

func TestCollectParagraphs(t *testing.T) {
	t.Run("simple paragraphs in document order", func(t *testing.T) {
		paras := collect(t, `<p>First paragraph text.</p><p>Second paragraph text.</p>`)

		require.Len(t, paras, 2)
		assert.Equal(t, "First paragraph text.", paras[0].Text)
		assert.Equal(t, "Second paragraph text.", paras[1].Text)
	})

	t.Run("inline markup folded into paragraph text", func(t *testing.T) {
		paras := collect(t, `<p>Hello <b>brave</b> new <i>world</i>!</p>`)

		require.Len(t, paras, 1)
		assert.Equal(t, "Hello brave new world!", paras[0].Text)
		// 文本节点逐个登记，供替换时回写
		assert.Len(t, paras[0].TextNodes, 5)
	})

	t.Run("atomic inline folded as whole", func(t *testing.T) {
		paras := collect(t, `<p>Run <code>go build ./...</code> first.</p>`)

		require.Len(t, paras, 1)
		assert.Equal(t, "Run go build ./... first.", paras[0].Text)
	})

	t.Run("br becomes newline", func(t *testing.T) {
		paras := collect(t, `<p>line one<br>line two</p>`)

		require.Len(t, paras, 1)
		assert.Equal(t, "line one\nline two", paras[0].Text)
	})

	t.Run("nested block splits paragraphs", func(t *testing.T) {
		// div 同时有直接文本和块级子元素：叶子块优先，祖先段落被放弃
		paras := collect(t, `<div>outer text here<p>inner paragraph text</p></div>`)

		texts := make([]string, 0, len(paras))
		for _, p := range paras {
			texts = append(texts, p.Text)
		}
		assert.Contains(t, texts, "inner paragraph text")
		assert.NotContains(t, texts, "outer text here inner paragraph text")
	})

	t.Run("too short paragraphs dropped", func(t *testing.T) {
		paras := collect(t, `<p>x</p><p>long enough text</p>`)

		require.Len(t, paras, 1)
		assert.Equal(t, "long enough text", paras[0].Text)
	})

	t.Run("processed and injected content not re-collected", func(t *testing.T) {
		paras := collect(t, `
			<p `+ProcessedAttr+`="abc123">already processed text</p>
			<span class="`+InjectedClass+`">injected translation text</span>
			<p>fresh paragraph text</p>`)

		require.Len(t, paras, 1)
		assert.Equal(t, "fresh paragraph text", paras[0].Text)
	})

	t.Run("whitespace collapsed but boundaries kept", func(t *testing.T) {
		paras := collect(t, "<p>spread\n\t  over   lines <em>and\nmarkup</em></p>")

		require.Len(t, paras, 1)
		assert.Equal(t, "spread over lines and markup", paras[0].Text)
	})
}

func TestClassifyPanicRecovery(t *testing.T) {
	// 构造一个 Parent 指针断裂的树：IsHidden 等检查不会触发，
	// 但分类过程无论内部发生什么都不能把 panic 抛给调用方
	w := NewWalker(zaptest.NewLogger(t))
	labels := w.Classify(nil)
	assert.NotNil(t, labels)
	assert.Empty(t, labels)

	orphan := &html.Node{Type: html.ElementNode, Data: "div"}
	labels = w.Classify(orphan)
	assert.NotNil(t, labels)
}
