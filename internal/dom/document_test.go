package dom

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const testPage = `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
  <div id="main">
    <p>First paragraph.</p>
    <p>Second paragraph.</p>
  </div>
  <div id="side"><span>aside</span></div>
</body>
</html>`

func loadTestDoc(t *testing.T) *Document {
	t.Helper()
	doc, err := LoadString(testPage, "https://example.com/page")
	require.NoError(t, err)
	return doc
}

func newTextNode(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

func newElement(tag string, a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: tag}
}

func TestLoad(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		doc := loadTestDoc(t)
		assert.NotNil(t, doc.Body())
		assert.Equal(t, "Test Page", doc.Title())
		assert.Equal(t, "https://example.com/page", doc.URL())
	})

	t.Run("find by selector", func(t *testing.T) {
		doc := loadTestDoc(t)
		ps := doc.Find("#main p")
		assert.Len(t, ps, 2)
	})
}

func TestMutations(t *testing.T) {
	t.Run("append child emits record", func(t *testing.T) {
		doc := loadTestDoc(t)
		main := doc.Find("#main")[0]

		sub, err := doc.Subscribe(doc.Body())
		require.NoError(t, err)
		defer sub.Close()

		p := newElement("p", atom.P)
		p.AppendChild(newTextNode("Third paragraph."))
		require.NoError(t, doc.AppendChild(main, p))

		rec := <-sub.C
		assert.Equal(t, RecordChildList, rec.Type)
		assert.Equal(t, main, rec.Target)
		require.Len(t, rec.AddedNodes, 1)
		assert.Equal(t, p, rec.AddedNodes[0])
	})

	t.Run("set text emits old value", func(t *testing.T) {
		doc := loadTestDoc(t)
		p := doc.Find("#main p")[0]
		textNode := p.FirstChild

		sub, err := doc.Subscribe(doc.Body())
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, doc.SetText(textNode, "Changed."))

		rec := <-sub.C
		assert.Equal(t, RecordCharacterData, rec.Type)
		assert.Equal(t, "First paragraph.", rec.OldValue)
		assert.Equal(t, "Changed.", textNode.Data)
	})

	t.Run("subscription scoped to subtree", func(t *testing.T) {
		doc := loadTestDoc(t)
		side := doc.Find("#side")[0]

		// 只订阅 #side 子树
		sub, err := doc.Subscribe(side)
		require.NoError(t, err)
		defer sub.Close()

		main := doc.Find("#main")[0]
		require.NoError(t, doc.AppendChild(main, newElement("p", atom.P)))

		select {
		case rec := <-sub.C:
			t.Fatalf("unexpected record for out-of-scope mutation: %+v", rec)
		default:
		}

		require.NoError(t, doc.AppendChild(side, newElement("span", atom.Span)))
		rec := <-sub.C
		assert.Equal(t, side, rec.Target)
	})

	t.Run("subscribe detached target fails", func(t *testing.T) {
		doc := loadTestDoc(t)
		side := doc.Find("#side")[0]
		require.NoError(t, doc.RemoveChild(side.Parent, side))

		_, err := doc.Subscribe(side)
		assert.Error(t, err)
	})

	t.Run("replace children reports removed and added", func(t *testing.T) {
		doc := loadTestDoc(t)
		main := doc.Find("#main")[0]

		sub, err := doc.Subscribe(main)
		require.NoError(t, err)
		defer sub.Close()

		fresh := newElement("p", atom.P)
		fresh.AppendChild(newTextNode("new content"))
		require.NoError(t, doc.ReplaceChildren(main, fresh))

		rec := <-sub.C
		assert.Equal(t, RecordChildList, rec.Type)
		assert.Len(t, rec.AddedNodes, 1)
		assert.NotEmpty(t, rec.RemovedNodes)
		assert.False(t, doc.Contains(rec.RemovedNodes[0]))
	})

	t.Run("set attr records attribute name", func(t *testing.T) {
		doc := loadTestDoc(t)
		main := doc.Find("#main")[0]

		sub, err := doc.Subscribe(main)
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, doc.SetAttr(main, "data-state", "ready"))

		rec := <-sub.C
		assert.Equal(t, RecordAttributes, rec.Type)
		assert.Equal(t, "data-state", rec.AttributeName)
		assert.Equal(t, "ready", GetAttr(main, "data-state"))
	})
}

func TestNavigation(t *testing.T) {
	t.Run("push state emits nav event", func(t *testing.T) {
		doc := loadTestDoc(t)
		sub := doc.SubscribeNavigation()
		defer sub.Close()

		doc.PushState("https://example.com/other")

		ev := <-sub.C
		assert.Equal(t, NavPushState, ev.Kind)
		assert.Equal(t, "https://example.com/other", ev.URL)
		assert.Equal(t, "https://example.com/other", doc.URL())
	})

	t.Run("set hash keeps path", func(t *testing.T) {
		doc := loadTestDoc(t)
		sub := doc.SubscribeNavigation()
		defer sub.Close()

		doc.SetHash("section-2")

		ev := <-sub.C
		assert.Equal(t, NavHashChange, ev.Kind)
		assert.Equal(t, "https://example.com/page#section-2", doc.URL())
	})

	t.Run("set title also mutates title element", func(t *testing.T) {
		doc := loadTestDoc(t)
		mutSub, err := doc.Subscribe(doc.Root())
		require.NoError(t, err)
		defer mutSub.Close()
		navSub := doc.SubscribeNavigation()
		defer navSub.Close()

		doc.SetTitle("New Title")

		assert.Equal(t, "New Title", doc.Title())
		ev := <-navSub.C
		assert.Equal(t, NavTitleChange, ev.Kind)
		rec := <-mutSub.C
		assert.Equal(t, RecordCharacterData, rec.Type)
	})

	t.Run("silent url change emits nothing", func(t *testing.T) {
		doc := loadTestDoc(t)
		sub := doc.SubscribeNavigation()
		defer sub.Close()

		doc.SetURLSilently("https://example.com/silent")

		select {
		case ev := <-sub.C:
			t.Fatalf("unexpected nav event: %+v", ev)
		default:
		}
		assert.Equal(t, "https://example.com/silent", doc.URL())
	})
}

func TestSamePath(t *testing.T) {
	assert.True(t, SamePath("https://a.com/x?q=1", "https://a.com/x?q=2"))
	assert.True(t, SamePath("https://a.com/x#top", "https://a.com/x#bottom"))
	assert.False(t, SamePath("https://a.com/x", "https://a.com/y"))
	assert.False(t, SamePath("https://a.com/x", "https://b.com/x"))
}

func TestNodeRef(t *testing.T) {
	doc := loadTestDoc(t)
	p := doc.Find("#main p")[0]
	ref := doc.Ref(p)

	assert.Equal(t, p, ref.Resolve())
	assert.True(t, ref.IsConnected())

	// 移除后引用解析为 nil
	require.NoError(t, doc.RemoveChild(p.Parent, p))
	assert.Nil(t, ref.Resolve())
	assert.False(t, ref.IsConnected())
}

func TestRender(t *testing.T) {
	doc := loadTestDoc(t)
	main := doc.Find("#main")[0]
	p := newElement("p", atom.P)
	p.AppendChild(newTextNode("rendered"))
	require.NoError(t, doc.AppendChild(main, p))

	var sb strings.Builder
	require.NoError(t, doc.Render(&sb))
	assert.Contains(t, sb.String(), "<p>rendered</p>")
}

func TestConcurrentReadWrite(t *testing.T) {
	doc := loadTestDoc(t)
	main := doc.Find("#main")[0]
	side := doc.Find("#side")[0]

	// 写入方模拟 watch 模式的脚本回放，读取方模拟
	// 观察循环分发批次时的树遍历；-race 下不得报告竞争
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 300; i++ {
			p := newElement("p", atom.P)
			p.AppendChild(newTextNode("appended text"))
			assert.NoError(t, doc.AppendChild(main, p))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			_ = doc.Contains(side)
			_ = doc.Find("#main p")
			doc.ReadLocked(func() {
				_ = ElementText(main)
				_ = TopmostNodes([]*html.Node{main, side})
			})
		}
	}()

	wg.Wait()
	assert.GreaterOrEqual(t, len(doc.Find("#main p")), 302)
}
