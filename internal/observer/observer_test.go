package observer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/classifier"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
)

// batchRecorder 线程安全地记录 handler 收到的批次
type batchRecorder struct {
	mu      sync.Mutex
	batches [][]*html.Node
}

func (r *batchRecorder) handler(ctx context.Context, roots []*html.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := make([]*html.Node, len(roots))
	copy(batch, roots)
	r.batches = append(r.batches, batch)
	return nil
}

func (r *batchRecorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *batchRecorder) totalRoots() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func (r *batchRecorder) maxBatchSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := 0
	for _, b := range r.batches {
		if len(b) > m {
			m = len(b)
		}
	}
	return m
}

func loadDoc(t *testing.T, body string) *dom.Document {
	t.Helper()
	doc, err := dom.LoadString("<html><head><title>t</title></head><body>"+body+"</body></html>",
		"https://example.com/page")
	require.NoError(t, err)
	return doc
}

// fastConfig 毫秒级延迟的测试配置
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.DebounceBase = 20 * time.Millisecond
	cfg.DebounceMax = 60 * time.Millisecond
	cfg.NavigationDebounce = 20 * time.Millisecond
	cfg.ReconnectBackoff = 10 * time.Millisecond
	cfg.URLPollInterval = 0
	return cfg
}

func appendText(t *testing.T, doc *dom.Document, parent *html.Node, text string) {
	t.Helper()
	require.NoError(t, doc.AppendChild(parent, &html.Node{Type: html.TextNode, Data: text}))
}

func TestLifecycle(t *testing.T) {
	t.Run("start and stop", func(t *testing.T) {
		doc := loadDoc(t, `<div id="a">Some observable content here.</div>`)
		m := New(doc, fastConfig(), nil, zaptest.NewLogger(t))

		assert.Equal(t, StateStopped, m.State())
		require.NoError(t, m.StartObserving())
		assert.Equal(t, StateObserving, m.State())
		assert.True(t, m.Snapshot().IsObserving)

		// 重复启动是无害的
		require.NoError(t, m.StartObserving())

		m.StopObserving()
		assert.Equal(t, StateStopped, m.State())
		assert.False(t, m.Snapshot().IsObserving)
	})

	t.Run("start without body fails", func(t *testing.T) {
		doc := loadDoc(t, `<div>x</div>`)
		body := doc.Body()
		require.NoError(t, doc.RemoveChild(body.Parent, body))

		m := New(doc, fastConfig(), nil, zaptest.NewLogger(t))
		assert.ErrorIs(t, m.StartObserving(), errBodyDisconnected)
		assert.Equal(t, StateStopped, m.State())
	})
}

func TestMutationBatching(t *testing.T) {
	t.Run("debounced batch delivered", func(t *testing.T) {
		doc := loadDoc(t, `<div id="a">Some observable content here.</div>`)
		rec := &batchRecorder{}
		m := New(doc, fastConfig(), rec.handler, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		target := doc.Find("#a")[0]
		appendText(t, doc, target, "newly added sentence")

		assert.Eventually(t, func() bool { return rec.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)
		require.Len(t, rec.batches[0], 1)
		assert.Same(t, target, rec.batches[0][0])
	})

	t.Run("nested dirty nodes reduced to topmost", func(t *testing.T) {
		doc := loadDoc(t, `<div id="outer">outer content<div id="inner">inner content</div></div>`)
		rec := &batchRecorder{}
		m := New(doc, fastConfig(), rec.handler, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		outer := doc.Find("#outer")[0]
		inner := doc.Find("#inner")[0]
		appendText(t, doc, inner, "change one")
		appendText(t, doc, outer, "change two")

		assert.Eventually(t, func() bool { return rec.batchCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
		// inner 被 outer 覆盖，批次只含最顶层节点
		require.Len(t, rec.batches[0], 1)
		assert.Same(t, outer, rec.batches[0][0])
	})

	t.Run("batch cap defers overflow without loss", func(t *testing.T) {
		var bodyHTML string
		for i := 0; i < 5; i++ {
			bodyHTML += fmt.Sprintf(`<div id="d%d">block %d content</div>`, i, i)
		}
		doc := loadDoc(t, bodyHTML)

		cfg := fastConfig()
		cfg.MaxNodesPerBatch = 2
		rec := &batchRecorder{}
		m := New(doc, cfg, rec.handler, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		for i := 0; i < 5; i++ {
			appendText(t, doc, doc.Find(fmt.Sprintf("#d%d", i))[0], "dirty")
		}

		// 顺延机制：所有节点最终都被处理，单批从不超限
		assert.Eventually(t, func() bool { return rec.totalRoots() == 5 }, 3*time.Second, 10*time.Millisecond)
		assert.LessOrEqual(t, rec.maxBatchSize(), 2)
		assert.GreaterOrEqual(t, rec.batchCount(), 3)
	})

	t.Run("injected output does not feed back", func(t *testing.T) {
		doc := loadDoc(t, `<p id="p">Original paragraph content.</p>`)
		rec := &batchRecorder{}
		m := New(doc, fastConfig(), rec.handler, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		// 模拟注入器写回翻译结果
		p := doc.Find("#p")[0]
		span := &html.Node{
			Type: html.ElementNode, DataAtom: atom.Span, Data: "span",
			Attr: []html.Attribute{{Key: "class", Val: classifier.InjectedClass}},
		}
		span.AppendChild(&html.Node{Type: html.TextNode, Data: "译文"})
		require.NoError(t, doc.AppendChild(p, span))

		// 注入子树内部的后续修改同样被过滤
		require.NoError(t, doc.SetText(span.FirstChild, "更新的译文"))

		time.Sleep(200 * time.Millisecond)
		assert.Zero(t, rec.batchCount())
	})

	t.Run("detached nodes dropped at flush", func(t *testing.T) {
		doc := loadDoc(t, `<div id="a">content one</div><div id="b">content two</div>`)
		rec := &batchRecorder{}
		m := New(doc, fastConfig(), rec.handler, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		a := doc.Find("#a")[0]
		appendText(t, doc, a, "dirty")
		// 去抖窗口内节点又被移除
		require.NoError(t, doc.RemoveChild(a.Parent, a))

		time.Sleep(200 * time.Millisecond)
		for _, b := range rec.batches {
			for _, n := range b {
				assert.NotSame(t, a, n)
			}
		}
	})
}

func TestHeavyLoad(t *testing.T) {
	doc := loadDoc(t, `<div id="a">Some observable content here.</div>`)

	cfg := fastConfig()
	// 测试进程内的连续回调间隔远小于一小时，全部计为快速回调
	cfg.HeavyLoadWindow = time.Hour
	cfg.HeavyLoadCount = 3

	rec := &batchRecorder{}
	m := New(doc, cfg, rec.handler, zaptest.NewLogger(t))
	require.NoError(t, m.StartObserving())
	defer m.StopObserving()

	target := doc.Find("#a")[0]
	for i := 0; i < 6; i++ {
		appendText(t, doc, target, fmt.Sprintf("storm %d", i))
	}

	assert.Eventually(t, func() bool { return m.Snapshot().HeavyLoadDetected }, 2*time.Second, 10*time.Millisecond)
	// 渲染风暴批次被整体丢弃
	assert.Eventually(t, func() bool { return m.Snapshot().PendingNodes == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, rec.batchCount())
}

func TestNavigation(t *testing.T) {
	t.Run("path change is strong navigation", func(t *testing.T) {
		doc := loadDoc(t, `<div id="a">Fresh page content to translate.</div>`)
		rec := &batchRecorder{}
		m := New(doc, fastConfig(), rec.handler, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		doc.PushState("https://example.com/other")

		assert.Eventually(t, func() bool { return m.Snapshot().StrongNavigations == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "https://example.com/other", m.Snapshot().LastURL)
		// 新页面上未处理的内容被重扫
		assert.Eventually(t, func() bool { return rec.batchCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("hash change is weak navigation", func(t *testing.T) {
		doc := loadDoc(t, `<div id="a">Fresh page content to translate.</div>`)
		m := New(doc, fastConfig(), nil, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		doc.SetHash("section")

		assert.Eventually(t, func() bool { return m.Snapshot().WeakNavigations == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Zero(t, m.Snapshot().StrongNavigations)
	})

	t.Run("unchanged url is a no-op", func(t *testing.T) {
		doc := loadDoc(t, `<div id="a">Fresh page content to translate.</div>`)
		m := New(doc, fastConfig(), nil, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		// 同地址的 pushState 触发检查但不算页面更换
		doc.PushState("https://example.com/page")

		time.Sleep(150 * time.Millisecond)
		snap := m.Snapshot()
		assert.Zero(t, snap.StrongNavigations)
		assert.Zero(t, snap.WeakNavigations)
	})

	t.Run("url poll catches silent change", func(t *testing.T) {
		doc := loadDoc(t, `<div id="a">Fresh page content to translate.</div>`)
		cfg := fastConfig()
		cfg.URLPollInterval = 20 * time.Millisecond
		m := New(doc, cfg, nil, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		// 不发导航事件，只有轮询能发现
		doc.SetURLSilently("https://example.com/silent")

		assert.Eventually(t, func() bool { return m.Snapshot().StrongNavigations == 1 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("processed page not rescanned", func(t *testing.T) {
		doc := loadDoc(t, `<div id="a">Fresh page content to translate.</div>`)
		rec := &batchRecorder{}
		m := New(doc, fastConfig(), rec.handler, zaptest.NewLogger(t))
		require.NoError(t, m.StartObserving())
		defer m.StopObserving()

		doc.PushState("https://example.com/other")
		assert.Eventually(t, func() bool { return rec.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)

		doc.PushState("https://example.com/page")
		assert.Eventually(t, func() bool { return rec.batchCount() == 2 }, 2*time.Second, 10*time.Millisecond)

		// 再回到已重扫过的页面，不触发新批次
		doc.PushState("https://example.com/other")
		assert.Eventually(t, func() bool { return m.Snapshot().StrongNavigations == 3 }, 2*time.Second, 10*time.Millisecond)

		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, 2, rec.batchCount())
	})
}

func TestDispatchDuringConcurrentMutations(t *testing.T) {
	doc := loadDoc(t, `<div id="feed">Seed content for the feed.</div>`)

	// handler 像流水线一样在读锁下提取文本
	handler := func(ctx context.Context, roots []*html.Node) error {
		doc.ReadLocked(func() {
			for _, r := range roots {
				_ = dom.ElementText(r)
			}
		})
		return nil
	}

	cfg := fastConfig()
	// 关掉渲染风暴判定，让每次去抖都真正分发
	cfg.HeavyLoadWindow = time.Nanosecond

	m := New(doc, cfg, handler, zaptest.NewLogger(t))
	require.NoError(t, m.StartObserving())

	// 主 goroutine 持续改写文档，观察循环同时在分发批次
	feed := doc.Find("#feed")[0]
	for i := 0; i < 100; i++ {
		appendText(t, doc, feed, fmt.Sprintf("update %d", i))
		if i%10 == 9 {
			time.Sleep(30 * time.Millisecond)
		}
	}

	time.Sleep(200 * time.Millisecond)
	m.StopObserving()
	assert.Equal(t, StateStopped, m.State())
}

func TestReconnectExhaustion(t *testing.T) {
	doc := loadDoc(t, `<div id="a">Fresh page content to translate.</div>`)

	cfg := fastConfig()
	cfg.MaxReconnectAttempts = 2

	m := New(doc, cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, m.StartObserving())

	// body 脱离后所有重建尝试都失败
	body := doc.Body()
	require.NoError(t, doc.RemoveChild(body.Parent, body))

	doc.PushState("https://example.com/other")

	assert.Eventually(t, func() bool { return m.State() == StateStopped }, 3*time.Second, 10*time.Millisecond)
	snap := m.Snapshot()
	assert.False(t, snap.IsObserving)
	assert.Greater(t, snap.ReconnectAttempts, cfg.MaxReconnectAttempts)
}

func TestPageSet(t *testing.T) {
	p := newPageSet(3)
	p.Add("a")
	p.Add("b")
	p.Add("c")
	p.Add("a") // 重复加入不挤占容量
	assert.Equal(t, 3, p.Len())

	p.Add("d")
	assert.Equal(t, 3, p.Len())
	assert.False(t, p.Contains("a"), "oldest entry evicted")
	assert.True(t, p.Contains("d"))
}
