package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document 持有一棵活动的 HTML 树，并把所有结构变更
// 作为 MutationRecord 推送给订阅者。它是观察层的唯一变更来源，
// 取代浏览器环境中的 MutationObserver 原语。
type Document struct {
	mu      sync.RWMutex
	root    *html.Node
	url     string
	title   string
	subs    map[int]*Subscription
	navSubs map[int]*NavSubscription
	nextID  int
}

// Subscription 变更订阅。记录通过带缓冲的通道投递，
// 消费方必须及时取走，通道满时记录会被丢弃并计数。
type Subscription struct {
	C       <-chan MutationRecord
	ch      chan MutationRecord
	doc     *Document
	id      int
	target  *html.Node
	dropped int
	closed  bool
}

// NavSubscription 导航事件订阅
type NavSubscription struct {
	C   <-chan NavEvent
	ch  chan NavEvent
	doc *Document
	id  int
}

const subscriptionBuffer = 4096

// Load 从 r 解析 HTML 并构建文档
func Load(r io.Reader, pageURL string) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败: %w", err)
	}

	if len(gq.Selection.Nodes) == 0 {
		return nil, fmt.Errorf("HTML 文档为空")
	}

	d := &Document{
		root:    gq.Selection.Nodes[0],
		url:     pageURL,
		subs:    make(map[int]*Subscription),
		navSubs: make(map[int]*NavSubscription),
	}
	d.title = d.readTitle()
	return d, nil
}

// LoadString 从字符串构建文档
func LoadString(src, pageURL string) (*Document, error) {
	return Load(strings.NewReader(src), pageURL)
}

// Root 返回文档根节点
func (d *Document) Root() *html.Node {
	return d.root
}

// Body 返回 body 元素，不存在时返回 nil
func (d *Document) Body() *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return findElement(d.root, "body")
}

// Title 返回当前页面标题
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.title
}

// Find 使用 CSS 选择器查找节点
func (d *Document) Find(selector string) []*html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return goquery.NewDocumentFromNode(d.root).Find(selector).Nodes
}

// Contains 判断节点是否仍连接在文档树上
func (d *Document) Contains(n *html.Node) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.contains(n)
}

// contains Contains 的无锁版本，调用方必须持有锁
func (d *Document) contains(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

// ReadLocked 在读锁保护下执行 fn。跨越多个节点的树遍历
// （分类、分段、文本提取）必须整体持有读锁，否则会与并发的
// 变更操作交错。fn 内不得调用文档的任何变更方法或其他加锁方法。
func (d *Document) ReadLocked(fn func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn()
}

// Subscribe 订阅 target 子树内的变更。target 必须连接在文档上，
// 否则返回错误（观察器依赖该语义走重连路径）。
func (d *Document) Subscribe(target *html.Node) (*Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if target == nil {
		return nil, fmt.Errorf("订阅目标为空")
	}
	if !d.contains(target) {
		return nil, fmt.Errorf("订阅目标已脱离文档")
	}

	ch := make(chan MutationRecord, subscriptionBuffer)
	sub := &Subscription{
		C:      ch,
		ch:     ch,
		doc:    d,
		id:     d.nextID,
		target: target,
	}
	d.subs[d.nextID] = sub
	d.nextID++
	return sub, nil
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.doc.subs, s.id)
	close(s.ch)
}

// Dropped 返回因通道满而丢弃的记录数
func (s *Subscription) Dropped() int {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	return s.dropped
}

// SubscribeNavigation 订阅导航事件
func (d *Document) SubscribeNavigation() *NavSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch := make(chan NavEvent, 64)
	sub := &NavSubscription{C: ch, ch: ch, doc: d, id: d.nextID}
	d.navSubs[d.nextID] = sub
	d.nextID++
	return sub
}

// Close 取消导航订阅
func (s *NavSubscription) Close() {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	if _, ok := s.doc.navSubs[s.id]; !ok {
		return
	}
	delete(s.doc.navSubs, s.id)
	close(s.ch)
}

// AppendChild 把 child 追加为 parent 的最后一个子节点
func (d *Document) AppendChild(parent, child *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.contains(parent) {
		return fmt.Errorf("父节点已脱离文档")
	}
	if child.Parent != nil {
		return fmt.Errorf("子节点已有父节点")
	}

	parent.AppendChild(child)
	d.emit(MutationRecord{
		Type:       RecordChildList,
		Target:     parent,
		AddedNodes: []*html.Node{child},
	})
	return nil
}

// InsertBefore 把 child 插入到 ref 之前，ref 为 nil 时等价于 AppendChild
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if ref == nil {
		return d.AppendChild(parent, child)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.contains(parent) {
		return fmt.Errorf("父节点已脱离文档")
	}
	if ref.Parent != parent {
		return fmt.Errorf("参照节点不是该父节点的子节点")
	}
	if child.Parent != nil {
		return fmt.Errorf("子节点已有父节点")
	}

	parent.InsertBefore(child, ref)
	d.emit(MutationRecord{
		Type:       RecordChildList,
		Target:     parent,
		AddedNodes: []*html.Node{child},
	})
	return nil
}

// RemoveChild 从 parent 移除 child
func (d *Document) RemoveChild(parent, child *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if child.Parent != parent {
		return fmt.Errorf("节点不是该父节点的子节点")
	}

	parent.RemoveChild(child)
	d.emit(MutationRecord{
		Type:         RecordChildList,
		Target:       parent,
		RemovedNodes: []*html.Node{child},
	})
	return nil
}

// ReplaceChildren 整体替换 parent 的子节点，模拟框架式的批量重写
func (d *Document) ReplaceChildren(parent *html.Node, children ...*html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.contains(parent) {
		return fmt.Errorf("父节点已脱离文档")
	}

	var removed []*html.Node
	for parent.FirstChild != nil {
		c := parent.FirstChild
		parent.RemoveChild(c)
		removed = append(removed, c)
	}
	for _, c := range children {
		if c.Parent != nil {
			return fmt.Errorf("子节点已有父节点")
		}
		parent.AppendChild(c)
	}

	d.emit(MutationRecord{
		Type:         RecordChildList,
		Target:       parent,
		AddedNodes:   children,
		RemovedNodes: removed,
	})
	return nil
}

// SetText 修改文本节点内容
func (d *Document) SetText(textNode *html.Node, data string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if textNode.Type != html.TextNode {
		return fmt.Errorf("目标不是文本节点")
	}

	old := textNode.Data
	textNode.Data = data
	d.emit(MutationRecord{
		Type:     RecordCharacterData,
		Target:   textNode,
		OldValue: old,
	})
	return nil
}

// SetAttr 设置元素属性
func (d *Document) SetAttr(el *html.Node, key, val string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el.Type != html.ElementNode {
		return fmt.Errorf("目标不是元素节点")
	}

	old := ""
	found := false
	for i := range el.Attr {
		if el.Attr[i].Key == key {
			old = el.Attr[i].Val
			el.Attr[i].Val = val
			found = true
			break
		}
	}
	if !found {
		el.Attr = append(el.Attr, html.Attribute{Key: key, Val: val})
	}

	d.emit(MutationRecord{
		Type:          RecordAttributes,
		Target:        el,
		AttributeName: key,
		OldValue:      old,
	})
	return nil
}

// Render 把当前文档序列化为 HTML
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// emit 把记录投递给所有匹配的订阅者，调用方必须持有锁
func (d *Document) emit(rec MutationRecord) {
	for _, sub := range d.subs {
		if sub.target != nil && !inSubtree(sub.target, rec.Target) {
			continue
		}
		select {
		case sub.ch <- rec:
		default:
			sub.dropped++
		}
	}
}

// emitNav 把导航事件投递给所有订阅者，调用方必须持有锁
func (d *Document) emitNav(ev NavEvent) {
	for _, sub := range d.navSubs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// inSubtree 判断 n 是否位于 root 的子树内（含 root 自身）
func inSubtree(root, n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

// findElement 深度优先查找第一个指定标签的元素
func findElement(root *html.Node, tag string) *html.Node {
	if root.Type == html.ElementNode && root.Data == tag {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// readTitle 读取 <title> 的文本内容
func (d *Document) readTitle() string {
	titleEl := findElement(d.root, "title")
	if titleEl == nil || titleEl.FirstChild == nil {
		return ""
	}
	return titleEl.FirstChild.Data
}
