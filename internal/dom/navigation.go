package dom

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// URL 返回当前页面 URL
func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// PushState 模拟 history.pushState 导航
func (d *Document) PushState(newURL string) {
	d.navigate(newURL, NavPushState)
}

// ReplaceState 模拟 history.replaceState 导航
func (d *Document) ReplaceState(newURL string) {
	d.navigate(newURL, NavReplaceState)
}

// PopState 模拟浏览器前进/后退触发的 popstate
func (d *Document) PopState(newURL string) {
	d.navigate(newURL, NavPopState)
}

// SetHash 只修改 URL 的 hash 部分，触发 hashchange
func (d *Document) SetHash(hash string) {
	d.mu.Lock()
	u := d.url
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	if hash != "" && !strings.HasPrefix(hash, "#") {
		hash = "#" + hash
	}
	d.url = u + hash
	ev := NavEvent{Kind: NavHashChange, URL: d.url, Title: d.title}
	d.emitNav(ev)
	d.mu.Unlock()
}

// SetURLSilently 直接替换 URL 而不发出任何导航事件，
// 用于覆盖只能靠轮询发现的 URL 变化路径。
func (d *Document) SetURLSilently(newURL string) {
	d.mu.Lock()
	d.url = newURL
	d.mu.Unlock()
}

// SetTitle 更新页面标题。除导航事件外还会修改 <title> 的文本节点，
// 因此同时产生一条可被变更订阅捕获的记录。
func (d *Document) SetTitle(title string) {
	d.mu.RLock()
	titleEl := findElement(d.root, "title")
	var textNode *html.Node
	if titleEl != nil && titleEl.FirstChild != nil && titleEl.FirstChild.Type == html.TextNode {
		textNode = titleEl.FirstChild
	}
	d.mu.RUnlock()

	if textNode != nil {
		_ = d.SetText(textNode, title)
	} else if titleEl != nil {
		_ = d.AppendChild(titleEl, &html.Node{Type: html.TextNode, Data: title})
	}

	d.mu.Lock()
	d.title = title
	d.emitNav(NavEvent{Kind: NavTitleChange, URL: d.url, Title: title})
	d.mu.Unlock()
}

// navigate 更新 URL 并发出对应的导航事件
func (d *Document) navigate(newURL string, kind NavKind) {
	d.mu.Lock()
	d.url = newURL
	d.emitNav(NavEvent{Kind: kind, URL: newURL, Title: d.title})
	d.mu.Unlock()
}

// SamePath 判断两个 URL 的路径部分是否相同。
// 路径不同视为强导航信号；仅 hash/query 不同是弱信号。
func SamePath(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ua.Host == ub.Host && ua.Path == ub.Path
}
