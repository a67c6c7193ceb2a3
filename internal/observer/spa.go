package observer

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/classifier"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
)

// errBodyDisconnected body 不在文档上时订阅无法建立
var errBodyDisconnected = errors.New("页面 body 未连接，无法建立订阅")

// translatablePattern 判定文本是否值得翻译：至少两个连续字母
// （含 CJK 统一表意文字）。纯数字、符号串不触发重处理。
var translatablePattern = regexp.MustCompile(`[\p{L}]{2}|[\p{Han}]`)

// minReprocessTextLength 重处理候选节点的最小文本长度
const minReprocessTextLength = 10

// nonContentTags 页面变化排除遍历直接跳过的标签
var nonContentTags = map[string]bool{
	"script": true, "style": true, "meta": true, "link": true,
	"noscript": true, "svg": true, "canvas": true, "iframe": true,
	"template": true, "head": true, "title": true,
}

// handleNavSignal 处理一条导航信号。五条独立信号
// （pushState/replaceState、popstate、hashchange、URL 轮询、
// 标题变更）全部汇入同一个去抖的页面变化检查。
func (m *Manager) handleNavSignal(ev dom.NavEvent) {
	m.logger.Debug("收到导航信号",
		zap.String("kind", ev.Kind.String()),
		zap.String("url", ev.URL))
	m.scheduleNavigationCheck()
}

// pollURL URL 轮询兜底：捕获没有任何事件来源的地址变化
func (m *Manager) pollURL() {
	m.mu.Lock()
	last := m.life.lastURL
	m.mu.Unlock()

	if m.doc.URL() != last {
		m.logger.Debug("轮询发现 URL 变化", zap.String("url", m.doc.URL()))
		m.scheduleNavigationCheck()
	}
}

// scheduleNavigationCheck 重置导航去抖定时器
func (m *Manager) scheduleNavigationCheck() {
	delay := m.cfg.NavigationDebounce
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	if m.navTimer != nil {
		m.navTimer.Stop()
	}
	m.navTimer = time.NewTimer(delay)
	m.navC = m.navTimer.C
}

// runPageChangedCheck 执行页面变化检查。路径变化是强信号，
// 仅 hash/query 变化按弱信号处理；两者都会重建订阅并只
// 重处理新页面上尚未处理的内容。
func (m *Manager) runPageChangedCheck() {
	m.navC = nil

	current := m.doc.URL()
	m.mu.Lock()
	last := m.life.lastURL
	m.mu.Unlock()

	if current == last {
		return
	}

	strong := !dom.SamePath(last, current)
	m.logger.Info("检测到页面内容更换",
		zap.String("from", last),
		zap.String("to", current),
		zap.Bool("pathChanged", strong))

	m.mu.Lock()
	m.life.lastURL = current
	if strong {
		m.navStrong++
	} else {
		m.navWeak++
	}
	m.mu.Unlock()

	// 旧订阅先拆除再重建，期间的变更属于换页噪声
	if err := m.resubscribe(); err != nil {
		m.logger.Warn("换页后重建订阅失败，进入重连", zap.Error(err))
		m.enterReconnecting()
		return
	}

	// 处理过的页面不再整页重扫
	if m.processedPages.Contains(current) {
		m.logger.Debug("页面已处理过，跳过整页重扫", zap.String("url", current))
		return
	}

	roots := m.collectUnprocessedRoots()
	if len(roots) == 0 {
		return
	}

	m.processedPages.Add(current)
	m.dispatch(roots)
}

// collectUnprocessedRoots 排除式遍历：跳过已标记节点与非内容标签，
// 只收集文本量足够且包含可翻译字符的块级根。
func (m *Manager) collectUnprocessedRoots() []*html.Node {
	body := m.doc.Body()
	if body == nil {
		return nil
	}

	var roots []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}

		tag := strings.ToLower(n.Data)
		if nonContentTags[tag] {
			return
		}
		if dom.GetAttr(n, classifier.ProcessedAttr) != "" {
			return
		}
		if dom.HasClass(n, classifier.InjectedClass) {
			return
		}

		if dom.DisplayOf(n) == dom.DisplayBlock {
			text := dom.ElementText(n)
			if len([]rune(text)) >= minReprocessTextLength && translatablePattern.MatchString(text) {
				roots = append(roots, n)
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	// 整个排除遍历在读锁下进行，避免与并发变更交错
	m.doc.ReadLocked(func() {
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		roots = dom.TopmostNodes(roots)
	})

	return roots
}

// pageSet 容量受限的已处理页面集合，先进先出逐出。
// 只用来跳过多余的整页重扫，不承担正确性职责。
type pageSet struct {
	cap   int
	set   map[string]struct{}
	order []string
}

// newPageSet 创建页面集合
func newPageSet(cap int) *pageSet {
	return &pageSet{
		cap: cap,
		set: make(map[string]struct{}),
	}
}

// Contains 判断 URL 是否已在集合中
func (p *pageSet) Contains(url string) bool {
	_, ok := p.set[url]
	return ok
}

// Add 加入 URL，超出容量时逐出最早加入的
func (p *pageSet) Add(url string) {
	if p.Contains(url) {
		return
	}
	p.set[url] = struct{}{}
	p.order = append(p.order, url)
	for len(p.order) > p.cap {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.set, oldest)
	}
}

// Len 返回集合大小
func (p *pageSet) Len() int {
	return len(p.set)
}
