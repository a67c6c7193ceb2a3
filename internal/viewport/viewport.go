// Package viewport 实现可选的第二触发路径：
// 只为进入视口或其预加载范围的内容调度处理，
// 让长页面的翻译随滚动渐进展开。
package viewport

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/classifier"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
)

// Config 视口调度参数
type Config struct {
	Height          int // 视口高度，以近似行位置为单位
	PreloadDistance int // 视口外仍然预加载的距离
}

// DefaultConfig 默认视口参数
func DefaultConfig() Config {
	return Config{Height: 40, PreloadDistance: 20}
}

// ScheduleFunc 进入视口的根节点批次回调
type ScheduleFunc func(ctx context.Context, roots []*html.Node) error

// Scheduler 视口调度器。没有真实布局信息，
// 块级元素按文档序获得递增的近似行位置。
type Scheduler struct {
	doc     *dom.Document
	cfg     Config
	handler ScheduleFunc
	logger  *zap.Logger

	mu        sync.Mutex
	positions map[*html.Node]int
	scheduled map[*html.Node]bool
	scroll    int
}

// NewScheduler 创建视口调度器
func NewScheduler(doc *dom.Document, cfg Config, handler ScheduleFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Height <= 0 {
		cfg.Height = 40
	}
	if cfg.PreloadDistance < 0 {
		cfg.PreloadDistance = 0
	}

	s := &Scheduler{
		doc:       doc,
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		positions: make(map[*html.Node]int),
		scheduled: make(map[*html.Node]bool),
	}
	s.Rebuild()
	return s
}

// Rebuild 重新给块级元素分配近似位置。
// 页面内容更换后必须调用，旧位置随旧节点一并废弃。
func (s *Scheduler) Rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions = make(map[*html.Node]int)
	s.scheduled = make(map[*html.Node]bool)

	body := s.doc.Body()
	if body == nil {
		return
	}

	pos := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if dom.HasClass(c, classifier.InjectedClass) {
				continue
			}
			if dom.DisplayOf(c) == dom.DisplayBlock {
				s.positions[c] = pos
				pos++
			}
			walk(c)
		}
	}
	// 位置分配遍历在读锁下进行
	s.doc.ReadLocked(func() {
		walk(body)
	})

	s.logger.Debug("视口位置重建完成", zap.Int("blocks", pos))
}

// SetScroll 更新滚动位置并调度新进入预加载窗口的根节点。
// 已调度过的分段不会重复调度。
func (s *Scheduler) SetScroll(ctx context.Context, offset int) error {
	s.mu.Lock()
	s.scroll = offset

	lo := offset - s.cfg.PreloadDistance
	hi := offset + s.cfg.Height + s.cfg.PreloadDistance

	var due []*html.Node
	for n, pos := range s.positions {
		if s.scheduled[n] {
			continue
		}
		if pos >= lo && pos <= hi && s.doc.Contains(n) {
			due = append(due, n)
			s.scheduled[n] = true
		}
	}
	s.mu.Unlock()

	if len(due) == 0 || s.handler == nil {
		return nil
	}

	s.doc.ReadLocked(func() {
		due = dom.TopmostNodes(due)
		dom.SortByDocumentOrder(due)
	})

	s.logger.Debug("视口调度批次",
		zap.Int("offset", offset),
		zap.Int("roots", len(due)))

	return s.handler(ctx, due)
}

// Scroll 返回当前滚动位置
func (s *Scheduler) Scroll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scroll
}

// BlockCount 返回已分配位置的块总数
func (s *Scheduler) BlockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

// PendingCount 返回尚未调度的块数，测试与诊断用
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for el := range s.positions {
		if !s.scheduled[el] {
			n++
		}
	}
	return n
}
