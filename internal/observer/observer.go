// Package observer 实现弹性的变更观察层：
// 把底层的原始变更记录整流成去抖的、容量受限的脏节点批次，
// 识别 SPA 导航与宿主框架的渲染风暴，并独立于被观察页面管理
// 自身的暂停/恢复/重连生命周期。
package observer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/classifier"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
)

// State 观察器状态
type State int

const (
	StateStopped State = iota
	StateObserving
	StatePaused
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateObserving:
		return "observing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// BatchFunc 批次处理回调。返回的错误只记录，不会中断观察
type BatchFunc func(ctx context.Context, roots []*html.Node) error

// Config 观察器参数
type Config struct {
	DebounceBase         time.Duration // 小批量的去抖延迟
	DebounceMax          time.Duration // 大批量的去抖延迟上限
	MaxNodesPerBatch     int           // 单批节点上限，超出部分顺延下一批
	MaxReconnectAttempts int           // 订阅重建的最大重试次数
	ReconnectBackoff     time.Duration // 线性退避步长
	PauseWarnThreshold   time.Duration // 暂停超时告警阈值
	PauseDelayThreshold  time.Duration // 暂停超时延迟恢复阈值
	ResumeDelay          time.Duration // 延迟恢复的等待时间
	HeavyLoadWindow      time.Duration // 渲染风暴判定的最小回调间隔
	HeavyLoadCount       int           // 连续短间隔回调次数阈值
	URLPollInterval      time.Duration // URL 轮询间隔
	NavigationDebounce   time.Duration // 页面变化检查的去抖延迟
}

// DefaultConfig 默认观察器参数
func DefaultConfig() Config {
	return Config{
		DebounceBase:         150 * time.Millisecond,
		DebounceMax:          time.Second,
		MaxNodesPerBatch:     50,
		MaxReconnectAttempts: 5,
		ReconnectBackoff:     time.Second,
		PauseWarnThreshold:   2 * time.Second,
		PauseDelayThreshold:  5 * time.Second,
		ResumeDelay:          time.Second,
		HeavyLoadWindow:      50 * time.Millisecond,
		HeavyLoadCount:       10,
		URLPollInterval:      2 * time.Second,
		NavigationDebounce:   300 * time.Millisecond,
	}
}

// lifecycle 观察器自有的可变状态。它只被观察循环这一个
// goroutine 修改；多个观察器实例之间互不干扰。
type lifecycle struct {
	isObserving       bool
	reconnectAttempts int
	heavyLoadDetected bool
	lastURL           string
}

// Manager 弹性观察器
type Manager struct {
	doc     *dom.Document
	cfg     Config
	handler BatchFunc
	logger  *zap.Logger

	mu    sync.Mutex
	state State
	life  lifecycle

	sub    *dom.Subscription
	navSub *dom.NavSubscription

	// pending 待处理的脏节点集合，只由观察循环读写
	pending map[*html.Node]struct{}

	// 渲染风暴计时
	lastCallback    time.Time
	consecutiveFast int

	// 去抖与重连定时器
	debounceTimer  *time.Timer
	debounceC      <-chan time.Time
	navTimer       *time.Timer
	navC           <-chan time.Time
	reconnectTimer *time.Timer
	reconnectC     <-chan time.Time

	processedPages *pageSet

	// 导航检查的强/弱信号计数
	navStrong int
	navWeak   int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New 创建观察器。handler 为空时批次被静默丢弃
func New(doc *dom.Document, cfg Config, handler BatchFunc, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxNodesPerBatch <= 0 {
		cfg.MaxNodesPerBatch = 50
	}
	if cfg.DebounceBase <= 0 {
		cfg.DebounceBase = 150 * time.Millisecond
	}
	if cfg.DebounceMax < cfg.DebounceBase {
		cfg.DebounceMax = cfg.DebounceBase
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	if cfg.HeavyLoadCount <= 0 {
		cfg.HeavyLoadCount = 10
	}

	return &Manager{
		doc:            doc,
		cfg:            cfg,
		handler:        handler,
		logger:         logger,
		state:          StateStopped,
		pending:        make(map[*html.Node]struct{}),
		processedPages: newPageSet(50),
	}
}

// State 返回当前状态
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot 生命周期状态快照，测试与诊断用
type Snapshot struct {
	State             State
	IsObserving       bool
	ReconnectAttempts int
	HeavyLoadDetected bool
	LastURL           string
	PendingNodes      int
	StrongNavigations int
	WeakNavigations   int
}

// Snapshot 返回生命周期状态快照
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:             m.state,
		IsObserving:       m.life.isObserving,
		ReconnectAttempts: m.life.reconnectAttempts,
		HeavyLoadDetected: m.life.heavyLoadDetected,
		LastURL:           m.life.lastURL,
		PendingNodes:      len(m.pending),
		StrongNavigations: m.navStrong,
		WeakNavigations:   m.navWeak,
	}
}

// StartObserving 启动观察。仅当 body 连接在文档上时创建底层订阅，
// 否则直接返回错误，调用方可稍后重试。
func (m *Manager) StartObserving() error {
	m.mu.Lock()
	if m.state != StateStopped {
		m.mu.Unlock()
		return nil
	}

	body := m.doc.Body()
	if body == nil || !m.doc.Contains(body) {
		m.mu.Unlock()
		return errBodyDisconnected
	}

	sub, err := m.doc.Subscribe(body)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.sub = sub
	m.navSub = m.doc.SubscribeNavigation()
	m.state = StateObserving
	m.life = lifecycle{isObserving: true, lastURL: m.doc.URL()}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("观察器已启动", zap.String("url", m.doc.URL()))

	go m.run()
	return nil
}

// StopObserving 停止观察并等待循环退出
func (m *Manager) StopObserving() {
	m.mu.Lock()
	if m.state == StateStopped || m.cancel == nil {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// run 单消费者观察循环。所有对 pending 集合与生命周期状态的
// 修改都发生在这里，外部只能通过订阅通道与取消信号交互。
func (m *Manager) run() {
	defer close(m.done)
	defer m.teardown()

	var urlPollC <-chan time.Time
	if m.cfg.URLPollInterval > 0 {
		ticker := time.NewTicker(m.cfg.URLPollInterval)
		defer ticker.Stop()
		urlPollC = ticker.C
	}

	for {
		subC := m.subChannel()
		navEvC := m.navChannel()

		select {
		case <-m.ctx.Done():
			return

		case rec, ok := <-subC:
			if !ok {
				continue
			}
			m.handleMutation(rec)

		case ev, ok := <-navEvC:
			if !ok {
				continue
			}
			m.handleNavSignal(ev)

		case <-urlPollC:
			m.pollURL()

		case <-m.debounceC:
			m.flushBatch()

		case <-m.navC:
			m.runPageChangedCheck()

		case <-m.reconnectC:
			m.tryReconnect()
		}
	}
}

// subChannel 返回当前订阅通道，暂停期间为 nil（select 分支失效）
func (m *Manager) subChannel() <-chan dom.MutationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub == nil {
		return nil
	}
	return m.sub.C
}

// navChannel 返回导航事件通道
func (m *Manager) navChannel() <-chan dom.NavEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.navSub == nil {
		return nil
	}
	return m.navSub.C
}

// handleMutation 过滤并积累一条变更记录
func (m *Manager) handleMutation(rec dom.MutationRecord) {
	m.trackCallbackTiming()

	// 过滤与根节点推导都沿父指针上溯，需要在读锁下进行
	var root *html.Node
	m.doc.ReadLocked(func() {
		// 翻译注入产生的变更被整体过滤，这是打断反馈循环的第一道闸
		if isInjectedOutput(rec.Target) {
			return
		}
		if len(rec.AddedNodes) > 0 && allInjected(rec.AddedNodes) {
			return
		}
		root = dirtyRoot(rec)
	})
	if root == nil {
		return
	}

	m.mu.Lock()
	m.pending[root] = struct{}{}
	pendingSize := len(m.pending)
	m.mu.Unlock()

	m.armDebounce(pendingSize)
}

// trackCallbackTiming 跟踪回调间隔，识别渲染风暴。
// 连续多次短间隔回调置位 heavyLoadDetected；间隔恢复正常即清除。
func (m *Manager) trackCallbackTiming() {
	now := time.Now()
	if !m.lastCallback.IsZero() && now.Sub(m.lastCallback) < m.cfg.HeavyLoadWindow {
		m.consecutiveFast++
		if m.consecutiveFast >= m.cfg.HeavyLoadCount {
			m.mu.Lock()
			if !m.life.heavyLoadDetected {
				m.logger.Warn("检测到渲染风暴，下一批变更将被丢弃",
					zap.Int("consecutiveFast", m.consecutiveFast))
			}
			m.life.heavyLoadDetected = true
			m.mu.Unlock()
		}
	} else {
		m.consecutiveFast = 0
		m.mu.Lock()
		m.life.heavyLoadDetected = false
		m.mu.Unlock()
	}
	m.lastCallback = now
}

// armDebounce 按批量规模重置去抖定时器。
// 大批量意味着批量重写仍在进行，延迟随之加长。
func (m *Manager) armDebounce(pendingSize int) {
	delay := m.cfg.DebounceBase * time.Duration(1+pendingSize/10)
	if delay > m.cfg.DebounceMax {
		delay = m.cfg.DebounceMax
	}

	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.NewTimer(delay)
	m.debounceC = m.debounceTimer.C
}

// flushBatch 把积累的脏节点整理成一批并交给处理方。
// 渲染风暴期间的批次整体丢弃；超过单批上限的节点留在
// 集合里顺延，不会丢失。
func (m *Manager) flushBatch() {
	m.debounceC = nil

	m.mu.Lock()
	if m.life.heavyLoadDetected {
		discarded := len(m.pending)
		m.pending = make(map[*html.Node]struct{})
		m.mu.Unlock()
		m.logger.Warn("渲染风暴期间丢弃变更批次", zap.Int("nodes", discarded))
		return
	}

	all := make([]*html.Node, 0, len(m.pending))
	for n := range m.pending {
		// 已脱离文档的节点没有处理意义
		if m.doc.Contains(n) {
			all = append(all, n)
		}
	}
	m.mu.Unlock()

	if len(all) == 0 {
		m.mu.Lock()
		m.pending = make(map[*html.Node]struct{})
		m.mu.Unlock()
		return
	}

	var roots []*html.Node
	m.doc.ReadLocked(func() {
		roots = dom.TopmostNodes(all)
		dom.SortByDocumentOrder(roots)
	})

	batch := roots
	var overflow []*html.Node
	if len(roots) > m.cfg.MaxNodesPerBatch {
		batch = roots[:m.cfg.MaxNodesPerBatch]
		overflow = roots[m.cfg.MaxNodesPerBatch:]
	}

	m.mu.Lock()
	m.pending = make(map[*html.Node]struct{})
	for _, n := range overflow {
		m.pending[n] = struct{}{}
	}
	m.mu.Unlock()

	m.dispatch(batch)

	// 超限顺延：集合非空时重新武装去抖，下一轮取走剩余节点
	if len(overflow) > 0 {
		m.logger.Debug("批次超限，剩余节点顺延", zap.Int("deferred", len(overflow)))
		m.armDebounce(len(overflow))
	}
}

// dispatch 在暂停观察的保护下执行一个处理批次。
// 订阅在批次前断开、批次后重建，翻译注入造成的变更
// 因此不会回流进观察器。
func (m *Manager) dispatch(roots []*html.Node) {
	if m.handler == nil {
		return
	}

	m.pause()
	start := time.Now()

	if err := m.handler(m.ctx, roots); err != nil {
		m.logger.Error("批次处理失败", zap.Error(err), zap.Int("roots", len(roots)))
	}

	m.resume(time.Since(start))
}

// pause 断开底层订阅，进入暂停态
func (m *Manager) pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
	m.state = StatePaused
	m.life.isObserving = false
}

// resume 重建订阅并回到观察态。暂停超过告警阈值记录警告；
// 超过延迟阈值时额外等待，让检测到的重渲染波峰先平息。
func (m *Manager) resume(pausedFor time.Duration) {
	if pausedFor > m.cfg.PauseWarnThreshold {
		m.logger.Warn("处理批次耗时过长", zap.Duration("pausedFor", pausedFor))
	}
	if pausedFor > m.cfg.PauseDelayThreshold && m.cfg.ResumeDelay > 0 {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.cfg.ResumeDelay):
		}
	}

	if err := m.resubscribe(); err != nil {
		m.logger.Warn("恢复订阅失败，进入重连", zap.Error(err))
		m.enterReconnecting()
	}
}

// resubscribe 尝试重建底层订阅
func (m *Manager) resubscribe() error {
	body := m.doc.Body()
	if body == nil || !m.doc.Contains(body) {
		return errBodyDisconnected
	}

	sub, err := m.doc.Subscribe(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.sub != nil {
		m.sub.Close()
	}
	m.sub = sub
	m.state = StateObserving
	m.life.isObserving = true
	m.life.reconnectAttempts = 0
	m.mu.Unlock()
	return nil
}

// enterReconnecting 安排一次线性退避的重连。
// 超过最大尝试次数后转入停止态，需要外部显式重启。
func (m *Manager) enterReconnecting() {
	m.mu.Lock()
	m.life.reconnectAttempts++
	attempts := m.life.reconnectAttempts
	m.mu.Unlock()

	if attempts > m.cfg.MaxReconnectAttempts {
		m.logger.Error("重连次数耗尽，观察器停止",
			zap.Int("attempts", attempts-1))
		m.mu.Lock()
		m.state = StateStopped
		m.life.isObserving = false
		m.mu.Unlock()
		if m.cancel != nil {
			m.cancel()
		}
		return
	}

	backoff := m.cfg.ReconnectBackoff * time.Duration(attempts)
	m.logger.Info("安排订阅重连",
		zap.Int("attempt", attempts),
		zap.Duration("backoff", backoff))

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnectTimer = time.NewTimer(backoff)
	m.reconnectC = m.reconnectTimer.C
}

// tryReconnect 执行一次重连尝试
func (m *Manager) tryReconnect() {
	m.reconnectC = nil

	if err := m.resubscribe(); err != nil {
		m.logger.Warn("重连失败", zap.Error(err))
		m.enterReconnecting()
		return
	}
	m.logger.Info("订阅已重建")
}

// teardown 释放全部资源
func (m *Manager) teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
	if m.navSub != nil {
		m.navSub.Close()
		m.navSub = nil
	}
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	if m.navTimer != nil {
		m.navTimer.Stop()
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.state = StateStopped
	m.life.isObserving = false
}

// dirtyRoot 由变更记录推导需要重新处理的根节点
func dirtyRoot(rec dom.MutationRecord) *html.Node {
	switch rec.Type {
	case dom.RecordChildList:
		return rec.Target
	case dom.RecordCharacterData:
		if rec.Target.Parent != nil {
			return rec.Target.Parent
		}
		return nil
	case dom.RecordAttributes:
		return rec.Target
	default:
		return nil
	}
}

// isInjectedOutput 判断节点是否属于翻译注入的输出子树
func isInjectedOutput(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && dom.HasClass(cur, classifier.InjectedClass) {
			return true
		}
	}
	return false
}

// allInjected 判断一组新增节点是否全部为翻译注入的输出
func allInjected(nodes []*html.Node) bool {
	for _, n := range nodes {
		if n.Type == html.ElementNode && !dom.HasClass(n, classifier.InjectedClass) {
			return false
		}
		if n.Type == html.TextNode {
			return false
		}
	}
	return true
}
