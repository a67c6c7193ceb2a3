// Package cache 实现以内容指纹为键的翻译结果缓存：
// TTL 与页面归属在读取时校验，容量上限按最旧时间戳先出执行。
package cache

import (
	"crypto/md5"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/translation"
)

// Entry 缓存条目
type Entry struct {
	OriginalText string              `json:"originalText"`
	Result       *translation.Result `json:"translationResult"`
	Timestamp    time.Time           `json:"timestamp"`
	PageURL      string              `json:"pageUrl"`
	Fingerprint  string              `json:"fingerprint"`
}

// Stats 缓存统计
type Stats struct {
	EntryCount int64 `json:"entryCount"`
	HitCount   int64 `json:"hitCount"`
	MissCount  int64 `json:"missCount"`
}

// FingerprintCache 指纹缓存。持久化是异步尽力而为的：
// 写盘失败只记日志，会话内以内存态为准。
type FingerprintCache struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	stats    Stats
	pageURL  string
	ttl      time.Duration
	maxSize  int
	logger   *zap.Logger
	storeDir string

	persistMu sync.Mutex

	// now 可注入的时钟，测试用
	now func() time.Time
}

// Options 缓存参数
type Options struct {
	TTL      time.Duration // 条目存活时间，默认 24h
	MaxSize  int           // 最大条目数，默认 1000
	StoreDir string        // 持久化目录，空字符串表示仅内存
}

// NewFingerprintCache 创建缓存并尽力加载持久化数据
func NewFingerprintCache(opts Options, logger *zap.Logger) *FingerprintCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1000
	}

	c := &FingerprintCache{
		entries:  make(map[string]Entry),
		ttl:      opts.TTL,
		maxSize:  opts.MaxSize,
		logger:   logger,
		storeDir: opts.StoreDir,
		now:      time.Now,
	}

	if err := c.load(); err != nil {
		// 旧数据无法信任时只能整体重建
		logger.Warn("加载持久化缓存失败，从空缓存开始", zap.Error(err))
	}

	return c
}

// SetPageURL 切换当前页面。缓存键包含页面 URL，
// 条目不会跨页面泄漏。
func (c *FingerprintCache) SetPageURL(pageURL string) {
	c.mu.Lock()
	c.pageURL = pageURL
	c.mu.Unlock()
}

// key 由文本、页面 URL 和结构指纹计算存储键
func key(text, pageURL, fingerprint string) string {
	hash := md5.Sum([]byte(fmt.Sprintf("text:%s|url:%s|fp:%s", text, pageURL, fingerprint)))
	return fmt.Sprintf("%x", hash)
}

// Get 按文本与指纹查缓存。过期或页面归属不符的条目
// 在读取时惰性清除并按未命中处理。
func (c *FingerprintCache) Get(text, fingerprint string) *translation.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(text, c.pageURL, fingerprint)
	entry, ok := c.entries[k]
	if !ok {
		c.stats.MissCount++
		return nil
	}

	if c.now().Sub(entry.Timestamp) > c.ttl {
		delete(c.entries, k)
		c.stats.MissCount++
		return nil
	}

	if entry.PageURL != c.pageURL {
		delete(c.entries, k)
		c.stats.MissCount++
		return nil
	}

	c.stats.HitCount++
	return entry.Result.Clone()
}

// Put 写入翻译结果并触发清理：先清掉过期条目，
// 仍超容量时按最旧时间戳逐出。写入是幂等的后写覆盖。
func (c *FingerprintCache) Put(text, fingerprint string, result *translation.Result) {
	c.mu.Lock()

	k := key(text, c.pageURL, fingerprint)
	c.entries[k] = Entry{
		OriginalText: text,
		Result:       result.Clone(),
		Timestamp:    c.now(),
		PageURL:      c.pageURL,
		Fingerprint:  fingerprint,
	}

	c.cleanupLocked()
	c.mu.Unlock()

	c.persistAsync()
}

// cleanupLocked 清理过期条目并执行容量逐出，调用方必须持锁
func (c *FingerprintCache) cleanupLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.Timestamp) > c.ttl {
			delete(c.entries, k)
		}
	}

	if len(c.entries) <= c.maxSize {
		return
	}

	type aged struct {
		key string
		ts  time.Time
	}
	byAge := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		byAge = append(byAge, aged{key: k, ts: e.Timestamp})
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].ts.Before(byAge[j].ts) })

	for _, a := range byAge {
		if len(c.entries) <= c.maxSize {
			break
		}
		delete(c.entries, a.key)
	}
}

// Stats 返回缓存统计快照
func (c *FingerprintCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.EntryCount = int64(len(c.entries))
	return s
}

// ClearAll 清空缓存及持久化数据
func (c *FingerprintCache) ClearAll() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.stats = Stats{}
	c.mu.Unlock()

	if err := c.removeBlob(); err != nil {
		c.logger.Warn("删除持久化缓存失败", zap.Error(err))
	}
}
