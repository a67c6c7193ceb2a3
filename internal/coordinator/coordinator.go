// Package coordinator 串联分类→分段→缓存→翻译→回写的处理流水线。
// 它是核心中唯一调用外部翻译协作方的组件。
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/cache"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/segment"
	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/translation"
)

// Summary 一轮处理的统计
type Summary struct {
	Roots        int           `json:"roots"`
	Segments     int           `json:"segments"`
	CacheHits    int           `json:"cache_hits"`
	CacheMisses  int           `json:"cache_misses"`
	Translated   int           `json:"translated"`
	Untranslated int           `json:"untranslated"` // 译文与原文几乎相同的可疑结果
	Skipped      int           `json:"skipped"`      // 节点在处理前脱离文档
	Errors       int           `json:"errors"`
	Duration     time.Duration `json:"duration"`
}

// Coordinator 处理协调器
type Coordinator struct {
	doc        *dom.Document
	segmenter  *segment.Segmenter
	cache      *cache.FingerprintCache
	translator translation.Translator
	logger     *zap.Logger

	// subBatchSize 子批大小，子批之间让出事件循环
	subBatchSize int
	// yieldDelay 子批间的让出时长
	yieldDelay time.Duration

	mu      sync.Mutex
	summary Summary
}

// Option 协调器可选参数
type Option func(*Coordinator)

// WithSubBatchSize 设置子批大小
func WithSubBatchSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.subBatchSize = n
		}
	}
}

// WithYieldDelay 设置子批间的让出时长
func WithYieldDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.yieldDelay = d
		}
	}
}

// New 创建协调器。cache 可以为 nil（禁用缓存）
func New(doc *dom.Document, seg *segment.Segmenter, fpCache *cache.FingerprintCache,
	translator translation.Translator, logger *zap.Logger, opts ...Option,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		doc:          doc,
		segmenter:    seg,
		cache:        fpCache,
		translator:   translator,
		logger:       logger,
		subBatchSize: 5,
		yieldDelay:   time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessRoots 按文档序处理一批根节点。
// 子批之间检查页面是否已更换：换页后在途批次直接放弃，
// 已发出的翻译调用结果被丢弃而非取消。
// 单个节点的故障只记录并跳过，不会中止整批。
func (c *Coordinator) ProcessRoots(ctx context.Context, roots []*html.Node) error {
	start := time.Now()
	pageURL := c.doc.URL()
	if c.cache != nil {
		c.cache.SetPageURL(pageURL)
	}

	c.doc.ReadLocked(func() {
		dom.SortByDocumentOrder(roots)
	})

	c.mu.Lock()
	c.summary.Roots += len(roots)
	c.mu.Unlock()

	for i := 0; i < len(roots); i += c.subBatchSize {
		if ctx.Err() != nil {
			c.logger.Debug("处理被取消", zap.Int("processed", i))
			break
		}
		// 换页标志：后到的导航使在途批次失去意义
		if c.doc.URL() != pageURL {
			c.logger.Info("页面已更换，放弃在途批次",
				zap.String("was", pageURL),
				zap.String("now", c.doc.URL()),
				zap.Int("remaining", len(roots)-i))
			break
		}

		end := i + c.subBatchSize
		if end > len(roots) {
			end = len(roots)
		}

		for _, root := range roots[i:end] {
			if err := c.processRoot(ctx, root); err != nil {
				// 单节点故障不中止批次
				c.logger.Warn("节点处理失败，跳过",
					zap.String("path", dom.Path(root)),
					zap.Error(err))
				c.mu.Lock()
				c.summary.Errors++
				c.mu.Unlock()
			}
		}

		// 子批间让出，避免长时间占住宿主的主事件循环
		if end < len(roots) && c.yieldDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.yieldDelay):
			}
		}
	}

	c.mu.Lock()
	c.summary.Duration += time.Since(start)
	c.mu.Unlock()
	return nil
}

// processRoot 处理单个根节点
func (c *Coordinator) processRoot(ctx context.Context, root *html.Node) error {
	if !c.doc.Contains(root) {
		c.mu.Lock()
		c.summary.Skipped++
		c.mu.Unlock()
		return nil
	}

	// 分类与分段只读地遍历子树，整体在读锁下进行，
	// 与观察路径上并发的文档变更互斥
	var segments []segment.Segment
	c.doc.ReadLocked(func() {
		segments = c.segmenter.SegmentContent(c.doc, root)
	})

	for i := range segments {
		if ctx.Err() != nil {
			return nil
		}
		c.processSegment(ctx, &segments[i])
	}

	c.mu.Lock()
	c.summary.Segments += len(segments)
	c.mu.Unlock()
	return nil
}

// processSegment 处理单个分段：查缓存、翻未命中、回写结果。
// 缓存读-翻译-缓存写跨越挂起点，不具备原子性；偶发的重复翻译
// 只是性能代价，写入是幂等的后写覆盖。
func (c *Coordinator) processSegment(ctx context.Context, seg *segment.Segment) {
	var result *translation.Result

	if c.cache != nil {
		result = c.cache.Get(seg.Text, seg.Fingerprint)
	}

	if result != nil {
		c.mu.Lock()
		c.summary.CacheHits++
		c.mu.Unlock()
	} else {
		if c.cache != nil {
			c.mu.Lock()
			c.summary.CacheMisses++
			c.mu.Unlock()
		}

		var err error
		result, err = c.translator.Translate(ctx, seg.Text)
		if err != nil {
			// 翻译失败按普通错误记录并跳过，不重试
			c.logger.Warn("翻译调用失败",
				zap.String("segmentID", seg.ID),
				zap.String("path", seg.DOMPath),
				zap.Error(err))
			c.mu.Lock()
			c.summary.Errors++
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		c.summary.Translated++
		// 译文与原文几乎一致时多半是提供商未生效，计入可疑结果
		if fuzzy.LevenshteinDistance(seg.Text, result.Processed) == 0 {
			c.summary.Untranslated++
		}
		c.mu.Unlock()

		if c.cache != nil {
			c.cache.Put(seg.Text, seg.Fingerprint, result)
		}
	}

	if err := c.applyResult(seg, result); err != nil {
		c.logger.Debug("结果回写被跳过",
			zap.String("segmentID", seg.ID),
			zap.Error(err))
		c.mu.Lock()
		c.summary.Skipped++
		c.mu.Unlock()
	}
}

// Summary 返回统计快照
func (c *Coordinator) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// ResetSummary 清零统计
func (c *Coordinator) ResetSummary() {
	c.mu.Lock()
	c.summary = Summary{}
	c.mu.Unlock()
}
