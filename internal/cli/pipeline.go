package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/cache"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/config"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/coordinator"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/observer"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/segment"
	"github.com/xiao-zaiyi/illa-helper-sub000/pkg/providers/factory"
)

// pipeline 把分段、缓存、提供商和协调器组装在一起
type pipeline struct {
	coord   *coordinator.Coordinator
	fpCache *cache.FingerprintCache
}

// newPipeline 按配置组装处理流水线
func newPipeline(cfg *config.Config, doc *dom.Document, log *zap.Logger) (*pipeline, error) {
	translator, err := factory.New(cfg.Provider.Name, factory.Options{
		Model:       cfg.Provider.Model,
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		TargetLang:  cfg.Provider.TargetLang,
		Temperature: cfg.Provider.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("创建翻译提供商失败: %w", err)
	}

	seg := segment.NewSegmenter(segment.Config{
		MaxSegmentLength:    cfg.Segment.MaxSegmentLength,
		MinSegmentLength:    cfg.Segment.MinSegmentLength,
		EnableSmartBoundary: cfg.Segment.EnableSmartBoundary,
		MergeSmallSegments:  cfg.Segment.MergeSmallSegments,
	}, log)

	var fpCache *cache.FingerprintCache
	if cfg.Cache.Enabled {
		fpCache = cache.NewFingerprintCache(cache.Options{
			TTL:      cfg.Cache.TTL,
			MaxSize:  cfg.Cache.MaxSize,
			StoreDir: cfg.Cache.Dir,
		}, log)
	}

	return &pipeline{
		coord:   coordinator.New(doc, seg, fpCache, translator, log),
		fpCache: fpCache,
	}, nil
}

// observerConfig 把文件配置映射为观察器参数
func observerConfig(cfg *config.Config) observer.Config {
	oc := observer.DefaultConfig()
	oc.DebounceBase = cfg.Observer.DebounceBase
	oc.DebounceMax = cfg.Observer.DebounceMax
	oc.MaxNodesPerBatch = cfg.Observer.MaxNodesPerBatch
	oc.MaxReconnectAttempts = cfg.Observer.MaxReconnectAttempts
	oc.ReconnectBackoff = cfg.Observer.ReconnectBackoff
	oc.PauseWarnThreshold = cfg.Observer.PauseWarnThreshold
	oc.PauseDelayThreshold = cfg.Observer.PauseDelayThreshold
	oc.ResumeDelay = cfg.Observer.ResumeDelay
	oc.HeavyLoadWindow = cfg.Observer.HeavyLoadWindow
	oc.HeavyLoadCount = cfg.Observer.HeavyLoadCount
	oc.URLPollInterval = cfg.Observer.URLPollInterval
	oc.NavigationDebounce = cfg.Observer.NavigationDebounce
	return oc
}
