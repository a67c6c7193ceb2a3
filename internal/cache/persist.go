package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// blobVersion 持久化格式版本。版本不符的快照一律按缓存重建处理，
// 不信任任何部分数据。
const blobVersion = 1

// blobFileName 固定的存储文件名
const blobFileName = "translation-cache.json"

// persistedBlob 落盘的缓存快照
type persistedBlob struct {
	Version   int                `json:"version"`
	Cache     [][2]json.RawMessage `json:"cache"`
	Stats     persistedStats     `json:"stats"`
	Timestamp time.Time          `json:"timestamp"`
}

// persistedStats 随快照保存的累计统计
type persistedStats struct {
	HitCount  int64 `json:"hitCount"`
	MissCount int64 `json:"missCount"`
}

// blobPath 返回存储文件路径，未配置目录时为空
func (c *FingerprintCache) blobPath() string {
	if c.storeDir == "" {
		return ""
	}
	return filepath.Join(c.storeDir, blobFileName)
}

// persistAsync 异步写盘。持久化失败从不向上传播，
// 缓存的正确性不依赖写盘成功。
func (c *FingerprintCache) persistAsync() {
	if c.storeDir == "" {
		return
	}

	go func() {
		if err := c.persist(); err != nil {
			c.logger.Warn("缓存持久化失败", zap.Error(err))
		}
	}()
}

// persist 序列化当前缓存并原子落盘
func (c *FingerprintCache) persist() error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	pairs := make([][2]json.RawMessage, 0, len(c.entries))
	for k, e := range c.entries {
		kb, err := json.Marshal(k)
		if err != nil {
			c.mu.RUnlock()
			return fmt.Errorf("序列化缓存键失败: %w", err)
		}
		eb, err := json.Marshal(e)
		if err != nil {
			c.mu.RUnlock()
			return fmt.Errorf("序列化缓存条目失败: %w", err)
		}
		pairs = append(pairs, [2]json.RawMessage{kb, eb})
	}
	blob := persistedBlob{
		Version:   blobVersion,
		Cache:     pairs,
		Stats:     persistedStats{HitCount: c.stats.HitCount, MissCount: c.stats.MissCount},
		Timestamp: time.Now(),
	}
	c.mu.RUnlock()

	data, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("序列化缓存快照失败: %w", err)
	}

	if err := os.MkdirAll(c.storeDir, 0o755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}

	tmp := c.blobPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入缓存文件失败: %w", err)
	}
	if err := os.Rename(tmp, c.blobPath()); err != nil {
		return fmt.Errorf("替换缓存文件失败: %w", err)
	}
	return nil
}

// load 读取持久化快照。解析失败、结构不符或版本不匹配都
// 视为缓存未命中的整体重建，绝不采信部分数据。
func (c *FingerprintCache) load() error {
	path := c.blobPath()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取缓存文件失败: %w", err)
	}

	var blob persistedBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		c.discardBlob()
		return fmt.Errorf("缓存快照解析失败: %w", err)
	}
	if blob.Version != blobVersion {
		c.discardBlob()
		return fmt.Errorf("缓存快照版本不符: %d", blob.Version)
	}

	entries := make(map[string]Entry, len(blob.Cache))
	for _, pair := range blob.Cache {
		var k string
		var e Entry
		if err := json.Unmarshal(pair[0], &k); err != nil {
			c.discardBlob()
			return fmt.Errorf("缓存键解析失败: %w", err)
		}
		if err := json.Unmarshal(pair[1], &e); err != nil {
			c.discardBlob()
			return fmt.Errorf("缓存条目解析失败: %w", err)
		}
		if k == "" || e.Result == nil {
			c.discardBlob()
			return fmt.Errorf("缓存快照结构不符")
		}
		entries[k] = e
	}

	c.mu.Lock()
	c.entries = entries
	c.stats.HitCount = blob.Stats.HitCount
	c.stats.MissCount = blob.Stats.MissCount
	c.mu.Unlock()

	c.logger.Debug("持久化缓存加载完成", zap.Int("entries", len(entries)))
	return nil
}

// discardBlob 丢弃不可信的快照文件
func (c *FingerprintCache) discardBlob() {
	if path := c.blobPath(); path != "" {
		_ = os.Remove(path)
	}
}

// removeBlob 删除持久化文件
func (c *FingerprintCache) removeBlob() error {
	path := c.blobPath()
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
