package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/cache"
)

// NewCacheCommand 创建 cache 命令
func NewCacheCommand() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "查看和管理指纹缓存",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "显示缓存统计信息",
		Args:  cobra.NoArgs,
		RunE:  runCacheStats,
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "清空缓存及其持久化文件",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	})

	return cacheCmd
}

// runCacheStats 执行 cache stats 命令
func runCacheStats(cmd *cobra.Command, args []string) error {
	fpCache, err := openCache()
	if err != nil {
		return err
	}
	printCacheStats(cmd.OutOrStdout(), fpCache.Stats())
	return nil
}

// runCacheClear 执行 cache clear 命令
func runCacheClear(cmd *cobra.Command, args []string) error {
	fpCache, err := openCache()
	if err != nil {
		return err
	}
	fpCache.ClearAll()
	fmt.Fprintln(cmd.OutOrStdout(), "缓存已清空")
	return nil
}

// openCache 按配置打开指纹缓存
func openCache() (*cache.FingerprintCache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := newLogger(cfg)
	defer func() {
		_ = log.Sync()
	}()

	if cfg.Cache.Dir == "" {
		return nil, fmt.Errorf("未配置缓存目录（cache.dir 或 --cache-dir）")
	}

	return cache.NewFingerprintCache(cache.Options{
		TTL:      cfg.Cache.TTL,
		MaxSize:  cfg.Cache.MaxSize,
		StoreDir: cfg.Cache.Dir,
	}, log), nil
}
