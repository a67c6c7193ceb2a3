// Package cli 提供 illa 命令行入口。
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/config"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/logger"
)

var (
	// 全局标志变量
	cfgFile      string
	debugMode    bool
	providerName string
	cacheDir     string
	noCache      bool
	useViewport  bool
)

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "illa",
		Short: "illa 是一个增量式文档翻译核心",
		Long: `illa 把 HTML 文档切分为带指纹的翻译分段，
按文档序增量处理，并在内容发生变更时只重译受影响的部分。

支持的翻译提供商:
  - raw: 直通模式，不做任何翻译（调试用）
  - openai: OpenAI Chat Completions 接口`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认查找 ./.illa.yaml 与 ~/.illa.yaml）")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "指定翻译提供商 (raw, openai)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "缓存持久化目录")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "禁用指纹缓存")

	rootCmd.AddCommand(NewTranslateCommand())
	rootCmd.AddCommand(NewWatchCommand())
	rootCmd.AddCommand(NewCacheCommand())

	return rootCmd
}

// loadConfig 加载配置并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if debugMode {
		cfg.Debug = true
	}
	if providerName != "" {
		cfg.Provider.Name = providerName
	}
	if cacheDir != "" {
		cfg.Cache.Dir = cacheDir
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger 按配置创建日志器
func newLogger(cfg *config.Config) *zap.Logger {
	if cfg.LogFile != "" {
		return logger.NewFileLogger(cfg.Debug, cfg.LogFile)
	}
	return logger.NewLogger(cfg.Debug)
}
