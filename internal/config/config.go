package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// SegmentConfig 内容分段配置
type SegmentConfig struct {
	MaxSegmentLength    int  `mapstructure:"max_segment_length"`    // 单个分段的最大字符数
	MinSegmentLength    int  `mapstructure:"min_segment_length"`    // 低于该长度的分段视为过小
	EnableSmartBoundary bool `mapstructure:"enable_smart_boundary"` // 在句子边界处分割超长分段
	MergeSmallSegments  bool `mapstructure:"merge_small_segments"`  // 合并相邻的过小分段
}

// ObserverConfig 变更观察器配置
type ObserverConfig struct {
	DebounceBase         time.Duration `mapstructure:"debounce_base"`          // 小批量的去抖延迟
	DebounceMax          time.Duration `mapstructure:"debounce_max"`           // 大批量的去抖延迟上限
	MaxNodesPerBatch     int           `mapstructure:"max_nodes_per_batch"`    // 单批处理的节点上限，超出部分顺延
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"` // 订阅重建的最大重试次数
	ReconnectBackoff     time.Duration `mapstructure:"reconnect_backoff"`      // 线性退避的步长
	PauseWarnThreshold   time.Duration `mapstructure:"pause_warn_threshold"`   // 暂停超过该时长时告警
	PauseDelayThreshold  time.Duration `mapstructure:"pause_delay_threshold"`  // 暂停超过该时长时延迟恢复
	ResumeDelay          time.Duration `mapstructure:"resume_delay"`           // 延迟恢复的等待时间
	HeavyLoadWindow      time.Duration `mapstructure:"heavy_load_window"`      // 判定渲染风暴的最小回调间隔
	HeavyLoadCount       int           `mapstructure:"heavy_load_count"`       // 连续多少次短间隔回调视为渲染风暴
	URLPollInterval      time.Duration `mapstructure:"url_poll_interval"`      // URL 轮询间隔
	NavigationDebounce   time.Duration `mapstructure:"navigation_debounce"`    // 页面变化检查的去抖延迟
}

// CacheConfig 指纹缓存配置
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`  // 是否启用缓存
	Dir     string        `mapstructure:"dir"`      // 持久化目录，空字符串表示仅内存
	TTL     time.Duration `mapstructure:"ttl"`      // 条目存活时间
	MaxSize int           `mapstructure:"max_size"` // 最大条目数
}

// ViewportConfig 视口调度配置
type ViewportConfig struct {
	Enabled         bool `mapstructure:"enabled"`          // 是否启用视口触发
	Height          int  `mapstructure:"height"`           // 视口高度（近似行高单位）
	PreloadDistance int  `mapstructure:"preload_distance"` // 视口外的预加载距离
}

// ProviderConfig 翻译提供商配置
type ProviderConfig struct {
	Name        string  `mapstructure:"name"`        // raw 或 openai
	Model       string  `mapstructure:"model"`       // OpenAI 模型名
	APIKey      string  `mapstructure:"api_key"`     // API 密钥，空时读取环境变量
	BaseURL     string  `mapstructure:"base_url"`    // 自定义接口地址
	SourceLang  string  `mapstructure:"source_lang"` // 源语言
	TargetLang  string  `mapstructure:"target_lang"` // 目标语言
	Temperature float32 `mapstructure:"temperature"` // 采样温度
}

// Config 保存整个翻译核心的配置
type Config struct {
	Debug    bool           `mapstructure:"debug"`
	LogFile  string         `mapstructure:"log_file"`
	Segment  SegmentConfig  `mapstructure:"segment"`
	Observer ObserverConfig `mapstructure:"observer"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Viewport ViewportConfig `mapstructure:"viewport"`
	Provider ProviderConfig `mapstructure:"provider"`
}

// DefaultConfig 创建默认配置
func DefaultConfig() *Config {
	return &Config{
		Segment: SegmentConfig{
			MaxSegmentLength:    400,
			MinSegmentLength:    20,
			EnableSmartBoundary: true,
			MergeSmallSegments:  true,
		},
		Observer: ObserverConfig{
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
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
			MaxSize: 1000,
		},
		Viewport: ViewportConfig{
			Enabled:         false,
			Height:          40,
			PreloadDistance: 20,
		},
		Provider: ProviderConfig{
			Name:       "raw",
			Model:      "gpt-4o-mini",
			SourceLang: "en",
			TargetLang: "zh",
		},
	}
}

// LoadConfig 从文件加载配置，文件不存在时返回默认配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".illa")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 校验配置并填充缺失的默认值
func (c *Config) Validate() error {
	if c.Segment.MaxSegmentLength <= 0 {
		c.Segment.MaxSegmentLength = 400
	}
	if c.Segment.MinSegmentLength < 0 {
		c.Segment.MinSegmentLength = 0
	}
	if c.Segment.MinSegmentLength >= c.Segment.MaxSegmentLength {
		return fmt.Errorf("min_segment_length (%d) 必须小于 max_segment_length (%d)",
			c.Segment.MinSegmentLength, c.Segment.MaxSegmentLength)
	}

	if c.Observer.MaxNodesPerBatch <= 0 {
		c.Observer.MaxNodesPerBatch = 50
	}
	if c.Observer.MaxReconnectAttempts <= 0 {
		c.Observer.MaxReconnectAttempts = 5
	}
	if c.Observer.DebounceBase <= 0 {
		c.Observer.DebounceBase = 150 * time.Millisecond
	}
	if c.Observer.DebounceMax < c.Observer.DebounceBase {
		c.Observer.DebounceMax = c.Observer.DebounceBase
	}
	if c.Observer.HeavyLoadCount <= 0 {
		c.Observer.HeavyLoadCount = 10
	}

	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = 1000
	}

	if c.Viewport.Height <= 0 {
		c.Viewport.Height = 40
	}
	if c.Viewport.PreloadDistance < 0 {
		c.Viewport.PreloadDistance = 0
	}

	switch c.Provider.Name {
	case "", "raw", "openai":
	default:
		return fmt.Errorf("未知的翻译提供商: %s", c.Provider.Name)
	}

	return nil
}
