package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
)

// NewTranslateCommand 创建 translate 命令
func NewTranslateCommand() *cobra.Command {
	translateCmd := &cobra.Command{
		Use:   "translate <input.html> [output.html]",
		Short: "翻译一个 HTML 文件",
		Long: `读取 HTML 文件，提取可翻译分段并注入翻译结果。
输出文件缺省时写到 <input>_translated.html。

用法示例:
  illa translate page.html                    # 使用默认提供商翻译
  illa translate --provider openai page.html  # 使用 OpenAI 翻译
  illa translate --viewport page.html         # 模拟视口滚动渐进处理`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runTranslateCommand,
	}

	translateCmd.Flags().BoolVar(&useViewport, "viewport", false, "按视口滚动顺序渐进处理，而不是一次处理整页")

	return translateCmd
}

// runTranslateCommand 执行 translate 命令
func runTranslateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	defer func() {
		_ = log.Sync()
	}()

	inputPath := args[0]
	outputPath := defaultOutputPath(inputPath)
	if len(args) > 1 {
		outputPath = args[1]
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("打开输入文件失败: %w", err)
	}
	defer in.Close()

	absPath, err := filepath.Abs(inputPath)
	if err != nil {
		absPath = inputPath
	}
	pageURL := "file://" + absPath

	doc, err := dom.Load(in, pageURL)
	if err != nil {
		return fmt.Errorf("解析 HTML 失败: %w", err)
	}

	p, err := newPipeline(cfg, doc, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	body := doc.Body()
	if body == nil {
		return fmt.Errorf("文档没有 body 元素")
	}

	if useViewport || cfg.Viewport.Enabled {
		if err := sweepViewport(ctx, cfg, doc, p, log); err != nil {
			return err
		}
	} else {
		if err := p.coord.ProcessRoots(ctx, []*html.Node{body}); err != nil {
			return err
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("创建输出文件失败: %w", err)
	}
	defer out.Close()

	if err := doc.Render(out); err != nil {
		return fmt.Errorf("写出 HTML 失败: %w", err)
	}

	log.Info("翻译完成",
		zap.String("输入文件", inputPath),
		zap.String("输出文件", outputPath))

	printSummary(cmd.OutOrStdout(), inputPath, outputPath, p.coord.Summary())
	return nil
}

// defaultOutputPath 生成默认输出文件名
func defaultOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	return base + "_translated" + ext
}
