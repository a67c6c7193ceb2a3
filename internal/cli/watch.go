package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/dom"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/observer"
)

// watchStep 变更脚本中的一步
type watchStep struct {
	Action   string `json:"action"`   // append, setText, replaceContent, pushState, setHash, setTitle
	Selector string `json:"selector"` // CSS 选择器，定位目标元素
	Text     string `json:"text"`     // 文本内容
	URL      string `json:"url"`      // 导航目标地址
	DelayMs  int    `json:"delayMs"`  // 该步之前的等待毫秒数
}

// NewWatchCommand 创建 watch 命令
func NewWatchCommand() *cobra.Command {
	var outputPath string

	watchCmd := &cobra.Command{
		Use:   "watch <input.html> <script.json>",
		Short: "回放变更脚本并增量翻译受影响的内容",
		Long: `加载 HTML 文件并启动变更观察器，然后按 JSON 脚本逐步
修改文档：观察器去抖、汇总受影响的根节点，只把变更部分
送去翻译。脚本支持的动作:

  append          向 selector 目标追加一个新段落（text）
  setText         替换 selector 目标的文本内容（text）
  replaceContent  清空 selector 目标并填入新段落（text）
  pushState       模拟 SPA 导航（url）
  setHash         修改 URL 锚点（url 为新锚点）
  setTitle        修改文档标题（text）

用法示例:
  illa watch page.html mutations.json
  illa watch -o result.html page.html mutations.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchCommand(cmd, args, outputPath)
		},
	}

	watchCmd.Flags().StringVarP(&outputPath, "output", "o", "", "回放结束后写出最终 HTML")

	return watchCmd
}

// runWatchCommand 执行 watch 命令
func runWatchCommand(cmd *cobra.Command, args []string, outputPath string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	defer func() {
		_ = log.Sync()
	}()

	inputPath := args[0]
	scriptPath := args[1]

	steps, err := loadWatchScript(scriptPath)
	if err != nil {
		return err
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

	doc, err := dom.Load(in, "file://"+absPath)
	if err != nil {
		return fmt.Errorf("解析 HTML 失败: %w", err)
	}

	p, err := newPipeline(cfg, doc, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	// 初始整页处理，之后的变更走观察器路径
	if body := doc.Body(); body != nil {
		if err := p.coord.ProcessRoots(ctx, []*html.Node{body}); err != nil {
			return err
		}
	}

	mgr := observer.New(doc, observerConfig(cfg), func(ctx context.Context, roots []*html.Node) error {
		return p.coord.ProcessRoots(ctx, roots)
	}, log)

	if err := mgr.StartObserving(); err != nil {
		return fmt.Errorf("启动观察器失败: %w", err)
	}

	bar, err := pterm.DefaultProgressbar.
		WithTotal(len(steps)).
		WithTitle("回放变更脚本").
		Start()
	if err != nil {
		bar = nil
	}

	for i, step := range steps {
		if step.DelayMs > 0 {
			time.Sleep(time.Duration(step.DelayMs) * time.Millisecond)
		}
		if err := applyWatchStep(doc, step); err != nil {
			return fmt.Errorf("脚本第 %d 步失败: %w", i+1, err)
		}
		if bar != nil {
			bar.Increment()
		}
	}

	// 等待去抖窗口排空
	settle := cfg.Observer.DebounceMax + cfg.Observer.NavigationDebounce + 200*time.Millisecond
	time.Sleep(settle)

	mgr.StopObserving()

	if outputPath != "" {
		out, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("创建输出文件失败: %w", err)
		}
		defer out.Close()
		if err := doc.Render(out); err != nil {
			return fmt.Errorf("写出 HTML 失败: %w", err)
		}
	}

	printSummary(cmd.OutOrStdout(), inputPath, outputPath, p.coord.Summary())
	return nil
}

// loadWatchScript 读取变更脚本
func loadWatchScript(path string) ([]watchStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取脚本失败: %w", err)
	}
	var steps []watchStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("解析脚本失败: %w", err)
	}
	return steps, nil
}

// applyWatchStep 把脚本中的一步应用到文档
func applyWatchStep(doc *dom.Document, step watchStep) error {
	switch step.Action {
	case "append":
		target, err := findOne(doc, step.Selector)
		if err != nil {
			return err
		}
		return doc.AppendChild(target, newParagraph(step.Text))
	case "setText":
		target, err := findOne(doc, step.Selector)
		if err != nil {
			return err
		}
		if target.FirstChild != nil && target.FirstChild.Type == html.TextNode {
			return doc.SetText(target.FirstChild, step.Text)
		}
		return doc.ReplaceChildren(target, &html.Node{Type: html.TextNode, Data: step.Text})
	case "replaceContent":
		target, err := findOne(doc, step.Selector)
		if err != nil {
			return err
		}
		return doc.ReplaceChildren(target, newParagraph(step.Text))
	case "pushState":
		doc.PushState(step.URL)
		return nil
	case "setHash":
		doc.SetHash(step.URL)
		return nil
	case "setTitle":
		doc.SetTitle(step.Text)
		return nil
	default:
		return fmt.Errorf("未知动作: %s", step.Action)
	}
}

// findOne 查找选择器的第一个匹配元素
func findOne(doc *dom.Document, selector string) (*html.Node, error) {
	nodes := doc.Find(selector)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("选择器没有匹配: %s", selector)
	}
	return nodes[0], nil
}

// newParagraph 构造一个带文本的 <p> 节点
func newParagraph(text string) *html.Node {
	p := &html.Node{Type: html.ElementNode, DataAtom: atom.P, Data: "p"}
	p.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return p
}
