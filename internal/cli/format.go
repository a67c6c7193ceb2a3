package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"

	"github.com/xiao-zaiyi/illa-helper-sub000/internal/cache"
	"github.com/xiao-zaiyi/illa-helper-sub000/internal/coordinator"
)

// maxPathWidth 表格中文件路径的最大显示宽度
const maxPathWidth = 48

// printSummary 渲染处理结果总结表格
func printSummary(w io.Writer, inputPath, outputPath string, s coordinator.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	tw.AppendRow(table.Row{"项", "值"})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"输入文件", truncatePath(inputPath)})
	tw.AppendRow(table.Row{"输出文件", truncatePath(outputPath)})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"处理根节点", s.Roots})
	tw.AppendRow(table.Row{"分段总数", s.Segments})
	tw.AppendRow(table.Row{"缓存命中", s.CacheHits})
	tw.AppendRow(table.Row{"缓存未命中", s.CacheMisses})
	tw.AppendRow(table.Row{"已翻译", color.GreenString("%d", s.Translated)})
	if s.Untranslated > 0 {
		tw.AppendRow(table.Row{"疑似未翻译", color.YellowString("%d", s.Untranslated)})
	}
	if s.Skipped > 0 {
		tw.AppendRow(table.Row{"已跳过", s.Skipped})
	}
	if s.Errors > 0 {
		tw.AppendRow(table.Row{"错误", color.RedString("%d", s.Errors)})
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"总耗时", s.Duration.Round(time.Millisecond)})

	tw.SetStyle(table.StyleLight)
	tw.Render()
	fmt.Fprintln(w)
}

// printCacheStats 渲染缓存统计表格
func printCacheStats(w io.Writer, stats cache.Stats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	tw.AppendRow(table.Row{"项", "值"})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"缓存条目", stats.EntryCount})
	tw.AppendRow(table.Row{"命中次数", stats.HitCount})
	tw.AppendRow(table.Row{"未命中次数", stats.MissCount})
	if total := stats.HitCount + stats.MissCount; total > 0 {
		rate := float64(stats.HitCount) / float64(total) * 100
		tw.AppendRow(table.Row{"命中率", fmt.Sprintf("%.1f%%", rate)})
	}

	tw.SetStyle(table.StyleLight)
	tw.Render()
	fmt.Fprintln(w)
}

// truncatePath 按显示宽度截断过长路径，中文等宽字符按双宽处理
func truncatePath(p string) string {
	if runewidth.StringWidth(p) <= maxPathWidth {
		return p
	}
	return "…" + runewidth.TruncateLeft(p, runewidth.StringWidth(p)-maxPathWidth+1, "")
}
